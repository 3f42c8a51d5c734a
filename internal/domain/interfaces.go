package domain

import "time"

// Logger defines the interface for logging operations
type Logger interface {
	Info(msg string, fields ...interface{})
	Error(msg string, err error, fields ...interface{})
	Debug(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	// With returns a logger that prepends fields to every entry.
	With(fields ...interface{}) Logger
}

// Config defines the interface for configuration management
type Config interface {
	GetServerPort() string
	GetMaxFileSize() int64
	GetLogLevel() string
	GetAllowedOrigins() []string

	GetRenderScale() float64
	GetDefaultZoom() int
	GetFontSizeMin() float64
	GetFontSizeMax() float64
	GetDefaultFontSize() float64
	GetDefaultText() string

	GetExportFilenamePrefix() string
	GetExportDir() string
	GetSourceDir() string
	GetSupabaseURL() string
	GetSupabaseKey() string
	GetSupabaseExportBucket() string

	GetSessionTTL() time.Duration
	GetFetchTimeout() time.Duration
}
