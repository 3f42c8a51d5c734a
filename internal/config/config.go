package config

import (
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"pdf-text-overlay/internal/domain"
	"pdf-text-overlay/internal/geometry"

	"github.com/spf13/viper"
)

const (
	defaultServerPort     = "8080"
	defaultMaxFileSize    = 50 * 1024 * 1024
	defaultRenderScale    = 1.5
	defaultZoomPercent    = 100
	defaultFontSizeMin    = 8.0
	defaultFontSizeMax    = 72.0
	defaultFontSize       = 24.0
	defaultText           = "Your text"
	defaultExportPrefix   = "annotated-"
	defaultSessionTTL     = 30 * time.Minute
	defaultFetchTimeout   = 30 * time.Second
	defaultAllowedOrigins = "http://localhost:5173,http://localhost:4173,http://localhost:3000"
)

// AppConfig implements the domain.Config interface
type AppConfig struct {
	ServerPort     string
	MaxFileSize    int64
	LogLevel       string
	AllowedOrigins []string

	RenderScale     float64
	DefaultZoom     int
	FontSizeMin     float64
	FontSizeMax     float64
	DefaultFontSize float64
	DefaultText     string

	ExportFilenamePrefix string
	ExportDir            string
	SourceDir            string
	SupabaseURL          string
	SupabaseKey          string
	SupabaseExportBucket string

	SessionTTL   time.Duration
	FetchTimeout time.Duration
}

// NewConfig loads configuration from defaults, an optional file named by
// CONFIG_FILE, and the environment. Environment values win. Invalid values
// fall back to their defaults.
func NewConfig() domain.Config {
	return load(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("server_port", defaultServerPort)
	v.SetDefault("log_level", "info")
	v.SetDefault("default_text", defaultText)
	v.SetDefault("export_filename_prefix", defaultExportPrefix)
	v.SetDefault("allowed_origins", defaultAllowedOrigins)

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		// A missing or unreadable file leaves defaults and env in place.
		_ = v.ReadInConfig()
	}

	v.AutomaticEnv()
	return v
}

func load(v *viper.Viper) *AppConfig {
	cfg := &AppConfig{
		// Cloud Run (and many PaaS) provide the listening port via PORT.
		// Keep SERVER_PORT for local/dev compatibility.
		ServerPort:     stringOr(v, "port", v.GetString("server_port")),
		MaxFileSize:    int64Or(v, "max_file_size", defaultMaxFileSize),
		LogLevel:       v.GetString("log_level"),
		AllowedOrigins: splitList(v.GetString("allowed_origins")),

		RenderScale:     positiveFloatOr(v, "render_scale", defaultRenderScale),
		DefaultZoom:     zoomOr(v, "default_zoom", defaultZoomPercent),
		FontSizeMin:     positiveFloatOr(v, "font_size_min", defaultFontSizeMin),
		FontSizeMax:     positiveFloatOr(v, "font_size_max", defaultFontSizeMax),
		DefaultFontSize: positiveFloatOr(v, "default_font_size", defaultFontSize),
		DefaultText:     v.GetString("default_text"),

		ExportFilenamePrefix: v.GetString("export_filename_prefix"),
		ExportDir:            v.GetString("export_dir"),
		SourceDir:            v.GetString("source_dir"),
		SupabaseURL:          v.GetString("supabase_url"),
		SupabaseKey:          v.GetString("supabase_service_key"),
		SupabaseExportBucket: v.GetString("supabase_export_bucket"),

		SessionTTL:   durationOr(v, "session_ttl", defaultSessionTTL),
		FetchTimeout: durationOr(v, "fetch_timeout", defaultFetchTimeout),
	}

	if cfg.FontSizeMin > cfg.FontSizeMax {
		cfg.FontSizeMin, cfg.FontSizeMax = defaultFontSizeMin, defaultFontSizeMax
	}
	return cfg
}

// GetServerPort returns the server port
func (c *AppConfig) GetServerPort() string { return c.ServerPort }

// GetMaxFileSize returns the maximum allowed upload size
func (c *AppConfig) GetMaxFileSize() int64 { return c.MaxFileSize }

// GetLogLevel returns the logging level
func (c *AppConfig) GetLogLevel() string { return c.LogLevel }

// GetAllowedOrigins returns the CORS origins
func (c *AppConfig) GetAllowedOrigins() []string { return c.AllowedOrigins }

// GetRenderScale returns the fixed raster scale
func (c *AppConfig) GetRenderScale() float64 { return c.RenderScale }

// GetDefaultZoom returns the initial zoom percent
func (c *AppConfig) GetDefaultZoom() int { return c.DefaultZoom }

func (c *AppConfig) GetFontSizeMin() float64     { return c.FontSizeMin }
func (c *AppConfig) GetFontSizeMax() float64     { return c.FontSizeMax }
func (c *AppConfig) GetDefaultFontSize() float64 { return c.DefaultFontSize }
func (c *AppConfig) GetDefaultText() string      { return c.DefaultText }

func (c *AppConfig) GetExportFilenamePrefix() string { return c.ExportFilenamePrefix }

// GetExportDir returns the directory exports are copied to; empty disables it
func (c *AppConfig) GetExportDir() string { return c.ExportDir }

// GetSourceDir returns the directory local sources are read from; empty disables it
func (c *AppConfig) GetSourceDir() string { return c.SourceDir }

// GetSupabaseURL returns the Supabase URL
func (c *AppConfig) GetSupabaseURL() string { return c.SupabaseURL }

// GetSupabaseKey returns the Supabase service key
func (c *AppConfig) GetSupabaseKey() string { return c.SupabaseKey }

// GetSupabaseExportBucket returns the bucket exports are archived to
func (c *AppConfig) GetSupabaseExportBucket() string { return c.SupabaseExportBucket }

func (c *AppConfig) GetSessionTTL() time.Duration   { return c.SessionTTL }
func (c *AppConfig) GetFetchTimeout() time.Duration { return c.FetchTimeout }

// Helper functions for value handling

func stringOr(v *viper.Viper, key, fallback string) string {
	if value := strings.TrimSpace(v.GetString(key)); value != "" {
		return value
	}
	return fallback
}

func int64Or(v *viper.Viper, key string, fallback int64) int64 {
	if n, err := strconv.ParseInt(strings.TrimSpace(v.GetString(key)), 10, 64); err == nil && n > 0 {
		return n
	}
	return fallback
}

func positiveFloatOr(v *viper.Viper, key string, fallback float64) float64 {
	if f, err := strconv.ParseFloat(strings.TrimSpace(v.GetString(key)), 64); err == nil && f > 0 {
		return f
	}
	return fallback
}

func zoomOr(v *viper.Viper, key string, fallback int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(v.GetString(key))); err == nil && slices.Contains(geometry.ZoomStops, n) {
		return n
	}
	return fallback
}

func durationOr(v *viper.Viper, key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(v.GetString(key))); err == nil && d >= 0 {
		return d
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
