package config

import (
	"fmt"

	"pdf-text-overlay/internal/annotation"
	"pdf-text-overlay/internal/domain"
	"pdf-text-overlay/internal/export"
	"pdf-text-overlay/internal/geometry"
	"pdf-text-overlay/internal/infra/fitz"
	"pdf-text-overlay/internal/infra/fpdf"
	"pdf-text-overlay/internal/infra/sink"
	"pdf-text-overlay/internal/infra/source"
	"pdf-text-overlay/internal/infra/supabase"
	"pdf-text-overlay/internal/preview"
	"pdf-text-overlay/internal/service"
	"pdf-text-overlay/pkg/logger"
)

// placementOffset centers the default text on the pointer.
var placementOffset = geometry.Point{X: 60, Y: 16}

// Container holds all application dependencies
type Container struct {
	Config         domain.Config
	Logger         domain.Logger
	Sources        *source.Fetcher
	Engine         domain.RenderingEngine
	Projector      *export.Projector
	Sinks          []domain.DownloadSink
	SessionService *service.SessionService
}

// NewContainer creates a new dependency injection container
func NewContainer() (*Container, error) {
	config := NewConfig()
	appLogger := logger.NewLogger(config.GetLogLevel())
	return NewContainerWith(config, appLogger)
}

// NewContainerWith wires the application from an explicit config and logger.
func NewContainerWith(config domain.Config, appLogger domain.Logger) (*Container, error) {
	sources := source.NewFetcher(source.Options{
		MaxSize:   config.GetMaxFileSize(),
		Timeout:   config.GetFetchTimeout(),
		LocalRoot: config.GetSourceDir(),
	}, appLogger)

	builder := fpdf.NewBuilder(appLogger)
	engine := fitz.NewEngine(sources, builder, appLogger)
	projector := export.NewProjector(sources, builder, config.GetExportFilenamePrefix(), appLogger)

	measurer, err := preview.NewMeasurer()
	if err != nil {
		return nil, fmt.Errorf("failed to load preview font: %w", err)
	}

	sinks := newSinks(config, appLogger)

	sessions, err := service.NewSessionService(service.Dependencies{
		Engine:    engine,
		Projector: projector,
		Sinks:     sinks,
		Measurer:  measurer,
		Sources:   sources,
		Logger:    appLogger,
	}, service.Options{
		RenderScale: config.GetRenderScale(),
		DefaultZoom: config.GetDefaultZoom(),
		Annotation: annotation.Options{
			DefaultText:     config.GetDefaultText(),
			DefaultFontSize: config.GetDefaultFontSize(),
			Bounds: annotation.FontBounds{
				Min: config.GetFontSizeMin(),
				Max: config.GetFontSizeMax(),
			},
			PlacementOffset: placementOffset,
		},
		SessionTTL: config.GetSessionTTL(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session service: %w", err)
	}

	return &Container{
		Config:         config,
		Logger:         appLogger,
		Sources:        sources,
		Engine:         engine,
		Projector:      projector,
		Sinks:          sinks,
		SessionService: sessions,
	}, nil
}

// newSinks builds the optional archive sinks. A sink that cannot be set up
// is logged and skipped; the HTTP attachment is always delivered.
func newSinks(config domain.Config, appLogger domain.Logger) []domain.DownloadSink {
	var sinks []domain.DownloadSink

	if dir := config.GetExportDir(); dir != "" {
		d, err := sink.NewDirectory(dir, appLogger)
		if err != nil {
			appLogger.Warn("Export directory disabled", "dir", dir, "error", err)
		} else {
			sinks = append(sinks, d)
		}
	}

	if config.GetSupabaseURL() != "" || config.GetSupabaseExportBucket() != "" {
		s, err := supabase.NewStorageSink(config, appLogger)
		if err != nil {
			appLogger.Warn("Supabase export archive disabled", "error", err)
		} else {
			sinks = append(sinks, s)
		}
	}

	return sinks
}

// GetConfig returns the configuration instance
func (c *Container) GetConfig() domain.Config {
	return c.Config
}

// GetLogger returns the logger instance
func (c *Container) GetLogger() domain.Logger {
	return c.Logger
}

// GetSessionService returns the session service instance
func (c *Container) GetSessionService() *service.SessionService {
	return c.SessionService
}

// Close releases background work held by the container.
func (c *Container) Close() {
	c.SessionService.Close()
}
