package container

import (
	"context"
	"fmt"
	"net/http"

	"github.com/anime-shed/order-image-relay/internal/config"
	"github.com/anime-shed/order-image-relay/internal/extraction"
	"github.com/anime-shed/order-image-relay/internal/filestore"
	"github.com/anime-shed/order-image-relay/internal/imageref"
	"github.com/anime-shed/order-image-relay/internal/loader"
	"github.com/anime-shed/order-image-relay/internal/logger"
	"github.com/anime-shed/order-image-relay/internal/observer"
	"github.com/anime-shed/order-image-relay/internal/service"
	"github.com/anime-shed/order-image-relay/internal/storage"
	"github.com/anime-shed/order-image-relay/internal/transport"
	"github.com/anime-shed/order-image-relay/pkg/validation"
)

// Container holds all application dependencies
type Container struct {
	config     *config.Config
	store      *filestore.Store
	extraction service.OrderExtractionService
	metrics    *observer.MetricsObserver
	handler    http.Handler
}

// NewContainer builds the dependency graph for cfg. Azure and S3 sources are
// wired only when their credentials are configured.
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	store, err := filestore.NewStore(cfg.Upload.Dir, cfg.Upload.TTL, logger.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload store: %w", err)
	}

	var azure, s3 storage.BlobStore
	if cfg.Azure.Enabled() {
		azure, err = storage.NewAzureStorage(cfg.Azure.AccountName, cfg.Azure.AccountKey, cfg.Image.MaxSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create azure client: %w", err)
		}
	}
	if cfg.S3.Enabled() {
		s3, err = storage.NewS3Storage(ctx, storage.S3Options{
			Endpoint:        cfg.S3.Endpoint,
			Region:          cfg.S3.Region,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			MaxSize:         cfg.Image.MaxSize,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 client: %w", err)
		}
	}

	fetcher := storage.NewHTTPImageFetcher(cfg.Image.FetchTimeout, cfg.Image.MaxSize)
	imageLoader := loader.New(store, fetcher, azure, s3, loader.Options{
		DetectType:   cfg.Image.DetectType,
		DefaultMIME:  cfg.Image.DefaultMIME,
		FetchTimeout: cfg.Image.FetchTimeout,
	})

	extractor := extraction.NewClient(extraction.Config{
		APIKey:    cfg.Extraction.APIKey,
		BaseURL:   cfg.Extraction.BaseURL,
		Model:     cfg.Extraction.Model,
		MaxTokens: cfg.Extraction.MaxTokens,
		Timeout:   cfg.Extraction.Timeout,
	}, logger.Logger)

	metrics := observer.NewMetricsObserver()
	events := observer.NewEventPublisher()
	events.Subscribe(observer.NewLoggingObserver(logger.Logger))
	events.Subscribe(metrics)

	refs := imageref.NewParser(cfg.Upload.Dir, validation.NewURLValidatorWithHosts(cfg.Image.AllowedHosts))
	svc := service.NewOrderExtractionService(refs, imageLoader, extractor, events)

	return &Container{
		config:     cfg,
		store:      store,
		extraction: svc,
		metrics:    metrics,
		handler:    transport.NewHandler(svc, store, cfg),
	}, nil
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// PipelineMetrics returns per-stage success and failure counts since start.
func (c *Container) PipelineMetrics() map[string]interface{} {
	return c.metrics.GetMetrics()
}

// Close removes every file still in the upload store.
func (c *Container) Close() error {
	return c.store.Close()
}
