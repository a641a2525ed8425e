// Package app wires storage, object storage, tokens and the ingest
// pipeline into the application service behind the HTTP layer.
package app

import (
	"fmt"
	"time"

	"audioscribe/internal/ingest"
	"audioscribe/internal/lifecycle"
	"audioscribe/pkg/segmenter"
	"audioscribe/pkg/storage"
	"audioscribe/pkg/store"
	"audioscribe/pkg/token"
)

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL string

	JWTSecret  string
	SessionTTL time.Duration

	SegmenterURL     string
	SegmenterTimeout time.Duration

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	AudioURLTTL time.Duration

	RequireTranslationForCompletion bool

	Ingest ingest.Config

	// Test seams. When set they replace the backends built from the
	// settings above.
	Store     store.Store
	Objects   storage.ObjectStore
	Segmenter segmenter.Segmenter
}

// App is the application service wiring storage and domain logic.
type App struct {
	store       store.Store
	objects     storage.ObjectStore
	tokens      *token.Service
	lifecycle   *lifecycle.Controller
	pipeline    *ingest.Pipeline
	audioURLTTL time.Duration
}

// New constructs the application from configuration.
func New(cfg Config) (*App, error) {
	tokens, err := token.NewService(cfg.JWTSecret, token.Options{TTL: cfg.SessionTTL})
	if err != nil {
		return nil, fmt.Errorf("init token service: %w", err)
	}

	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	objects := cfg.Objects
	if objects == nil {
		objects, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			return nil, fmt.Errorf("init object store: %w", err)
		}
	}

	seg := cfg.Segmenter
	if seg == nil {
		seg = segmenter.NewClient(cfg.SegmenterURL, cfg.SegmenterTimeout)
	}

	if cfg.AudioURLTTL <= 0 {
		cfg.AudioURLTTL = time.Hour
	}

	lc := lifecycle.NewController(dataStore, cfg.RequireTranslationForCompletion)
	return &App{
		store:       dataStore,
		objects:     objects,
		tokens:      tokens,
		lifecycle:   lc,
		pipeline:    ingest.New(dataStore, objects, seg, lc, cfg.Ingest),
		audioURLTTL: cfg.AudioURLTTL,
	}, nil
}

// SessionTTL reports the lifetime of issued tokens.
func (a *App) SessionTTL() time.Duration {
	return a.tokens.TTL()
}
