package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jo-hoe/chestxray/internal/backend/database"
	"github.com/jo-hoe/chestxray/internal/backend/imageprocessing"
	"github.com/jo-hoe/chestxray/internal/backend/inference"
	"github.com/jo-hoe/chestxray/internal/backend/session"
	"golang.org/x/crypto/bcrypt"

	_ "time/tzdata"
)

// Codec turns uploaded image bytes into the stored representation
type Codec interface {
	Execute(imageData []byte) ([]byte, error)
}

// Predictor runs the remote inference for a base64 encoded image
type Predictor interface {
	Predict(ctx context.Context, base64Image string) (*inference.Result, error)
}

type CoreService struct {
	config          *ServiceConfig
	databaseService database.DatabaseService
	sessionStore    session.Store
	predictor       Predictor
	codec           Codec
	location        *time.Location
	storeTimeout    time.Duration
	passwordCost    int
	now             func() time.Time
}

// NewCoreService opens the configured stores and builds the upload pipeline
func NewCoreService(ctx context.Context, config *ServiceConfig) (*CoreService, error) {
	codec, err := imageprocessing.NewCommandInvoker(config.commandConfigs())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize image pipeline: %w", err)
	}

	databaseService, err := getDatabaseService(ctx, config)
	if err != nil {
		return nil, err
	}

	sessionStore, err := session.NewStore(config.sessionConfig())
	if err != nil {
		_ = databaseService.Close()
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}
	slog.Info("session store initialized", "type", config.Session.Type, "ttl", config.Session.TTL)

	service, err := newCoreService(config, databaseService, sessionStore, inference.NewClient(config.inferenceConfig()), codec)
	if err != nil {
		_ = databaseService.Close()
		_ = sessionStore.Close()
		return nil, err
	}
	return service, nil
}

func newCoreService(config *ServiceConfig, databaseService database.DatabaseService, sessionStore session.Store, predictor Predictor, codec Codec) (*CoreService, error) {
	location, err := time.LoadLocation(config.ReportTimezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load report timezone %s: %w", config.ReportTimezone, err)
	}
	return &CoreService{
		config:          config,
		databaseService: databaseService,
		sessionStore:    sessionStore,
		predictor:       predictor,
		codec:           codec,
		location:        location,
		storeTimeout:    config.Database.Timeout,
		passwordCost:    bcrypt.DefaultCost,
		now:             time.Now,
	}, nil
}

// SessionTTL is the lifetime of newly created sessions
func (service *CoreService) SessionTTL() time.Duration {
	return service.sessionStore.TTL()
}

func (service *CoreService) Close() error {
	return errors.Join(service.databaseService.Close(), service.sessionStore.Close())
}

// storeContext bounds a single store operation
func (service *CoreService) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, service.storeTimeout)
}

func getDatabaseService(ctx context.Context, config *ServiceConfig) (database.DatabaseService, error) {
	ctx, cancel := context.WithTimeout(ctx, config.Database.Timeout)
	defer cancel()

	databaseService, err := database.NewDatabase(ctx, config.Database.Type, config.Database.ConnectionString, config.Database.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	slog.Info("database initialized successfully", "type", config.Database.Type)
	return databaseService, nil
}
