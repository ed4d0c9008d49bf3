package services

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/animestream/authcore/internal/api/middleware"
	"github.com/animestream/authcore/internal/auth"
	"github.com/animestream/authcore/internal/authclient"
	"github.com/animestream/authcore/internal/config"
	"github.com/animestream/authcore/internal/logger"
	"github.com/animestream/authcore/internal/metrics"
	"github.com/animestream/authcore/internal/pipeline"
	"github.com/animestream/authcore/internal/storage"
	"github.com/animestream/authcore/internal/tokenstore"
)

var (
	// Mutex for thread-safe initialization
	servicesMu sync.RWMutex
)

// Options carry everything InitializeServices needs. OptionsFromEnv fills them from config.
type Options struct {
	APIBaseURL  string
	APITimeout  time.Duration
	Session     storage.Options
	Persistent  storage.Options
	DefaultTTL  time.Duration
	Buffer      time.Duration
	Rotation    auth.RotationMode
	DeviceName  string
	StorageIO   time.Duration
	RefreshPath string
}

func OptionsFromEnv() Options {
	return Options{
		APIBaseURL:  config.GetAPIBaseURL(),
		APITimeout:  config.GetAPITimeout(),
		Session:     storage.OptionsFromEnv(config.GetSessionTier()),
		Persistent:  storage.OptionsFromEnv(config.GetPersistentTier()),
		DefaultTTL:  config.GetAccessTokenDefaultTTL(),
		Buffer:      config.GetTokenExpiryBuffer(),
		Rotation:    auth.ParseRotationMode(config.GetRefreshRotation()),
		DeviceName:  config.GetDeviceName(),
		StorageIO:   config.GetStorageTimeout(),
		RefreshPath: config.GetRefreshPath(),
	}
}

// Services is the wired client core: both storage tiers, the token store, the request
// pipeline with its refresher, the auth controller and the route guard.
type Services struct {
	metrics    *metrics.Metrics
	session    storage.Tier
	persistent storage.Tier
	store      *tokenstore.Store
	pipeline   *pipeline.Client
	client     *authclient.Client
	controller *auth.Controller
	guard      *middleware.Guard
}

// InitializeServices initializes all required services
func InitializeServices(ctx context.Context, opts Options) (*Services, error) {
	servicesMu.Lock()
	defer servicesMu.Unlock()

	log := logger.For(logger.APP)
	log.Info().Msg("Initializing core services")

	m := metrics.New()

	sessionTier, err := storage.Select(ctx, opts.Session)
	if err != nil {
		return nil, fmt.Errorf("failed to open session tier: %w", err)
	}
	persistentTier, err := storage.Select(ctx, opts.Persistent)
	if err != nil {
		_ = storage.Close(sessionTier)
		return nil, fmt.Errorf("failed to open persistent tier: %w", err)
	}
	log.Info().Str("session", sessionTier.Name()).Str("persistent", persistentTier.Name()).Msg("Initializing storage tiers")

	var storeOpts []tokenstore.Option
	if opts.DefaultTTL > 0 {
		storeOpts = append(storeOpts, tokenstore.WithDefaultTTL(opts.DefaultTTL))
	}
	if opts.Buffer > 0 {
		storeOpts = append(storeOpts, tokenstore.WithBuffer(opts.Buffer))
	}
	if opts.StorageIO > 0 {
		storeOpts = append(storeOpts, tokenstore.WithIOTimeout(opts.StorageIO))
	}
	store := tokenstore.New(sessionTier, persistentTier, storeOpts...)

	pipeOpts := []pipeline.Option{pipeline.WithMetrics(m)}
	if opts.APITimeout > 0 {
		pipeOpts = append(pipeOpts, pipeline.WithTimeout(opts.APITimeout))
	}
	if opts.RefreshPath != "" && !slices.Contains(pipeline.DefaultAuthPaths, opts.RefreshPath) {
		authPaths := append(slices.Clone(pipeline.DefaultAuthPaths), opts.RefreshPath)
		pipeOpts = append(pipeOpts, pipeline.WithAuthPaths(authPaths...))
	}
	pipe := pipeline.New(opts.APIBaseURL, store, pipeOpts...)
	log.Info().Str("base_url", opts.APIBaseURL).Msg("Initializing request pipeline")

	var clientOpts []authclient.Option
	if opts.RefreshPath != "" {
		clientOpts = append(clientOpts, authclient.WithRefreshPath(opts.RefreshPath))
	}
	client := authclient.New(pipe, clientOpts...)

	controller := auth.NewController(store, client,
		auth.WithRotation(opts.Rotation),
		auth.WithMetrics(m),
		auth.WithDeviceName(opts.DeviceName),
	)
	pipe.UseRefresher(controller)
	controller.Init()
	log.Info().Bool("authenticated", controller.IsAuthenticated()).Msg("Initializing auth controller")

	guard := middleware.NewGuard(controller, m)

	log.Info().Msg("All services initialized successfully")

	return &Services{
		metrics:    m,
		session:    sessionTier,
		persistent: persistentTier,
		store:      store,
		pipeline:   pipe,
		client:     client,
		controller: controller,
		guard:      guard,
	}, nil
}

// Close releases the storage tiers.
func (s *Services) Close() {
	_ = storage.Close(s.session)
	_ = storage.Close(s.persistent)
}

func (s *Services) GetMetrics() *metrics.Metrics      { return s.metrics }
func (s *Services) GetTokenStore() *tokenstore.Store  { return s.store }
func (s *Services) GetPipeline() *pipeline.Client     { return s.pipeline }
func (s *Services) GetAuthClient() *authclient.Client { return s.client }
func (s *Services) GetController() *auth.Controller   { return s.controller }
func (s *Services) GetGuard() *middleware.Guard       { return s.guard }
