package redis

import (
	"context"
	"errors"
	"time"

	"github.com/animestream/authcore/internal/logger"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrNotConfigured is returned when no Redis URL is available.
var ErrNotConfigured = errors.New("redis URL not configured")

type Options struct {
	URL      string
	Password string
	DB       int
}

type Service struct {
	client *redis.Client
	log    zerolog.Logger
}

// NewService connects and pings once. Callers fall back to another backend on error.
func NewService(ctx context.Context, opts Options) (*Service, error) {
	log := logger.For(logger.REDIS)

	if opts.URL == "" {
		log.Warn().Msg("Redis URL not configured - service will be unavailable")
		return nil, ErrNotConfigured
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.URL,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		log.Error().
			Err(err).
			Str("addr", opts.URL).
			Msg("Failed to establish Redis connection")
		_ = client.Close()
		return nil, err
	}

	return NewServiceFromClient(client), nil
}

// NewServiceFromClient wraps an existing client without pinging it.
func NewServiceFromClient(client *redis.Client) *Service {
	return &Service{
		client: client,
		log:    logger.For(logger.REDIS),
	}
}

// Set stores a value in Redis with an optional expiration
func (s *Service) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	if err := s.client.Set(ctx, key, value, expiration).Err(); err != nil {
		s.log.Error().
			Err(err).
			Str("key", key).
			Dur("expiration", expiration).
			Msg("Redis SET operation failed")
		return err
	}
	return nil
}

// Get retrieves a value from Redis. A missing key is not an error.
func (s *Service) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		s.log.Error().
			Err(err).
			Str("key", key).
			Msg("Redis GET operation failed")
		return "", false, err
	}
	return val, true, nil
}

// Delete removes a key from Redis
func (s *Service) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// Ping checks if Redis is accessible
func (s *Service) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *Service) Close() error {
	return s.client.Close()
}
