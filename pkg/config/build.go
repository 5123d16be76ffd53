package config

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jeremyhahn/go-identity/pkg/cache"
	"github.com/jeremyhahn/go-identity/pkg/directory"
	"github.com/jeremyhahn/go-identity/pkg/oauth"
	"github.com/jeremyhahn/go-identity/pkg/session"
)

// Runtime is the assembled stack. Close releases its connections.
type Runtime struct {
	Logger        zerolog.Logger
	Cache         cache.Store
	Authenticator *oauth.Authenticator
	Directory     *directory.Directory

	// Sessions is nil when no redirect URL is configured.
	Sessions *session.Manager

	closers []func() error
}

// BuildOption customizes Build.
type BuildOption func(*buildOptions)

type buildOptions struct {
	logOutput io.Writer
	registry  prometheus.Registerer
	authOpts  []oauth.Option
}

// WithLogOutput directs log output to w.
func WithLogOutput(w io.Writer) BuildOption {
	return func(o *buildOptions) { o.logOutput = w }
}

// WithRegisterer registers cache metrics with reg.
func WithRegisterer(reg prometheus.Registerer) BuildOption {
	return func(o *buildOptions) { o.registry = reg }
}

// WithAuthenticatorOptions passes options to oauth.NewAuthenticator.
func WithAuthenticatorOptions(opts ...oauth.Option) BuildOption {
	return func(o *buildOptions) { o.authOpts = append(o.authOpts, opts...) }
}

// Build connects the configured backends and assembles the Runtime.
func (s *Settings) Build(ctx context.Context, opts ...BuildOption) (rt *Runtime, err error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	rt = &Runtime{}
	defer func() {
		if err != nil {
			_ = rt.Close()
			rt = nil
		}
	}()

	if rt.Logger, err = s.Logger(o.logOutput); err != nil {
		return rt, err
	}

	var metrics *cache.Metrics
	if o.registry != nil {
		if metrics, err = cache.NewMetrics(o.registry); err != nil {
			return rt, fmt.Errorf("config: registering metrics: %w", err)
		}
	}

	if rt.Cache, err = s.cacheStore(ctx, rt); err != nil {
		return rt, err
	}

	cfg, err := s.OAuthConfig(rt.Cache, metrics, &rt.Logger)
	if err != nil {
		return rt, err
	}
	if rt.Authenticator, err = oauth.NewAuthenticator(cfg, o.authOpts...); err != nil {
		return rt, err
	}
	rt.closers = append(rt.closers, func() error { rt.Authenticator.Close(); return nil })

	if rt.Directory, err = directory.FromAuthenticator(rt.Authenticator); err != nil {
		return rt, err
	}

	if cfg.RequiresBrowserLogin() {
		backend, err := s.sessionBackend(ctx, rt)
		if err != nil {
			return rt, err
		}
		rt.Sessions = session.NewManager(session.ManagerConfig{
			Backend:    backend,
			CookieName: s.Session.CookieName,
			MaxAge:     s.Session.MaxAge,
			Enforce:    s.Session.Enforce,
		})
	}

	rt.Logger.Info().
		Str("provider", cfg.Provider.Name()).
		Str("cache", s.Cache.Backend).
		Bool("browser_login", rt.Sessions != nil).
		Msg("identity stack ready")
	return rt, nil
}

// Close releases every connection opened by Build, in reverse order.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i]())
	}
	rt.closers = nil
	return errors.Join(errs...)
}

func (s *Settings) cacheStore(ctx context.Context, rt *Runtime) (cache.Store, error) {
	if s.Cache.Backend == BackendRedis {
		r := s.Cache.Redis
		store, err := cache.NewRedisStore(ctx, cache.RedisConfig{
			Addrs:      r.Addrs,
			MasterName: r.MasterName,
			Username:   r.Username,
			Password:   r.Password,
			DB:         r.DB,
			KeyPrefix:  r.KeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, store.Close)
		return store, nil
	}

	store := cache.NewMemoryStore(s.Cache.MaxEntries)
	rt.closers = append(rt.closers, func() error { store.Close(); return nil })
	return store, nil
}

func (s *Settings) sessionBackend(ctx context.Context, rt *Runtime) (session.Backend, error) {
	if s.Session.Backend != BackendRedis {
		return session.NewMemoryBackend(s.Session.IdleTTL, nil), nil
	}

	r := s.Session.Redis
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:      r.Addrs,
		MasterName: r.MasterName,
		Username:   r.Username,
		Password:   r.Password,
		DB:         r.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("config: connecting session redis: %w", err)
	}
	rt.closers = append(rt.closers, client.Close)
	return session.NewRedisBackend(client, r.KeyPrefix, s.Session.IdleTTL), nil
}
