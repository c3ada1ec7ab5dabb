package serv

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/graphmint/rescache/core"
	"github.com/graphmint/rescache/serv/internal/util"
)

// Service ties together configuration, logging, the store backend, the
// cache engine and the HTTP handler
type Service struct {
	conf    *Config
	log     *zap.SugaredLogger
	zlog    *zap.Logger
	cache   ResponseCache
	engine  *core.Engine
	handler *CacheHandler
}

// NewService wires up a caching service around the given executor
func NewService(conf *Config, exec Executor) (*Service, error) {
	if conf == nil {
		conf = NewConfig()
	}

	s := &Service{conf: conf}
	s.initLogger()

	if err := s.initResponseCache(); err != nil {
		return nil, err
	}
	s.initEngine()

	s.handler = NewCacheHandler(s.engine, exec, conf.Caching, s.log)
	return s, nil
}

// initLogger initializes the zap logger from config
func (s *Service) initLogger() {
	var level zapcore.Level

	switch s.conf.LogLevel {
	case "debug":
		level = zap.DebugLevel
	case "warn":
		level = zap.WarnLevel
	case "error":
		level = zap.ErrorLevel
	default:
		level = zap.InfoLevel
	}

	s.zlog = util.NewLogger(s.conf.JSONLogs, level)
	s.log = s.zlog.Sugar()
}

// initResponseCache initializes the response cache (Redis or in-memory)
func (s *Service) initResponseCache() error {
	if s.conf.Caching.Disable {
		s.log.Info("Response cache disabled")
		return nil
	}

	if s.conf.Redis.URL != "" {
		// Try to use Redis
		cache, err := NewRedisCache(s.conf.Redis.URL, s.conf.Caching)
		if err != nil {
			s.log.Warnf("Redis unavailable, falling back to in-memory cache: %s", err)
			s.cache, err = NewMemoryCache(s.conf.Caching, s.conf.Caching.MemCacheSize)
			if err != nil {
				return err
			}
			s.log.Info("Using in-memory response cache (Redis unavailable)")
		} else {
			s.cache = cache
			s.log.Info("Redis response cache enabled")
		}
	} else {
		// No Redis URL - use in-memory cache
		var err error
		s.cache, err = NewMemoryCache(s.conf.Caching, s.conf.Caching.MemCacheSize)
		if err != nil {
			return err
		}
		s.log.Info("Using in-memory response cache (no Redis URL configured)")
	}

	return nil
}

// initEngine builds the cache engine over the selected store. With caching
// disabled the engine never reads or writes but still computes freshness
// metadata from the hints.
func (s *Service) initEngine() {
	opts := []core.Option{
		core.WithLogger(s.log),
		core.WithDefaultMaxAge(s.conf.Caching.DefaultMaxAge),
		core.WithSplitAuthenticated(s.conf.Caching.SplitAuthenticated),
	}

	if s.cache != nil {
		opts = append(opts, core.WithStore(s.cache))
	} else {
		deny := func(context.Context, *core.Request) (bool, error) { return false, nil }
		opts = append(opts, core.WithReadPredicate(deny), core.WithWritePredicate(deny))
	}

	s.engine = core.New(opts...)
}

// Router returns the service router
func (s *Service) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Post("/api/v1/graphql", s.handler.ServeHTTP)
	r.Get("/health", s.healthHandler)
	return r
}

// healthHandler reports liveness and cache metrics
func (s *Service) healthHandler(w http.ResponseWriter, _ *http.Request) {
	out := map[string]interface{}{"status": "ok"}
	if s.cache != nil {
		out["cache"] = s.cache.Metrics().Snapshot()
		out["hit_rate"] = s.cache.Metrics().HitRate()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out) //nolint:errcheck
}

// Start runs the HTTP server until it fails
func (s *Service) Start() error {
	s.log.Infof("rescache listening on %s", s.conf.HostPort)
	return http.ListenAndServe(s.conf.HostPort, s.Router())
}

// Close releases the store backend
func (s *Service) Close() error {
	if s.cache != nil {
		return s.cache.Close()
	}
	return nil
}
