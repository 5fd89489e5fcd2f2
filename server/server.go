package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-auth-hub/auth"
	"github.com/jrsteele09/go-auth-hub/federation"
	"github.com/jrsteele09/go-auth-hub/internal/config"
	"github.com/jrsteele09/go-auth-hub/internal/metrics"
	"github.com/jrsteele09/go-auth-hub/ratelimit"
	"github.com/jrsteele09/go-auth-hub/sessions"
	"github.com/jrsteele09/go-auth-hub/store"
)

// maxBodyBytes caps every request body the handlers read.
const maxBodyBytes = 64 << 10

// Dependencies holds what the HTTP layer is built from.
type Dependencies struct {
	// Config returns the current configuration snapshot. It is called per
	// request so a reload takes effect without a restart.
	Config     func() config.Config
	Auth       *auth.Service
	Sessions   *sessions.Manager
	Limiters   *ratelimit.Limiters
	Metrics    *metrics.Metrics
	Store      store.Store
	Federation *federation.Registry
	State      *federation.StateCodec
}

type Server struct {
	env        string
	secure     bool
	mux        *http.ServeMux
	routes     []string
	config     func() config.Config
	auth       *auth.Service
	sessions   *sessions.Manager
	limiters   *ratelimit.Limiters
	metrics    *metrics.Metrics
	store      store.Store
	federation *federation.Registry
	state      *federation.StateCodec
}

func New(deps Dependencies) (*Server, error) {
	switch {
	case deps.Config == nil:
		return nil, errors.New("[New] config is required")
	case deps.Auth == nil:
		return nil, errors.New("[New] auth service is required")
	case deps.Sessions == nil:
		return nil, errors.New("[New] session manager is required")
	case deps.Limiters == nil:
		return nil, errors.New("[New] limiters are required")
	case deps.Metrics == nil:
		return nil, errors.New("[New] metrics are required")
	case deps.Store == nil:
		return nil, errors.New("[New] store is required")
	}

	cfg := deps.Config()
	s := &Server{
		env:        cfg.GetEnv(),
		secure:     cfg.IsProduction(),
		mux:        http.NewServeMux(),
		config:     deps.Config,
		auth:       deps.Auth,
		sessions:   deps.Sessions,
		limiters:   deps.Limiters,
		metrics:    deps.Metrics,
		store:      deps.Store,
		federation: deps.Federation,
		state:      deps.State,
	}

	if err := s.InitialiseSystem(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("[Server New] Failed to initialise the system: %w", err)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != config.EnvDev {
		return
	}
	for _, route := range s.routes {
		method, path, found := strings.Cut(route, " ")
		if !found {
			method, path = "", route
		}
		log.Debug().Str("method", method).Str("path", path).Msg("route")
	}
}
