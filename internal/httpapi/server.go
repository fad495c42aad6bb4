// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package httpapi serves a read-mostly HTTP view of a discovered data type
// tree and of variable values addressed with index ranges.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	opcua "github.com/edgeo-scada/opcua-typesys"
	"github.com/edgeo-scada/opcua-typesys/dynamic"
	"github.com/edgeo-scada/opcua-typesys/typetree"
)

// Config holds HTTP server configuration.
type Config struct {
	ListenAddr   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// MetricsPath exposes Gatherer when both are set.
	MetricsPath string
}

// ValueService reads and writes node attributes. *opcua.Client implements
// it.
type ValueService interface {
	Read(ctx context.Context, nodesToRead []opcua.ReadValueID) ([]opcua.DataValue, error)
	WriteValue(ctx context.Context, nodeID opcua.NodeID, indexRange string, value *opcua.Variant) error
}

// Backend is what the server exposes.
type Backend struct {
	Tree     *typetree.Tree
	Manager  *dynamic.Manager
	Values   ValueService
	Gatherer prometheus.Gatherer
}

// Server is the HTTP type browser.
type Server struct {
	cfg     Config
	log     zerolog.Logger
	backend Backend
	metrics *Metrics

	Router *mux.Router
	http   *http.Server
	chain  []func(http.Handler) http.Handler

	mtx      sync.Mutex
	listener net.Listener
}

// NewServer returns a server with every route and the default middleware
// chain installed.
func NewServer(cfg Config, backend Backend, opts ...Option) *Server {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	m := o.metrics
	if m == nil {
		m = NewMetrics(o.registerer)
	}

	r := mux.NewRouter()
	s := &Server{
		cfg:     cfg,
		log:     o.logger.With().Str("component", "http-api").Logger(),
		backend: backend,
		metrics: m,
		Router:  r,
	}
	s.http = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: cfg.ReadTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}
	s.routes()

	s.Use(RequestID())
	s.Use(handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{s.log}), handlers.PrintRecoveryStack(false)))
	s.Use(Logger(s.log))
	return s
}

func (s *Server) routes() {
	s.Router.Use(Instrument(s.metrics))

	api := s.Router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/types", s.listTypes).Methods(http.MethodGet)
	api.HandleFunc("/types/{id:.+}", s.getType).Methods(http.MethodGet)
	api.HandleFunc("/values/{id:.+}", s.readValue).Methods(http.MethodGet)
	api.HandleFunc("/values/{id:.+}", s.writeValue).Methods(http.MethodPut)

	s.Router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": opcua.GetVersion().String()})
	}).Methods(http.MethodGet)

	if s.cfg.MetricsPath != "" && s.backend.Gatherer != nil {
		s.Router.Handle(s.cfg.MetricsPath, promhttp.HandlerFor(s.backend.Gatherer, promhttp.HandlerOpts{})).
			Methods(http.MethodGet)
	}
}

// Use appends middleware to the chain and rebuilds the handler
func (s *Server) Use(mw func(http.Handler) http.Handler) {
	s.chain = append(s.chain, mw)
	s.http.Handler = s.buildHandler()
}

// Handler returns the router wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) buildHandler() http.Handler {
	h := http.Handler(s.Router)
	for i := len(s.chain) - 1; i >= 0; i-- {
		h = s.chain[i](h)
	}
	return h
}

// EnableCORS enables permissive CORS for browser front ends.
func (s *Server) EnableCORS() {
	s.Use(func(next http.Handler) http.Handler {
		return handlers.CORS(
			handlers.AllowedHeaders([]string{"Content-Type", RequestIDHeader}),
			handlers.AllowedOrigins([]string{"*"}),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPut, http.MethodOptions}),
		)(next)
	})
}

// Addr returns the address the server listens on once Start has bound it.
func (s *Server) Addr() net.Addr {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start serves until ctx ends, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}

	s.mtx.Lock()
	s.listener = ln
	s.mtx.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.http.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("HTTP API server starting")
	err = s.http.Serve(ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info().Msg("HTTP API server stopped")
	return nil
}

type recoveryLogger struct {
	log zerolog.Logger
}

func (l recoveryLogger) Println(args ...interface{}) {
	l.log.Error().Interface("panic", args).Msg("http_panic")
}
