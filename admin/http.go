// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupServer builds the admin HTTP server bound to addr. It serves
// Prometheus metrics, pprof and a liveness endpoint.
func SetupServer(addr string) *Server {
	timeout, _ := time.ParseDuration("45s")
	s := &Server{
		checks: make(map[string]func() error),
	}
	s.svc = &http.Server{
		Addr:         addr,
		Handler:      s.handler(),
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		IdleTimeout:  timeout,
	}
	return s
}

// Server represents a holder around a net/http Server which
// is used for admin endpoints. (i.e. metrics, liveness)
type Server struct {
	svc *http.Server

	mu     sync.RWMutex
	checks map[string]func() error
}

func (s *Server) BindAddress() string {
	return s.svc.Addr
}

// AddLivenessCheck registers f under name. GET /live fails while any
// check returns an error.
func (s *Server) AddLivenessCheck(name string, f func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = f
}

// Listen brings up the admin HTTP service. This call blocks.
func (s *Server) Listen() error {
	if s == nil || s.svc == nil {
		return nil
	}
	return s.svc.ListenAndServe()
}

// Shutdown unbinds the HTTP server.
func (s *Server) Shutdown() {
	if s == nil || s.svc == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.svc.Shutdown(ctx)
}

func (s *Server) handler() http.Handler {
	r := mux.NewRouter()
	r.Methods("GET").Path("/metrics").Handler(promhttp.Handler())
	r.Methods("GET").Path("/live").HandlerFunc(s.liveHandler)
	addPprofRoutes(r)
	return r
}

// liveHandler runs every check and reports each failure by name.
func (s *Server) liveHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	failures := make(map[string]string)
	for _, name := range names {
		if err := s.checks[name](); err != nil {
			failures[name] = err.Error()
		}
	}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if len(failures) > 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(failures)
		return
	}
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(failures)
}
