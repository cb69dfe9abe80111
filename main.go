// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/moov-io/accounts/admin"
	"github.com/moov-io/accounts/pkg/buntdbsession"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

var (
	httpAddr    = flag.String("http.addr", ":8080", "HTTP listen address")
	adminAddr   = flag.String("admin.addr", ":9090", "Admin HTTP listen address")
	tlsCertFile = flag.String("https.cert", "", "Path to a TLS certificate, serves HTTPS when set with -https.key")
	tlsKeyFile  = flag.String("https.key", "", "Path to a TLS private key")

	logger log.Logger = log.NewNopLogger()

	// Metrics
	authSuccesses = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "auth_successes",
		Help: "Count of successful authorizations",
	}, []string{"method"})
	authFailures = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "auth_failures",
		Help: "Count of failed authorizations",
	}, []string{"method"})
	authInactivations = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "auth_inactivations",
		Help: "Count of sessions invalidated by logout",
	}, []string{"method"})

	registrations = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "account_registrations",
		Help: "Count of registration attempts by result",
	}, []string{"result"})

	internalServerErrors = prometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Name: "internal_server_errors",
		Help: "Count of how many 5xx errors we return",
	}, nil)
)

const Version = "0.2.0-dev"

func main() {
	flag.Parse()

	// Setup logging, default to stdout
	logger = log.NewLogfmtLogger(os.Stderr)
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	logger = log.With(logger, "caller", log.DefaultCaller)
	logger.Log("startup", fmt.Sprintf("Starting accounts server version %s", Version))

	if err := admin.Init(); err != nil {
		logger.Log("admin", err)
		os.Exit(1)
	}

	// Listen for application termination.
	errs := make(chan error)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errs <- fmt.Errorf("%s", <-c)
	}()

	// Setup sqlite
	db, err := createConnection(getSqlitePath())
	if err != nil {
		logger.Log("sqlite", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := migrate(logger, db); err != nil {
		logger.Log("sqlite", err)
		os.Exit(1)
	}
	collector := &promMetricCollector{interval: 10 * time.Second, shutdown: make(chan struct{})}
	go collector.run(db)
	defer collector.stop()

	// Setup sessions
	sessions, err := buntdbsession.New(getBuntdbPath())
	if err != nil {
		logger.Log("buntdb", err)
		os.Exit(1)
	}
	defer sessions.Close()

	svc := newAccountService(
		&sqliteAccountRepository{db: db},
		&logNotifier{logger: logger, baseURL: getBaseURL(), showLinks: showNotificationLinks()},
		logger,
	)
	handler := setupRouter(logger, &auth{sessions: sessions}, svc)

	serveViaTLS = *tlsCertFile != "" && *tlsKeyFile != ""

	readTimeout, _ := time.ParseDuration("30s")
	writTimeout, _ := time.ParseDuration("30s")
	idleTimeout, _ := time.ParseDuration("60s")

	serve := &http.Server{
		Addr:    *httpAddr,
		Handler: handler,
		TLSConfig: &tls.Config{
			InsecureSkipVerify:       false,
			PreferServerCipherSuites: true,
			MinVersion:               tls.VersionTLS12,
		},
		ReadTimeout:  readTimeout,
		WriteTimeout: writTimeout,
		IdleTimeout:  idleTimeout,
	}
	shutdownServer := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := serve.Shutdown(ctx); err != nil {
			logger.Log("shutdown", err)
		}
	}

	adminService := admin.SetupServer(*adminAddr)
	adminService.AddLivenessCheck("sqlite", db.Ping)
	go func() {
		logger.Log("admin", fmt.Sprintf("Starting admin service on %s", adminService.BindAddress()))
		if err := adminService.Listen(); err != nil {
			logger.Log("admin", "shutting down", "error", err)
		}
	}()

	go func() {
		if serveViaTLS {
			logger.Log("transport", "HTTPS", "addr", *httpAddr)
			errs <- serve.ListenAndServeTLS(*tlsCertFile, *tlsKeyFile)
			return
		}
		logger.Log("transport", "HTTP", "addr", *httpAddr)
		errs <- serve.ListenAndServe()
	}()

	if err := <-errs; err != nil {
		adminService.Shutdown()
		shutdownServer()
		logger.Log("exit", err)
	}
}

func getBuntdbPath() string {
	path := os.Getenv("BUNTDB_PATH")
	if path == "" || strings.Contains(path, "..") {
		path = "sessions.db"
	}
	return path
}
