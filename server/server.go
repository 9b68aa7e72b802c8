package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/gorilla/mux"
	v1 "github.com/imrenagi/go-signed-upload/api/v1"
	"github.com/imrenagi/go-signed-upload/config"
	"github.com/imrenagi/go-signed-upload/storage"
	"github.com/imrenagi/go-signed-upload/upload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const serviceName = "go-signed-uploader"

type Opts struct {
	Config config.Config
	// Store is shared by every request for the life of the process.
	Store storage.ObjectStore
	// Scratch holds staged files. Each request works in its own directory.
	Scratch billy.Filesystem
}

func New(opts Opts) Server {
	s := Server{
		opts: opts,
	}
	return s
}

type Server struct {
	opts Opts
}

// Run serves HTTP until ctx is done, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	log.Info().Msg("starting server")

	telemetryShutdownFn, err := StartTelemetry(ctx, serviceName,
		prometheus.DefaultRegisterer, s.opts.Config.Tracing.OTLPEndpoint)
	if err != nil {
		return err
	}

	addr := s.opts.Config.Server.Addr
	httpServer := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
		// ReadTimeout is the maximum duration for reading the entire request, including the body.
		// This prevents slowloris attacks.
		ReadTimeout: 30 * time.Second,
		// WriteTimeout also bounds the object store calls made while answering an upload.
		WriteTimeout: 60 * time.Second,
		// ReadHeaderTimeout is necessary here to prevent slowloris attacks.
		// https://www.cloudflare.com/learning/ddos/ddos-attack-tools/slowloris/
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Msgf("Starting http server on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		log.Error().Err(serveErr).Msg("http server stopped unexpectedly")
	}

	gracefulShutdownPeriod := 30 * time.Second
	log.Warn().Msg("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownPeriod)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to shutdown http server gracefully")
	}
	log.Warn().Msg("http server gracefully stopped")

	if err := telemetryShutdownFn(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to shutdown telemetry providers")
	}
	return serveErr
}

// Handler builds the routed handler: the upload and url endpoints, the demo
// page and the prometheus scrape endpoint.
func (s *Server) Handler() http.Handler {
	pipeline := upload.NewPipeline(s.opts.Scratch, s.opts.Store,
		upload.WithURLMode(upload.URLMode(s.opts.Config.Upload.URLMode)))
	v1Controller := v1.NewController(pipeline,
		v1.WithMaxUploadBytes(s.opts.Config.Upload.MaxUploadBytes))

	mux := mux.NewRouter()
	mux.Use(
		otelhttp.NewMiddleware("uploader"),
		LogInterceptor)
	mux.Handle("/metrics", promhttp.Handler())
	apiRouter := mux.PathPrefix("/api").Subrouter()

	apiV1Router := apiRouter.PathPrefix("/v1").Subrouter()
	apiV1Router.Handle("/upload", otelhttp.WithRouteTag("/api/v1/upload", http.HandlerFunc(v1Controller.Upload())))
	apiV1Router.Handle("/url", otelhttp.WithRouteTag("/api/v1/url", http.HandlerFunc(v1Controller.GetURL()))).
		Methods(http.MethodGet, http.MethodPost, http.MethodOptions)
	mux.Handle("/v1", otelhttp.WithRouteTag("/v1", http.HandlerFunc(v1.Web()))).Methods(http.MethodGet)

	return otelhttp.NewHandler(mux, "/")
}
