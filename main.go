package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/scene-classifier/internal/auth"
	"github.com/example/scene-classifier/internal/classifier"
	"github.com/example/scene-classifier/internal/config"
	"github.com/example/scene-classifier/internal/grpcclient"
	"github.com/example/scene-classifier/internal/handlers"
	"github.com/example/scene-classifier/internal/logging"
	"github.com/example/scene-classifier/internal/staging"
	"github.com/example/scene-classifier/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	area, err := staging.NewArea(cfg.StagingDir)
	if err != nil {
		logger.Fatal("failed to prepare staging directory", zap.Error(err))
	}

	clf, closer, err := buildClassifier(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise classifier", zap.Error(err), zap.String("backend", cfg.ClassifierBackend))
	}
	defer closer.Close()

	uc := usecase.NewPredictionUseCase(area, classifier.NewBounded(clf, cfg.MaxConcurrentInferences), usecase.Options{
		AllowedMediaTypes: cfg.AllowedMediaTypes,
		StrictCleanup:     cfg.StrictCleanup,
	}, logger)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), logging.GinMiddleware(logger))

	handlers.RegisterRoutes(r, uc, handlers.Options{
		PredictPath:   cfg.PredictPath,
		MaxUploadSize: cfg.MaxUploadSize,
		ExposeErrors:  cfg.ExposeErrors,
	}, auth.Optional(cfg.JWTSecret, cfg.JWTAudience), logger)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("classifier API listening",
		zap.String("addr", cfg.HTTPAddr),
		zap.String("predict_path", cfg.PredictPath),
		zap.String("backend", cfg.ClassifierBackend),
		zap.String("staging_dir", area.Dir()),
	)
	if err := serveHTTPServer(server, cfg.ShutdownTimeout, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func buildClassifier(ctx context.Context, cfg config.Config, logger *zap.Logger) (classifier.Classifier, io.Closer, error) {
	switch cfg.ClassifierBackend {
	case config.BackendGRPC:
		client, conn, err := grpcclient.DialClassifier(ctx, cfg.ClassifierAddr, cfg.ClassifierTimeout, logger)
		if err != nil {
			return nil, nil, err
		}
		return client, conn, nil
	case config.BackendProcess:
		clf, err := classifier.NewProcessClassifier(cfg.ClassifierCommand, cfg.ClassifierEnv, cfg.ClassifierTimeout, logger)
		if err != nil {
			return nil, nil, err
		}
		return clf, nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("unknown classifier backend %q", cfg.ClassifierBackend)
	}
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	sigCh := signalCh
	if sigCh == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(ch)
		sigCh = ch
	}

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
