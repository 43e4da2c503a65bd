package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mdobak/go-xerrors"
	"go.uber.org/zap"

	"github.com/Skufu/healthml/internal/classifier"
	"github.com/Skufu/healthml/internal/features"
	"github.com/Skufu/healthml/internal/logging"
	"github.com/Skufu/healthml/internal/prediction"
	"github.com/Skufu/healthml/internal/store"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	gin.SetMode(cfg.GinMode)

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	model, encoder := loadModel(cfg.ModelPath, logger)

	ctx := context.Background()
	deps := routerDeps{
		model:        model,
		allowOrigins: cfg.AllowOrigins,
		logger:       logger,
	}
	opts := []prediction.Option{
		prediction.WithCacheSize(cfg.CacheSize),
		prediction.WithLogger(logger),
	}
	if cfg.EnableDB {
		db, err := store.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("database connection failed", zap.Error(err))
		}
		defer db.Close()

		if err := db.EnsureSchema(ctx); err != nil {
			logger.Fatal("database schema failed", zap.Error(err))
		}
		deps.db = db
		deps.history = db
		opts = append(opts, prediction.WithRecorder(db))
	}

	var clf prediction.Classifier
	if model != nil {
		clf = model
	}
	svc, err := prediction.NewService(clf, encoder, opts...)
	if err != nil {
		logger.Fatal("prediction service", zap.Error(err))
	}
	deps.predictor = svc

	router := setupRouter(deps)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	logger.Info("server listening", zap.String("addr", server.Addr), zap.Bool("model_loaded", model != nil))
	waitForShutdown(server, logger)
}

// loadModel reads the artifact once. A missing or unusable artifact is not
// fatal: the service starts without a model and /predict answers 503.
func loadModel(path string, logger *zap.Logger) (*classifier.Model, *features.Encoder) {
	fallback, _ := features.NewEncoder(nil)

	model, err := classifier.Load(path)
	if err == nil {
		err = checkFeatureNames(model.Info().FeatureNames)
	}
	var encoder *features.Encoder
	if err == nil {
		encoder, err = features.NewEncoder(model.Vocabulary())
	}
	if err != nil {
		err = xerrors.New(err)
		logger.Error("ML model not loaded",
			zap.String("path", path),
			zap.Error(err),
			zap.String("details", xerrors.Sprint(err)),
		)
		return nil, fallback
	}

	info := model.Info()
	logger.Info("model loaded",
		zap.String("path", path),
		zap.String("type", info.ModelType),
		zap.Int("features", info.FeatureCount),
		zap.Strings("classes", info.Classes),
	)
	return model, encoder
}

// checkFeatureNames rejects artifacts fit on a different column order. Models
// exported without names are trusted.
func checkFeatureNames(names []string) error {
	if len(names) == 0 {
		return nil
	}
	if len(names) != len(features.FieldOrder) {
		return fmt.Errorf("model was fit on %d features, encoder produces %d", len(names), len(features.FieldOrder))
	}
	for i, name := range names {
		if name != features.FieldOrder[i] {
			return fmt.Errorf("feature %d: model expects %q, encoder produces %q", i, name, features.FieldOrder[i])
		}
	}
	return nil
}

func waitForShutdown(server *http.Server, logger *zap.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
}
