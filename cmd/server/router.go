package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Skufu/healthml/internal/classifier"
	"github.com/Skufu/healthml/internal/features"
	"github.com/Skufu/healthml/internal/logging"
	"github.com/Skufu/healthml/internal/prediction"
	"github.com/Skufu/healthml/internal/store"
)

type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Predictor interface {
	Predict(ctx context.Context, rec features.Record) (*prediction.Result, error)
	ModelLoaded() bool
}

type History interface {
	Recent(ctx context.Context, limit int) ([]store.Entry, error)
}

// routerDeps holds everything the handlers need. db, history and model are
// optional.
type routerDeps struct {
	predictor    Predictor
	model        *classifier.Model
	db           HealthChecker
	history      History
	allowOrigins []string
	logger       *zap.Logger
}

func setupRouter(deps routerDeps) *gin.Engine {
	useJSONFieldNames()
	if deps.logger == nil {
		deps.logger = zap.NewNop()
	}
	if len(deps.allowOrigins) == 0 {
		deps.allowOrigins = []string{"*"}
	}

	router := gin.New()
	router.Use(
		logging.GinLogger(deps.logger),
		gin.Recovery(),
		limitBodySize(1<<20), // 1MB max body
		cors.New(cors.Config{
			AllowOrigins: deps.allowOrigins,
			AllowMethods: []string{"GET", "POST", "OPTIONS"},
			AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
			MaxAge:       12 * time.Hour,
		}),
	)

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message":      "Health Analysis ML API",
			"status":       "running",
			"model_loaded": deps.predictor.ModelLoaded(),
		})
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "model_loaded": deps.predictor.ModelLoaded()})
	})

	router.GET("/readyz", func(c *gin.Context) {
		body := gin.H{"status": "ok", "model_loaded": deps.predictor.ModelLoaded(), "db": "disabled"}
		status := http.StatusOK
		if !deps.predictor.ModelLoaded() {
			body["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}

		if deps.db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()

			body["db"] = "ok"
			if err := deps.db.Ping(ctx); err != nil {
				body["db"] = fmt.Sprintf("unhealthy: %v", err)
				body["status"] = "degraded"
				status = http.StatusServiceUnavailable
			}
		}

		c.JSON(status, body)
	})

	router.GET("/model", func(c *gin.Context) {
		if deps.model == nil {
			abortWithError(c, http.StatusServiceUnavailable, "model_unavailable", "ML model not loaded")
			return
		}
		info := deps.model.Info()
		c.JSON(http.StatusOK, gin.H{
			"model":         info,
			"field_order":   features.FieldOrder,
			"labels":        prediction.Labels,
			"feature_count": features.FeatureCount,
		})
	})

	router.POST("/predict", func(c *gin.Context) {
		var rec features.Record
		if err := c.ShouldBindJSON(&rec); err != nil {
			rejectPayload(c, err)
			return
		}

		result, err := deps.predictor.Predict(c.Request.Context(), rec)
		if err != nil {
			_ = c.Error(err)
			var perr *prediction.Error
			if !errors.As(err, &perr) {
				abortWithError(c, http.StatusInternalServerError, prediction.KindInference.String(), err.Error())
				return
			}
			abortWithError(c, statusForKind(perr.Kind), perr.Kind.String(), perr.Error())
			return
		}

		c.JSON(http.StatusOK, result)
	})

	router.GET("/predictions", func(c *gin.Context) {
		if deps.history == nil {
			abortWithError(c, http.StatusServiceUnavailable, "history_disabled", "prediction history requires ENABLE_DB=true")
			return
		}
		limit := store.DefaultRecentLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				abortWithError(c, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
				return
			}
			limit = n
		}

		entries, err := deps.history.Recent(c.Request.Context(), store.ClampLimit(limit))
		if err != nil {
			_ = c.Error(err)
			abortWithError(c, http.StatusInternalServerError, "history_error", "failed to load prediction history")
			return
		}
		c.JSON(http.StatusOK, gin.H{"predictions": entries, "count": len(entries)})
	})

	return router
}

func statusForKind(k prediction.Kind) int {
	switch k {
	case prediction.KindModelUnavailable:
		return http.StatusServiceUnavailable
	case prediction.KindInvalidInput:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// rejectPayload answers a body that failed binding. Type errors are 400,
// range violations 422 and oversized bodies 413.
func rejectPayload(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		abortWithError(c, http.StatusRequestEntityTooLarge, "payload_too_large", fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit))
		return
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, describeFieldError(fe))
		}
		perr := prediction.InvalidInput(verrs)
		_ = c.Error(perr)
		c.AbortWithStatusJSON(statusForKind(perr.Kind), gin.H{
			"success": false,
			"error":   perr.Kind.String(),
			"detail":  strings.Join(details, "; "),
			"fields":  details,
		})
		return
	}

	abortWithError(c, http.StatusBadRequest, "invalid_payload", err.Error())
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gte":
		return fmt.Sprintf("%s must be >= %s", fe.Field(), fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}

func abortWithError(c *gin.Context, status int, code, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": code, "detail": detail})
}

var fieldNamesOnce sync.Once

// useJSONFieldNames makes validation errors report JSON names
// (spo2_percent) instead of Go names (SpO2Percent).
func useJSONFieldNames() {
	fieldNamesOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
}

func limitBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
