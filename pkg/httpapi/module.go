package httpapi

import (
	"fmt"
	"reflect"
	"strings"

	"licensekeeper/pkg/config"
	"licensekeeper/pkg/errutil"
	"licensekeeper/pkg/health"
	"licensekeeper/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("httpapi",
	health.Module,
	fx.Provide(NewEngine),
	fx.Invoke(
		registerHealthEndpoints,
		registerMetricsEndpoint,
	),
)

// NewEngine builds the gin engine shared by every route group. Validation
// errors from request binding report JSON field names.
//
// Routes match on the escaped path, so an encoded "/" in a path parameter
// (client ids such as "org/USER_1") stays inside its segment; values are
// unescaped before handlers see them.
func NewEngine(cfg *config.Config) *gin.Engine {
	if cfg != nil && cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	registerJSONTagNames()

	r := gin.New()
	r.UseRawPath = true
	r.UnescapePathValues = true

	// Error wraps Recovery so a recovered panic is rendered as JSON.
	r.Use(
		middleware.Logger(),
		middleware.Error(),
		gin.CustomRecovery(recoverPanic),
	)
	return r
}

func recoverPanic(c *gin.Context, recovered any) {
	_ = c.Error(errutil.Internal(errutil.InternalMessage, fmt.Errorf("panic: %v", recovered)))
	c.Abort()
}

func registerJSONTagNames() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		zap.L().Warn("gin validator engine is not go-playground/validator; field names stay Go-style")
		return
	}

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
}

func registerHealthEndpoints(r *gin.Engine, h health.HealthService) {
	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)
}

func registerMetricsEndpoint(r *gin.Engine) {
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
