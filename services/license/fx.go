package license

import (
	"fmt"

	"licensekeeper/pkg/config"
	"licensekeeper/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/gorm"
)

var Module = fx.Module("license.module",
	fx.Provide(
		NewService,
		NewHandler,
		NewHealthServer,
	),
)

var ServerModule = fx.Module("license.server",
	Module,
	fx.Invoke(
		migrate,
		registerRoutes,
		registerHealthServer,
	),
)

func migrate(cfg *config.Config, db *gorm.DB) error {
	if !cfg.Database.AutoMigrate {
		zap.L().Info("auto migrate disabled, skipping licenses table migration")
		return nil
	}

	if err := db.AutoMigrate(&License{}); err != nil {
		zap.L().Error("failed to migrate licenses table", zap.Error(err))
		return fmt.Errorf("migrate licenses: %w", err)
	}
	return nil
}

func registerRoutes(r *gin.Engine, cfg *config.Config, h *Handler) {
	RegisterRoutes(r, cfg.License.ValidatePath, cfg.Admin.TokenHash, h)
}

// RegisterRoutes mounts the public validation endpoint at validatePath and,
// when tokenHash is set, the admin API under /admin.
func RegisterRoutes(r gin.IRouter, validatePath, tokenHash string, h *Handler) {
	api := r.Group(validatePath, middleware.CORS())
	api.POST("", h.Validate)
	api.OPTIONS("", h.Preflight)
	for _, method := range []string{"GET", "PUT", "PATCH", "DELETE", "HEAD"} {
		api.Handle(method, "", h.MethodNotAllowed)
	}

	if tokenHash == "" {
		zap.L().Warn("ADMIN.TOKEN_HASH not set, admin API disabled")
		return
	}

	admin := r.Group("/admin", middleware.AdminAuth(tokenHash))
	admin.GET("/licenses", h.ListLicenses)
	admin.POST("/licenses", h.CreateLicense)
	admin.PATCH("/licenses/:client_id", h.UpdateValidity)
}

func registerHealthServer(server *grpc.Server, h *HealthServer) {
	grpc_health_v1.RegisterHealthServer(server, h)
}
