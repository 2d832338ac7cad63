package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("health", fx.Provide(ProvideHealth))

const (
	statusHealthy   = "healthly"
	statusUnhealthy = "unhealthly"
	pingTimeout     = 2 * time.Second
)

type Dependency struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type Health struct {
	Status  string       `json:"status"`
	Message string       `json:"message"`
	Deps    []Dependency `json:"deps,omitempty"`
}

type HealthService interface {
	Liveness(c *gin.Context)
	Readiness(c *gin.Context)
}

type health struct {
	db *gorm.DB
}

type HealthParams struct {
	fx.In
	DB *gorm.DB `optional:"true"`
}

func ProvideHealth(p HealthParams) HealthService {
	return &health{
		db: p.DB,
	}
}

func (h *health) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, &Health{
		Status:  statusHealthy,
		Message: "OK",
	})
}

func (h *health) Readiness(c *gin.Context) {
	this := &Health{
		Status:  statusHealthy,
		Message: "OK",
	}

	deps := make([]Dependency, 0, 1)
	if h.db != nil {
		dep := h.checkDatabase(c.Request.Context())
		if dep.Status != statusHealthy {
			this.Status = statusUnhealthy
			this.Message = "dependency unavailable"
		}
		deps = append(deps, dep)
	}

	this.Deps = deps

	code := http.StatusOK
	if this.Status != statusHealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, this)
}

func (h *health) checkDatabase(ctx context.Context) Dependency {
	dep := Dependency{
		Name:    h.db.Name(),
		Status:  statusHealthy,
		Message: "OK",
	}

	sqlDB, err := h.db.DB()
	if err != nil {
		dep.Status = statusUnhealthy
		dep.Message = err.Error()
		return dep
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		dep.Status = statusUnhealthy
		dep.Message = err.Error()
	}

	return dep
}
