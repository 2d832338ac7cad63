package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"licensekeeper/pkg/db"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(t *testing.T, h HealthService, path string) (*httptest.ResponseRecorder, Health) {
	t.Helper()

	r := gin.New()
	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	var body Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestLiveness(t *testing.T) {
	w, body := serve(t, ProvideHealth(HealthParams{}), "/healthz")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "healthly", body.Status)
}

func TestReadinessWithDatabase(t *testing.T) {
	gdb, err := db.NewTest()
	require.NoError(t, err)

	w, body := serve(t, ProvideHealth(HealthParams{DB: gdb}), "/readyz")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, body.Deps, 1)
	require.Equal(t, "sqlite", body.Deps[0].Name)
	require.Equal(t, "healthly", body.Deps[0].Status)
}

func TestReadinessClosedDatabase(t *testing.T) {
	gdb, err := db.NewTest()
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	w, body := serve(t, ProvideHealth(HealthParams{DB: gdb}), "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, "unhealthly", body.Status)
	require.Equal(t, "unhealthly", body.Deps[0].Status)
}
