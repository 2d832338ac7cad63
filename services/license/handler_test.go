package license

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"

	"licensekeeper/pkg/config"
	"licensekeeper/pkg/httpapi"
	"licensekeeper/pkg/middleware"
	"licensekeeper/services/testutil"
)

const adminToken = "s3cret-admin"

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	t      *testing.T
	engine *gin.Engine
}

func newTestEngine(t *testing.T, svc *Service) *testServer {
	t.Helper()

	hash, err := middleware.HashToken(adminToken, bcrypt.MinCost)
	require.NoError(t, err)

	engine := httpapi.NewEngine(&config.Config{AppEnv: "test"})
	RegisterRoutes(engine, "/api", hash, NewHandler(svc))
	return &testServer{t: t, engine: engine}
}

func newSQLiteServer(t *testing.T) *testServer {
	t.Helper()

	db := testutil.NewTestDB(t, &License{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return newTestEngine(t, newService(NewRepository(db), node, func() time.Time { return fixedNow }))
}

func (s *testServer) do(method, path, body string, token string) (*httptest.ResponseRecorder, map[string]any) {
	s.t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func requireCORS(t *testing.T, w *httptest.ResponseRecorder) {
	t.Helper()
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "POST, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
	require.Equal(t, "Content-Type", w.Header().Get("Access-Control-Allow-Headers"))
}

func TestCreateThenValidateThenExpire(t *testing.T) {
	s := newSQLiteServer(t)

	w, body := s.do(http.MethodPost, "/admin/licenses",
		`{"client_id":"USER_1","license_key":"ABC123","valid_until":"2099-01-01"}`, adminToken)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, "USER_1", body["client_id"])
	require.Equal(t, "ABC123", body["license_key"])
	require.Equal(t, "2099-01-01", body["valid_until"])
	require.NotEmpty(t, body["id"])

	w, body = s.do(http.MethodPost, "/api", `{"client_id":"USER_1","license_key":"ABC123"}`, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, map[string]any{"status": "valid", "valid_until": "2099-01-01"}, body)
	requireCORS(t, w)

	w, body = s.do(http.MethodPatch, "/admin/licenses/USER_1", `{"valid_until":"2000-01-01"}`, adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "USER_1", body["client_id"])
	require.Equal(t, "2000-01-01", body["valid_until"])
	require.EqualValues(t, 1, body["rows_affected"])

	w, body = s.do(http.MethodPost, "/api", `{"client_id":"USER_1","license_key":"ABC123"}`, "")
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, map[string]any{"status": "expired", "valid_until": "2000-01-01"}, body)
	requireCORS(t, w)
}

func TestValidateRejectsUnknownPair(t *testing.T) {
	s := newSQLiteServer(t)

	_, _ = s.do(http.MethodPost, "/admin/licenses",
		`{"client_id":"USER_1","license_key":"ABC123","valid_until":"2099-01-01"}`, adminToken)

	for _, payload := range []string{
		`{"client_id":"USER_1","license_key":"WRONG"}`,
		`{"client_id":"USER_2","license_key":"ABC123"}`,
		`{"client_id":"user_1","license_key":"ABC123"}`,
	} {
		w, body := s.do(http.MethodPost, "/api", payload, "")
		require.Equal(t, http.StatusForbidden, w.Code, payload)
		require.Equal(t, map[string]any{"error": "Subscription expired or invalid key."}, body)
		requireCORS(t, w)
	}
}

func TestValidateBadRequests(t *testing.T) {
	svc, _ := newTestService(t)
	s := newTestEngine(t, svc)

	tests := []struct {
		body string
		want string
	}{
		{body: "", want: "Invalid JSON body."},
		{body: "not json", want: "Invalid JSON body."},
		{body: "[1,2]", want: "Invalid JSON body."},
		{body: "null", want: "Invalid JSON body."},
		{body: `{"client_id":5,"license_key":"x"}`, want: "Invalid JSON body."},
		{body: `{"client_id":"USER_1","license_key":"ABC123"} x`, want: "Invalid JSON body."},
		{body: `{"client_id":"USER_1","license_key":"ABC123"}{}`, want: "Invalid JSON body."},
		{body: `{"client_id":"USER_1"}`, want: "Missing client_id or license_key."},
		{body: `{"license_key":"ABC123"}`, want: "Missing client_id or license_key."},
		{body: `{"client_id":"","license_key":""}`, want: "Missing client_id or license_key."},
	}

	for _, tt := range tests {
		w, body := s.do(http.MethodPost, "/api", tt.body, "")
		require.Equal(t, http.StatusBadRequest, w.Code, tt.body)
		require.Equal(t, map[string]any{"error": tt.want}, body, tt.body)
		requireCORS(t, w)
	}
}

func TestValidateStoreFailure(t *testing.T) {
	svc, repo := newTestService(t)
	repo.EXPECT().FindByCredentials(gomock.Any(), "USER_1", "ABC123").Return(nil, errors.New("dial tcp: refused"))
	s := newTestEngine(t, svc)

	w, body := s.do(http.MethodPost, "/api", `{"client_id":"USER_1","license_key":"ABC123"}`, "")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, map[string]any{"error": "An unexpected server error occurred."}, body)
	requireCORS(t, w)
}

func TestValidateEndpointMethods(t *testing.T) {
	svc, _ := newTestService(t)
	s := newTestEngine(t, svc)

	w, body := s.do(http.MethodOptions, "/api", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, body)
	require.Equal(t, "{}", w.Body.String())
	requireCORS(t, w)

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		w, body := s.do(method, "/api", "", "")
		require.Equal(t, http.StatusMethodNotAllowed, w.Code, method)
		require.Equal(t, map[string]any{"error": "Method Not Allowed"}, body)
		requireCORS(t, w)
	}

	req := httptest.NewRequest(http.MethodHead, "/api", nil)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	requireCORS(t, rec)
}

func TestAdminRequiresToken(t *testing.T) {
	svc, _ := newTestService(t)
	s := newTestEngine(t, svc)

	for _, token := range []string{"", "wrong"} {
		w, body := s.do(http.MethodGet, "/admin/licenses", "", token)
		require.Equal(t, http.StatusUnauthorized, w.Code)
		require.Equal(t, map[string]any{"error": "Unauthorized."}, body)
	}
}

func TestAdminDisabledWithoutHash(t *testing.T) {
	svc, _ := newTestService(t)
	engine := httpapi.NewEngine(&config.Config{AppEnv: "test"})
	RegisterRoutes(engine, "/api", "", NewHandler(svc))

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/licenses", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminListMasksKeys(t *testing.T) {
	s := newSQLiteServer(t)

	for _, payload := range []string{
		`{"client_id":"OLD","license_key":"OLDKEY-1234567","valid_until":"2020-05-01"}`,
		`{"client_id":"NEW","license_key":"NEWKEY-1234567","valid_until":"2030-05-01"}`,
	} {
		w, _ := s.do(http.MethodPost, "/admin/licenses", payload, adminToken)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w, body := s.do(http.MethodGet, "/admin/licenses", "", adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 2, body["count"])

	licenses := body["licenses"].([]any)
	first := licenses[0].(map[string]any)
	require.Equal(t, "NEW", first["client_id"])
	require.Equal(t, "NEWKEY-1...", first["license_key_prefix"])
	require.Equal(t, "2030-05-01", first["valid_until"])
	require.NotContains(t, w.Body.String(), "NEWKEY-1234567")
}

func TestAdminListStoreErrorIsEmpty(t *testing.T) {
	svc, repo := newTestService(t)
	repo.EXPECT().List(gomock.Any()).Return(nil, errors.New("boom"))
	s := newTestEngine(t, svc)

	w, body := s.do(http.MethodGet, "/admin/licenses", "", adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []any{}, body["licenses"])
	require.EqualValues(t, 0, body["count"])
}

func TestAdminCreateValidation(t *testing.T) {
	svc, _ := newTestService(t)
	s := newTestEngine(t, svc)

	w, body := s.do(http.MethodPost, "/admin/licenses", `{"client_id":"USER_1"}`, adminToken)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	details := body["details"].([]any)
	require.Len(t, details, 2)
	require.Equal(t, "license_key", details[0].(map[string]any)["field"])
	require.Equal(t, "valid_until", details[1].(map[string]any)["field"])

	w, body = s.do(http.MethodPost, "/admin/licenses",
		`{"client_id":"USER_1","license_key":"K","valid_until":"tomorrow"}`, adminToken)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.Equal(t, "valid_until must be a date in YYYY-MM-DD format",
		body["details"].([]any)[0].(map[string]any)["message"])

	w, body = s.do(http.MethodPost, "/admin/licenses",
		`{"client_id":"   ","license_key":"K","valid_until":"2099-01-01"}`, adminToken)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.Equal(t, "client_id", body["details"].([]any)[0].(map[string]any)["field"])

	w, body = s.do(http.MethodPost, "/admin/licenses", `{broken`, adminToken)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "Invalid JSON body.", body["error"])
}

func TestAdminCreateStoreError(t *testing.T) {
	svc, repo := newTestService(t)
	repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("unique violation on secret column"))
	s := newTestEngine(t, svc)

	w, body := s.do(http.MethodPost, "/admin/licenses",
		`{"client_id":"USER_1","license_key":"K","valid_until":"2099-01-01"}`, adminToken)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, map[string]any{"error": "An unexpected server error occurred."}, body)
}

func TestAdminUpdateUnknownClient(t *testing.T) {
	s := newSQLiteServer(t)

	w, body := s.do(http.MethodPatch, "/admin/licenses/NOBODY", `{"valid_until":"2030-01-01"}`, adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 0, body["rows_affected"])

	w, _ = s.do(http.MethodPatch, "/admin/licenses/NOBODY", `{}`, adminToken)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestAdminUpdateClientIDWithSlash(t *testing.T) {
	s := newSQLiteServer(t)

	w, _ := s.do(http.MethodPost, "/admin/licenses",
		`{"client_id":"org/USER_1","license_key":"ABC123","valid_until":"2099-01-01"}`, adminToken)
	require.Equal(t, http.StatusCreated, w.Code)

	w, body := s.do(http.MethodPatch, "/admin/licenses/org%2FUSER_1", `{"valid_until":"2000-01-01"}`, adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "org/USER_1", body["client_id"])
	require.EqualValues(t, 1, body["rows_affected"])

	w, body = s.do(http.MethodPost, "/api", `{"client_id":"org/USER_1","license_key":"ABC123"}`, "")
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, map[string]any{"status": "expired", "valid_until": "2000-01-01"}, body)
}
