package router

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/contact-dispatch/internal/config"
	"github.com/contact-dispatch/internal/constants"
	"github.com/contact-dispatch/internal/http/response"
	"github.com/contact-dispatch/internal/models"
	"github.com/contact-dispatch/internal/provider"
	"github.com/contact-dispatch/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type envelope struct {
	StatusCode int                 `json:"status_code"`
	Msg        string              `json:"msg"`
	Data       json.RawMessage     `json:"data"`
	Pagination response.Pagination `json:"pagination"`
}

func setupRouterTest(t *testing.T, jwtEnabled bool) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dsn := fmt.Sprintf("file:router_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	models.DB = db

	cfg := &config.Config{
		Server: config.ServerConfig{Mode: "debug"},
		JWT:    config.JWTConfig{Enabled: jwtEnabled, SecretKey: "router-secret", Issuer: "contact-dispatch"},
		Device: config.DeviceConfig{Driver: constants.DeviceDriverNoop},
		Import: config.ImportConfig{
			ArtifactDir:         t.TempDir(),
			DefaultScriptKey:    constants.ScriptKeyAuto,
			PendingLimit:        10,
			ConsumptionStrategy: constants.ConsumptionPerRange,
		},
	}
	return SetupRouter(cfg, provider.NewContainer(cfg))
}

func doJSON(t *testing.T, r *gin.Engine, method, path, contentType, body string, headers map[string]string) envelope {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("%s %s: http status want 200 got %d", method, path, w.Code)
	}
	var resp envelope
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("%s %s: unmarshal response failed: %v body=%s", method, path, err, w.Body.String())
	}
	return resp
}

func TestRouterAllocateAndProcessPendingFlow(t *testing.T) {
	r := setupRouterTest(t, false)

	resp := doJSON(t, r, http.MethodPost, "/api/v1/numbers/import?source_file=a.txt", "text/plain", "13800000001\n13800000002\n# skip\n13800000003", nil)
	if resp.StatusCode != 0 {
		t.Fatalf("import numbers failed: %+v", resp)
	}
	var imported service.NumberImportResult
	if err := json.Unmarshal(resp.Data, &imported); err != nil {
		t.Fatalf("decode import result failed: %v", err)
	}
	if imported.Inserted != 3 {
		t.Fatalf("inserted want 3 got %d", imported.Inserted)
	}

	resp = doJSON(t, r, http.MethodPost, "/api/v1/allocations", "application/json", `{"device_id":"dev-1","count":2}`, nil)
	if resp.StatusCode != 0 {
		t.Fatalf("allocate failed: %+v", resp)
	}
	var allocated service.AllocateResult
	if err := json.Unmarshal(resp.Data, &allocated); err != nil {
		t.Fatalf("decode allocation failed: %v", err)
	}
	if allocated.Count != 2 || allocated.BatchID == "" || allocated.SessionID == 0 {
		t.Fatalf("unexpected allocation: %+v", allocated)
	}

	resp = doJSON(t, r, http.MethodGet, "/api/v1/devices/dev-1/bindings", "", "", nil)
	var bindings service.DeviceBindings
	if err := json.Unmarshal(resp.Data, &bindings); err != nil {
		t.Fatalf("decode bindings failed: %v", err)
	}
	if len(bindings.Pending) != 1 || bindings.Pending[0] != allocated.BatchID {
		t.Fatalf("unexpected bindings before processing: %+v", bindings)
	}

	resp = doJSON(t, r, http.MethodPost, "/api/v1/devices/dev-1/pending/process", "", "", nil)
	var summary service.PendingSummary
	if err := json.Unmarshal(resp.Data, &summary); err != nil {
		t.Fatalf("decode summary failed: %v", err)
	}
	if summary.Total != 1 || summary.Success != 1 {
		t.Fatalf("unexpected pending summary: %+v", summary)
	}

	resp = doJSON(t, r, http.MethodGet, "/api/v1/sessions?device_id=dev-1", "", "", nil)
	var sessions []models.ImportSession
	if err := json.Unmarshal(resp.Data, &sessions); err != nil {
		t.Fatalf("decode sessions failed: %v", err)
	}
	if resp.Pagination.Total != 1 || len(sessions) != 1 || sessions[0].Status != constants.SessionStatusSuccess {
		t.Fatalf("unexpected sessions: %+v pagination=%+v", sessions, resp.Pagination)
	}

	resp = doJSON(t, r, http.MethodGet, "/api/v1/numbers/stats", "", "", nil)
	var stats struct {
		Total int64 `json:"total"`
		Used  int64 `json:"used"`
	}
	if err := json.Unmarshal(resp.Data, &stats); err != nil {
		t.Fatalf("decode stats failed: %v", err)
	}
	if stats.Total != 3 || stats.Used != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	resp = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%d/revert", sessions[0].ID), "application/json", `{"reason":"wrong device"}`, nil)
	if resp.StatusCode != 0 {
		t.Fatalf("revert failed: %+v", resp)
	}
	resp = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/sessions/%d/revert", sessions[0].ID), "", "", nil)
	if resp.StatusCode != response.CodeConflict {
		t.Fatalf("second revert should conflict, got %+v", resp)
	}
}

func TestRouterRejectsOverlappingAssignments(t *testing.T) {
	r := setupRouterTest(t, false)
	body := `{"assignments":[{"device_id":"a","start":1,"end":6},{"device_id":"b","start":5,"end":9}]}`

	resp := doJSON(t, r, http.MethodPost, "/api/v1/allocations/conflicts", "application/json", body, nil)
	var checked struct {
		OK        bool `json:"ok"`
		Conflicts []struct {
			DeviceA string `json:"device_a"`
			DeviceB string `json:"device_b"`
		} `json:"conflicts"`
	}
	if err := json.Unmarshal(resp.Data, &checked); err != nil {
		t.Fatalf("decode conflicts failed: %v", err)
	}
	if checked.OK || len(checked.Conflicts) != 1 {
		t.Fatalf("expected one conflict, got %+v", checked)
	}

	resp = doJSON(t, r, http.MethodPost, "/api/v1/executions", "application/json", body, nil)
	if resp.StatusCode != response.CodeConflict {
		t.Fatalf("execution with overlap want 409 got %+v", resp)
	}
}

func TestRouterRequiresTokenWhenJWTEnabled(t *testing.T) {
	r := setupRouterTest(t, true)

	resp := doJSON(t, r, http.MethodGet, "/api/v1/numbers", "", "", nil)
	if resp.StatusCode != response.CodeUnauthorized {
		t.Fatalf("missing token want 401 got %+v", resp)
	}

	token, _, err := service.IssueOperatorToken("router-secret", "contact-dispatch", "ops", time.Hour)
	if err != nil {
		t.Fatalf("issue token failed: %v", err)
	}
	resp = doJSON(t, r, http.MethodGet, "/api/v1/numbers", "", "", map[string]string{"Authorization": "Bearer " + token})
	if resp.StatusCode != 0 {
		t.Fatalf("authorized list want success got %+v", resp)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("health should stay public, got %d", w.Code)
	}
}

func TestBuildRouteCatalog(t *testing.T) {
	r := setupRouterTest(t, false)
	items := buildRouteCatalog(r)
	found := false
	for _, item := range items {
		if item.Path == "/health" {
			t.Fatalf("catalog should only list api routes")
		}
		if item.Method == http.MethodPost && item.Path == "/api/v1/executions" {
			found = true
			if item.Module != "executions" {
				t.Fatalf("module want executions got %s", item.Module)
			}
		}
	}
	if !found {
		t.Fatalf("executions route missing from catalog")
	}
	if deriveRouteModule("/api/v1") != "system" {
		t.Fatalf("empty path should map to system module")
	}
}
