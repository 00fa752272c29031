package admin

import (
	"context"
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

func setupHandlerTest(t *testing.T) (*Handler, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dsn := fmt.Sprintf("file:admin_handler_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	models.DB = db

	cfg := &config.Config{
		Device: config.DeviceConfig{Driver: constants.DeviceDriverNoop},
		Import: config.ImportConfig{
			ArtifactDir:            t.TempDir(),
			DefaultScriptKey:       constants.ScriptKeyAuto,
			PendingLimit:           10,
			DefaultAllocationCount: 2,
		},
	}
	h := New(provider.NewContainer(cfg))
	r := gin.New()
	r.POST("/numbers/import", h.ImportNumbers)
	r.POST("/allocations", h.Allocate)
	r.POST("/allocations/next-range", h.NextRange)
	r.POST("/executions", h.Execute)
	r.GET("/batches/:batch_id", h.GetBatch)
	r.POST("/sessions/:id/revert", h.RevertSession)
	r.PUT("/sessions/:id/industry", h.UpdateSessionIndustry)
	r.POST("/devices/:device_id/pending/enqueue", h.EnqueuePending)
	return h, r
}

func perform(t *testing.T, r *gin.Engine, method, path, contentType, body string) (int, json.RawMessage) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	r.ServeHTTP(w, req)
	var resp struct {
		StatusCode int             `json:"status_code"`
		Data       json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v body=%s", err, w.Body.String())
	}
	return resp.StatusCode, resp.Data
}

func TestImportNumbersJSONAndEmptyInput(t *testing.T) {
	_, r := setupHandlerTest(t)

	code, data := perform(t, r, http.MethodPost, "/numbers/import", "application/json", `{"content":"李四 13900000001\n13900000002","source_file":"b.txt"}`)
	if code != 0 {
		t.Fatalf("json import want success got %d", code)
	}
	var result struct {
		Inserted int `json:"inserted"`
	}
	if err := json.Unmarshal(data, &result); err != nil || result.Inserted != 2 {
		t.Fatalf("unexpected import result: %s", string(data))
	}

	code, _ = perform(t, r, http.MethodPost, "/numbers/import", "text/plain", "# nothing here\nabc")
	if code != response.CodeBadRequest {
		t.Fatalf("empty import want 400 got %d", code)
	}
}

func TestAllocateUsesDefaultCountAndReportsEmptyPool(t *testing.T) {
	h, r := setupHandlerTest(t)

	code, _ := perform(t, r, http.MethodPost, "/allocations", "application/json", `{"device_id":"dev-1"}`)
	if code != response.CodeNotFound {
		t.Fatalf("allocate from empty pool want 404 got %d", code)
	}

	if _, err := h.NumberPoolService.ImportFromText(context.Background(), "13800000001\n13800000002\n13800000003", "c.txt"); err != nil {
		t.Fatalf("seed numbers failed: %v", err)
	}
	code, data := perform(t, r, http.MethodPost, "/allocations", "application/json", `{"device_id":"dev-1"}`)
	if code != 0 {
		t.Fatalf("allocate want success got %d", code)
	}
	var result struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(data, &result); err != nil || result.Count != 2 {
		t.Fatalf("default allocation count should be 2, got %s", string(data))
	}

	code, _ = perform(t, r, http.MethodPost, "/allocations", "application/json", `{"device_id":"dev-1","count":-1}`)
	if code != response.CodeBadRequest {
		t.Fatalf("negative count want 400 got %d", code)
	}
}

func TestNextRangeSingleAndBulk(t *testing.T) {
	_, r := setupHandlerTest(t)

	code, data := perform(t, r, http.MethodPost, "/allocations/next-range", "application/json", `{"existing":[{"start":1,"end":10}],"count":5}`)
	if code != 0 {
		t.Fatalf("next range want success got %d", code)
	}
	var single struct {
		Range struct {
			Start int64 `json:"start"`
			End   int64 `json:"end"`
		} `json:"range"`
	}
	if err := json.Unmarshal(data, &single); err != nil || single.Range.Start != 11 || single.Range.End != 15 {
		t.Fatalf("unexpected next range: %s", string(data))
	}

	code, data = perform(t, r, http.MethodPost, "/allocations/next-range", "application/json", `{"count":3,"device_ids":["a","b"]}`)
	if code != 0 {
		t.Fatalf("bulk assign want success got %d", code)
	}
	var bulk struct {
		Assignments []struct {
			DeviceID string `json:"device_id"`
		} `json:"assignments"`
	}
	if err := json.Unmarshal(data, &bulk); err != nil || len(bulk.Assignments) != 2 {
		t.Fatalf("unexpected bulk assignments: %s", string(data))
	}
}

func TestNotFoundMappings(t *testing.T) {
	_, r := setupHandlerTest(t)

	if code, _ := perform(t, r, http.MethodGet, "/batches/vcf_missing", "", ""); code != response.CodeNotFound {
		t.Fatalf("missing batch want 404 got %d", code)
	}
	if code, _ := perform(t, r, http.MethodPost, "/sessions/99/revert", "", ""); code != response.CodeNotFound {
		t.Fatalf("missing session revert want 404 got %d", code)
	}
	if code, _ := perform(t, r, http.MethodPost, "/sessions/abc/revert", "", ""); code != response.CodeBadRequest {
		t.Fatalf("invalid session id want 400 got %d", code)
	}
	if code, _ := perform(t, r, http.MethodPut, "/sessions/99/industry", "application/json", `{"industry":"retail"}`); code != response.CodeNotFound {
		t.Fatalf("missing session industry want 404 got %d", code)
	}
}

func TestUpdateSessionIndustryTagsNumbers(t *testing.T) {
	h, r := setupHandlerTest(t)
	ctx := context.Background()
	if _, err := h.NumberPoolService.ImportFromText(ctx, "13800000001\n13800000002", "d.txt"); err != nil {
		t.Fatalf("seed numbers failed: %v", err)
	}
	allocated, err := h.AllocationService.AllocateToDevice(ctx, service.AllocateInput{DeviceID: "dev-2", Count: 2})
	if err != nil {
		t.Fatalf("allocate failed: %v", err)
	}

	code, data := perform(t, r, http.MethodPut, fmt.Sprintf("/sessions/%d/industry", allocated.SessionID), "application/json", `{"industry":"retail","tag_numbers":true}`)
	if code != 0 {
		t.Fatalf("update industry want success got %d", code)
	}
	var result struct {
		Tagged int64 `json:"tagged"`
	}
	if err := json.Unmarshal(data, &result); err != nil || result.Tagged != 2 {
		t.Fatalf("expected 2 tagged numbers, got %s", string(data))
	}
	session, err := h.SessionLedger.GetSession(ctx, allocated.SessionID)
	if err != nil || session.Industry == nil || *session.Industry != "retail" {
		t.Fatalf("session industry not updated: %+v err=%v", session, err)
	}
}

func TestEnqueuePendingWithoutQueue(t *testing.T) {
	_, r := setupHandlerTest(t)
	if code, _ := perform(t, r, http.MethodPost, "/devices/dev-1/pending/enqueue", "", ""); code != response.CodeUnavailable {
		t.Fatalf("disabled queue want 503 got %d", code)
	}
}

func TestExecuteRequiresConsumptionStrategy(t *testing.T) {
	h, r := setupHandlerTest(t)
	if _, err := h.NumberPoolService.ImportFromText(context.Background(), "13800000001\n13800000002", "e.txt"); err != nil {
		t.Fatalf("seed numbers failed: %v", err)
	}
	body := `{"assignments":[{"device_id":"dev-1","start":1,"end":2}]}`
	code, _ := perform(t, r, http.MethodPost, "/executions", "application/json", body)
	if code != response.CodeBadRequest {
		t.Fatalf("execution without strategy want 400 got %d", code)
	}

	body = `{"assignments":[{"device_id":"dev-1","start":1,"end":2}],"consumption":"merged"}`
	code, data := perform(t, r, http.MethodPost, "/executions", "application/json", body)
	if code != 0 {
		t.Fatalf("execution with strategy want success got %d: %s", code, string(data))
	}
	var result struct {
		SuccessDevices int `json:"success_devices"`
	}
	if err := json.Unmarshal(data, &result); err != nil || result.SuccessDevices != 1 {
		t.Fatalf("unexpected execution result: %s", string(data))
	}
}
