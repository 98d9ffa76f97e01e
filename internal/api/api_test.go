package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/dagr/internal/audit"
	"github.com/friendsincode/dagr/internal/events"
	"github.com/friendsincode/dagr/internal/models"
	"github.com/friendsincode/dagr/internal/planner"
	"github.com/friendsincode/dagr/internal/webhooks"
)

var testSecret = []byte("test-secret-0123456789abcdefghij")

func newTestAPI(t *testing.T) (*API, chi.Router, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{}, &models.Category{}, &models.DayPlan{}, &models.TimeWindow{}, &models.Task{},
		&models.AuditLog{}, &models.WebhookTarget{}, &models.WebhookLog{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	bus := events.NewBus()
	logger := zerolog.Nop()
	svc := planner.NewService(db, logger, bus, nil)
	validator := planner.NewValidator(db, logger)
	export := planner.NewExportService(db, logger)
	auditSvc := audit.NewService(db, bus, logger)
	webhookSvc := webhooks.NewService(db, bus, logger)

	a := New(db, testSecret, svc, validator, export, auditSvc, webhookSvc, bus, logger)
	r := chi.NewRouter()
	a.Routes(r)

	return a, r, db
}

func doJSON(t *testing.T, r chi.Router, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

// registerUser creates an account and returns its token.
func registerUser(t *testing.T, r chi.Router, email string) string {
	t.Helper()

	rr := doJSON(t, r, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":    email,
		"password": "hunter2hunter2",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register = %d, body=%s", rr.Code, rr.Body.String())
	}
	var resp authResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	return resp.Token
}

func createPlan(t *testing.T, r chi.Router, token, date string) string {
	t.Helper()

	rr := doJSON(t, r, http.MethodPost, "/api/v1/plans", token, map[string]string{"date": date})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create plan = %d, body=%s", rr.Code, rr.Body.String())
	}
	var plan models.DayPlan
	if err := json.NewDecoder(rr.Body).Decode(&plan); err != nil {
		t.Fatalf("decode plan: %v", err)
	}
	return plan.ID
}

func createWindow(t *testing.T, r chi.Router, token, planID, start, end string) models.TimeWindow {
	t.Helper()

	rr := doJSON(t, r, http.MethodPost, "/api/v1/plans/"+planID+"/windows", token, map[string]any{
		"start_time": start,
		"end_time":   end,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create window = %d, body=%s", rr.Code, rr.Body.String())
	}
	var window models.TimeWindow
	if err := json.NewDecoder(rr.Body).Decode(&window); err != nil {
		t.Fatalf("decode window: %v", err)
	}
	return window
}

func TestRegisterAndLogin(t *testing.T) {
	t.Parallel()

	_, r, _ := newTestAPI(t)
	registerUser(t, r, "ada@example.com")

	rr := doJSON(t, r, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "ada@example.com",
		"password": "hunter2hunter2",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("login = %d, body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, r, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "ada@example.com",
		"password": "wrong-password",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad login = %d, want 401", rr.Code)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	t.Parallel()

	_, r, _ := newTestAPI(t)
	registerUser(t, r, "dup@example.com")

	rr := doJSON(t, r, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":    "dup@example.com",
		"password": "hunter2hunter2",
	})
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate register = %d, want 409", rr.Code)
	}
}

func TestPlansRequireAuth(t *testing.T) {
	t.Parallel()

	_, r, _ := newTestAPI(t)

	rr := doJSON(t, r, http.MethodGet, "/api/v1/plans", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated list = %d, want 401", rr.Code)
	}
}

func TestCreateWindowRejectsBadTimes(t *testing.T) {
	t.Parallel()

	_, r, _ := newTestAPI(t)
	token := registerUser(t, r, "bad-times@example.com")
	planID := createPlan(t, r, token, "2026-04-01")

	rr := doJSON(t, r, http.MethodPost, "/api/v1/plans/"+planID+"/windows", token, map[string]any{
		"start_time": "26:00",
		"end_time":   "10:00",
	})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad window = %d, want 422, body=%s", rr.Code, rr.Body.String())
	}

	var outcome planner.CandidateOutcome
	if err := json.NewDecoder(rr.Body).Decode(&outcome); err != nil {
		t.Fatalf("decode outcome: %v", err)
	}
	if len(outcome.Violations) == 0 {
		t.Fatal("expected violations in response body")
	}
	if outcome.Violations[0].Message != "Invalid time" {
		t.Fatalf("message = %q, want %q", outcome.Violations[0].Message, "Invalid time")
	}
}

func TestCreateWindowRejectsOverlap(t *testing.T) {
	t.Parallel()

	_, r, _ := newTestAPI(t)
	token := registerUser(t, r, "overlap@example.com")
	planID := createPlan(t, r, token, "2026-04-01")
	createWindow(t, r, token, planID, "09:00", "10:00")

	rr := doJSON(t, r, http.MethodPost, "/api/v1/plans/"+planID+"/windows", token, map[string]any{
		"start_time": "09:30",
		"end_time":   "10:30",
	})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("overlapping window = %d, want 422, body=%s", rr.Code, rr.Body.String())
	}

	// Touching windows are fine.
	createWindow(t, r, token, planID, "10:00", "11:00")
}

func TestReflowGapFitNoRoomReturns409(t *testing.T) {
	t.Parallel()

	_, r, _ := newTestAPI(t)
	token := registerUser(t, r, "noroom@example.com")
	planID := createPlan(t, r, token, "2026-04-02")
	createWindow(t, r, token, planID, "09:00", "10:00")
	createWindow(t, r, token, planID, "10:00", "11:00")
	moved := createWindow(t, r, token, planID, "12:00", "13:00")

	rr := doJSON(t, r, http.MethodPost, "/api/v1/plans/"+planID+"/reflow", token, map[string]any{
		"window_id": moved.ID,
		"new_index": 1,
		"strategy":  "gap_fit",
	})
	if rr.Code != http.StatusConflict {
		t.Fatalf("no-room reflow = %d, want 409, body=%s", rr.Code, rr.Body.String())
	}
}

func TestReflowShift(t *testing.T) {
	t.Parallel()

	_, r, _ := newTestAPI(t)
	token := registerUser(t, r, "shift@example.com")
	planID := createPlan(t, r, token, "2026-04-03")
	first := createWindow(t, r, token, planID, "09:00", "10:00")
	second := createWindow(t, r, token, planID, "10:00", "11:00")

	rr := doJSON(t, r, http.MethodPost, "/api/v1/plans/"+planID+"/reflow", token, map[string]any{
		"window_id": second.ID,
		"new_index": 0,
		"strategy":  "shift",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("reflow = %d, body=%s", rr.Code, rr.Body.String())
	}

	var result planner.ReflowResult
	if err := json.NewDecoder(rr.Body).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(result.Plan.Windows) != 2 {
		t.Fatalf("windows = %d, want 2", len(result.Plan.Windows))
	}
	if result.Plan.Windows[0].ID != second.ID {
		t.Fatalf("first window = %s, want %s", result.Plan.Windows[0].ID, second.ID)
	}
	if result.Plan.Windows[1].ID != first.ID || result.Plan.Windows[1].StartMinute != 660 {
		t.Fatalf("second window = %s start %d, want %s start 660",
			result.Plan.Windows[1].ID, result.Plan.Windows[1].StartMinute, first.ID)
	}
}

func TestCompactEndpoint(t *testing.T) {
	t.Parallel()

	_, r, _ := newTestAPI(t)
	token := registerUser(t, r, "compact@example.com")
	planID := createPlan(t, r, token, "2026-04-04")
	createWindow(t, r, token, planID, "09:00", "10:00")
	createWindow(t, r, token, planID, "12:00", "13:00")

	rr := doJSON(t, r, http.MethodPost, "/api/v1/plans/"+planID+"/compact", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("compact = %d, body=%s", rr.Code, rr.Body.String())
	}

	var result planner.ReflowResult
	if err := json.NewDecoder(rr.Body).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	second := result.Plan.Windows[1]
	if second.StartMinute != 600 || second.EndMinute != 660 {
		t.Fatalf("second window = [%d,%d), want [600,660)", second.StartMinute, second.EndMinute)
	}
}

func TestPlanIsolationBetweenUsers(t *testing.T) {
	t.Parallel()

	_, r, _ := newTestAPI(t)
	ownerToken := registerUser(t, r, "owner@example.com")
	otherToken := registerUser(t, r, "other@example.com")
	planID := createPlan(t, r, ownerToken, "2026-04-05")

	rr := doJSON(t, r, http.MethodGet, "/api/v1/plans/"+planID, otherToken, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("foreign plan get = %d, want 404", rr.Code)
	}
}

func TestPlanExportICal(t *testing.T) {
	t.Parallel()

	_, r, _ := newTestAPI(t)
	token := registerUser(t, r, "export@example.com")
	planID := createPlan(t, r, token, "2026-04-06")
	createWindow(t, r, token, planID, "09:00", "10:00")

	rr := doJSON(t, r, http.MethodGet, "/api/v1/plans/"+planID+"/export?format=ics", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("export = %d, body=%s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/calendar; charset=utf-8" {
		t.Fatalf("content type = %q", ct)
	}
	if !bytes.Contains(rr.Body.Bytes(), []byte("BEGIN:VCALENDAR")) {
		t.Fatalf("body is not iCal: %s", rr.Body.String())
	}
}

func TestValidateEndpoint(t *testing.T) {
	t.Parallel()

	_, r, db := newTestAPI(t)
	token := registerUser(t, r, "validate@example.com")
	planID := createPlan(t, r, token, "2026-04-07")

	// Insert overlapping rows directly, bypassing candidate validation.
	for i, iv := range [][2]int{{540, 660}, {600, 720}} {
		w := models.TimeWindow{
			ID:          fmt.Sprintf("w-%d", i),
			DayPlanID:   planID,
			StartMinute: iv[0],
			EndMinute:   iv[1],
			Position:    i,
		}
		if err := db.Create(&w).Error; err != nil {
			t.Fatalf("create window: %v", err)
		}
	}

	rr := doJSON(t, r, http.MethodGet, "/api/v1/plans/"+planID+"/validate", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("validate = %d, body=%s", rr.Code, rr.Body.String())
	}

	var result models.ValidationResult
	if err := json.NewDecoder(rr.Body).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Valid || len(result.Errors) != 1 {
		t.Fatalf("result = %+v, want one overlap error", result)
	}
}

func TestUsersListRequiresAdmin(t *testing.T) {
	t.Parallel()

	_, r, _ := newTestAPI(t)
	// First registered account is admin, the second is a planner.
	adminToken := registerUser(t, r, "admin@example.com")
	plannerToken := registerUser(t, r, "planner@example.com")

	rr := doJSON(t, r, http.MethodGet, "/api/v1/users", plannerToken, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("planner users list = %d, want 403", rr.Code)
	}

	rr = doJSON(t, r, http.MethodGet, "/api/v1/users", adminToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("admin users list = %d, body=%s", rr.Code, rr.Body.String())
	}
}

func TestValidateCandidateDryRun(t *testing.T) {
	t.Parallel()

	_, r, db := newTestAPI(t)
	token := registerUser(t, r, "dryrun@example.com")
	planID := createPlan(t, r, token, "2026-04-09")
	createWindow(t, r, token, planID, "09:00", "10:00")

	rr := doJSON(t, r, http.MethodPost, "/api/v1/plans/"+planID+"/validate", token, map[string]string{
		"start_time": "09:30",
		"end_time":   "11:00",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("dry-run = %d, body=%s", rr.Code, rr.Body.String())
	}
	var outcome struct {
		Violations []models.ValidationViolation `json:"violations"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&outcome); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(outcome.Violations) != 1 || outcome.Violations[0].RuleType != models.RuleTypeOverlap {
		t.Fatalf("violations = %+v, want one overlap", outcome.Violations)
	}

	// A dry run never persists anything.
	var count int64
	db.Model(&models.TimeWindow{}).Count(&count)
	if count != 1 {
		t.Fatalf("window count = %d after dry run, want 1", count)
	}

	rr = doJSON(t, r, http.MethodPost, "/api/v1/plans/"+planID+"/validate", token, map[string]string{
		"start_time": "10:00",
		"end_time":   "11:00",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("dry-run valid = %d", rr.Code)
	}
	if err := json.NewDecoder(rr.Body).Decode(&outcome); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(outcome.Violations) != 0 {
		t.Fatalf("touching window flagged: %+v", outcome.Violations)
	}
}

func TestWindowsUpdateClearsOptionalFields(t *testing.T) {
	_, r, db := newTestAPI(t)
	token := registerUser(t, r, "clear@example.com")
	planID := createPlan(t, r, token, "2026-06-01")
	window := createWindow(t, r, token, planID, "09:00", "10:00")

	path := "/api/v1/plans/" + planID + "/windows/" + window.ID

	rr := doJSON(t, r, http.MethodPatch, path, token, map[string]any{
		"description": "deep work",
		"category_id": "cat-1",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("set fields = %d, body=%s", rr.Code, rr.Body.String())
	}

	// Omitted keys must not touch stored values.
	rr = doJSON(t, r, http.MethodPatch, path, token, map[string]any{"start_time": "09:30"})
	if rr.Code != http.StatusOK {
		t.Fatalf("move start = %d, body=%s", rr.Code, rr.Body.String())
	}
	var got models.TimeWindow
	if err := db.First(&got, "id = ?", window.ID).Error; err != nil {
		t.Fatalf("load window: %v", err)
	}
	if got.Description != "deep work" || got.CategoryID != "cat-1" {
		t.Fatalf("omitted fields changed: description=%q category=%q", got.Description, got.CategoryID)
	}

	// Explicit empty strings clear both.
	rr = doJSON(t, r, http.MethodPatch, path, token, map[string]any{
		"description": "",
		"category_id": "",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("clear fields = %d, body=%s", rr.Code, rr.Body.String())
	}
	if err := db.First(&got, "id = ?", window.ID).Error; err != nil {
		t.Fatalf("reload window: %v", err)
	}
	if got.Description != "" || got.CategoryID != "" {
		t.Fatalf("fields not cleared: description=%q category=%q", got.Description, got.CategoryID)
	}
}

func TestWindowsUpdatePositionReindexesSiblings(t *testing.T) {
	_, r, db := newTestAPI(t)
	token := registerUser(t, r, "reindex@example.com")
	planID := createPlan(t, r, token, "2026-06-02")

	first := createWindow(t, r, token, planID, "08:00", "09:00")
	second := createWindow(t, r, token, planID, "09:00", "10:00")
	third := createWindow(t, r, token, planID, "10:00", "11:00")

	rr := doJSON(t, r, http.MethodPatch, "/api/v1/plans/"+planID+"/windows/"+third.ID, token, map[string]any{
		"position": 0,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("move to front = %d, body=%s", rr.Code, rr.Body.String())
	}

	var windows []models.TimeWindow
	if err := db.Where("day_plan_id = ?", planID).Order("position ASC").Find(&windows).Error; err != nil {
		t.Fatalf("load windows: %v", err)
	}
	wantOrder := []string{third.ID, first.ID, second.ID}
	if len(windows) != len(wantOrder) {
		t.Fatalf("got %d windows, want %d", len(windows), len(wantOrder))
	}
	for i, w := range windows {
		if w.ID != wantOrder[i] {
			t.Errorf("position %d holds %s, want %s", i, w.ID, wantOrder[i])
		}
		if w.Position != i {
			t.Errorf("window %s position = %d, want %d", w.ID, w.Position, i)
		}
	}

	// Out-of-range indexes clamp instead of erroring, like a reflow drag.
	rr = doJSON(t, r, http.MethodPatch, "/api/v1/plans/"+planID+"/windows/"+third.ID, token, map[string]any{
		"position": 99,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("clamp move = %d, body=%s", rr.Code, rr.Body.String())
	}
	var moved models.TimeWindow
	if err := db.First(&moved, "id = ?", third.ID).Error; err != nil {
		t.Fatalf("reload moved window: %v", err)
	}
	if moved.Position != 2 {
		t.Fatalf("clamped position = %d, want 2", moved.Position)
	}
}
