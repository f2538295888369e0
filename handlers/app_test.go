package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"quest-service/database"
	"quest-service/services"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const testGatewayToken = "gw-secret"

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testApp struct {
	app   *fiber.App
	clock *clockwork.FakeClock
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "quests.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	db := newTestDB(t)
	clock := clockwork.NewFakeClockAt(t0)
	reg := prometheus.NewRegistry()
	metrics := services.NewMetrics(reg)
	store := services.NewTrackingStore(db)
	catalog := services.NewCatalogService(db)
	progress := services.NewProgressionLedger(db, clock)
	visit := services.NewExternalVisitVerifier(store, catalog, progress, clock, metrics, services.ExternalVisitConfig{
		PublicBaseURL: "https://quests.example.com",
	})
	tracking := services.NewTrackingService(catalog, store, clock, metrics, visit)

	app := NewApp(AppOptions{GatewayToken: testGatewayToken}, Deps{
		DB:          db,
		Tracking:    tracking,
		Catalog:     catalog,
		Reconciler:  services.NewRewardReconciler(store, progress, clock, metrics, time.Minute),
		Progression: progress,
		Gatherer:    reg,
	})
	return &testApp{app: app, clock: clock}
}

type call struct {
	method  string
	path    string
	body    string
	user    string
	roles   string
	noAuth  bool
	headers map[string]string
}

func (ta *testApp) do(t *testing.T, c call) *http.Response {
	t.Helper()
	var body io.Reader
	if c.body != "" {
		body = strings.NewReader(c.body)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	if c.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if !c.noAuth {
		req.Header.Set("Authorization", "Bearer "+testGatewayToken)
	}
	if c.user != "" {
		req.Header.Set("X-User-ID", c.user)
	}
	if c.roles != "" {
		req.Header.Set("X-User-Roles", c.roles)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	resp, err := ta.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", c.method, c.path, err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return out
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	body := decode(t, resp)
	envelope, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("missing error envelope: %v", body)
	}
	code, _ := envelope["code"].(string)
	return code
}

func expectError(t *testing.T, resp *http.Response, status int, code string) {
	t.Helper()
	if resp.StatusCode != status {
		t.Fatalf("status = %d, want %d", resp.StatusCode, status)
	}
	if got := errorCode(t, resp); got != code {
		t.Fatalf("error code = %s, want %s", got, code)
	}
}

func (ta *testApp) createTask(t *testing.T, body string) string {
	t.Helper()
	resp := ta.do(t, call{method: http.MethodPost, path: "/admin/tasks", body: body, user: "admin-1", roles: "admin"})
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("create task: status %d: %v", resp.StatusCode, decode(t, resp))
	}
	task := decode(t, resp)
	return task["id"].(string)
}

const visitTask = `{"title":"Visit partner","type":"EXTERNAL_VISIT","target_url":"https://partner.example.com/?ref=quests","min_dwell_seconds":30,"reward_points":50,"reward_experience":120}`

func TestGatewayAuth(t *testing.T) {
	ta := newTestApp(t)

	resp := ta.do(t, call{method: http.MethodGet, path: "/healthz", noAuth: true})
	expectError(t, resp, fiber.StatusUnauthorized, "UNAUTHORIZED")

	resp = ta.do(t, call{method: http.MethodGet, path: "/healthz", noAuth: true, headers: map[string]string{"Authorization": "Bearer wrong"}})
	expectError(t, resp, fiber.StatusUnauthorized, "UNAUTHORIZED")

	resp = ta.do(t, call{method: http.MethodGet, path: "/healthz"})
	if resp.StatusCode != fiber.StatusOK || decode(t, resp)["status"] != "ok" {
		t.Fatalf("healthz failed: %d", resp.StatusCode)
	}
}

func TestUserAndRoleRequired(t *testing.T) {
	ta := newTestApp(t)

	resp := ta.do(t, call{method: http.MethodGet, path: "/user/completions"})
	expectError(t, resp, fiber.StatusUnauthorized, "UNAUTHORIZED")

	resp = ta.do(t, call{method: http.MethodGet, path: "/admin/tasks", user: "user-1", roles: "player, tester"})
	expectError(t, resp, fiber.StatusUnauthorized, "UNAUTHORIZED")

	resp = ta.do(t, call{method: http.MethodGet, path: "/admin/tasks", user: "user-1", roles: "player, admin"})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("admin list: %d", resp.StatusCode)
	}
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	ta := newTestApp(t)
	resp := ta.do(t, call{method: http.MethodGet, path: "/nope"})
	expectError(t, resp, fiber.StatusNotFound, "NOT_FOUND")
}

func TestVisitFlowOverHTTP(t *testing.T) {
	ta := newTestApp(t)
	taskID := ta.createTask(t, visitTask)

	resp := ta.do(t, call{method: http.MethodPost, path: "/tasks/" + taskID + "/track", user: "user-1"})
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("issue: %d", resp.StatusCode)
	}
	issued := decode(t, resp)
	token := issued["token"].(string)
	if !strings.Contains(issued["url"].(string), "tracking_token="+token) {
		t.Fatalf("url missing token: %v", issued["url"])
	}

	// The landing page needs only the token.
	resp = ta.do(t, call{method: http.MethodGet, path: "/track/" + token})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("verify: %d", resp.StatusCode)
	}
	verified := decode(t, resp)
	if verified["task_id"] != taskID || verified["min_dwell_seconds"].(float64) != 30 {
		t.Fatalf("unexpected verify body: %v", verified)
	}

	resp = ta.do(t, call{method: http.MethodGet, path: "/track/" + token + "/probe.js"})
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/javascript") {
		t.Fatalf("probe content type = %q", ct)
	}
	script, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(script), "/tasks/"+taskID+"/complete") {
		t.Fatalf("probe does not post to the completion endpoint")
	}

	ta.clock.Advance(time.Minute)
	resp = ta.do(t, call{
		method: http.MethodPost, path: "/tasks/" + taskID + "/complete", user: "user-1",
		body:    `{"token":"` + token + `","dwell_seconds":45}`,
		headers: map[string]string{"Referer": "https://partner.example.com/"},
	})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("complete: %d %v", resp.StatusCode, decode(t, resp))
	}
	done := decode(t, resp)
	if done["success"] != true || done["rewards_issued"] != true {
		t.Fatalf("unexpected completion body: %v", done)
	}

	resp = ta.do(t, call{
		method: http.MethodPost, path: "/tasks/" + taskID + "/complete", user: "user-1",
		body: `{"token":"` + token + `","dwell_seconds":45}`,
	})
	expectError(t, resp, fiber.StatusConflict, "ALREADY_COMPLETED")

	resp = ta.do(t, call{method: http.MethodGet, path: "/user/completions", user: "user-1"})
	list := decode(t, resp)
	if list["count"].(float64) != 1 {
		t.Fatalf("completions = %v", list)
	}

	resp = ta.do(t, call{method: http.MethodGet, path: "/user/progress", user: "user-1"})
	prog := decode(t, resp)
	if prog["total_points"].(float64) != 50 || prog["total_quests"].(float64) != 1 {
		t.Fatalf("unexpected progress: %v", prog)
	}
	if badges := prog["badges"].([]interface{}); len(badges) != 1 {
		t.Fatalf("badges = %v", badges)
	}
}

func TestCompleteRejectsBadBodies(t *testing.T) {
	ta := newTestApp(t)
	taskID := ta.createTask(t, visitTask)
	path := "/tasks/" + taskID + "/complete"

	resp := ta.do(t, call{method: http.MethodPost, path: path, user: "user-1", body: `{"token":"abc","dwell_seconds":-1}`})
	expectError(t, resp, fiber.StatusBadRequest, "VALIDATION_ERROR")

	resp = ta.do(t, call{method: http.MethodPost, path: path, user: "user-1", body: `{"token":"abc","dwell_seconds":"long"}`})
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	envelope := decode(t, resp)["error"].(map[string]interface{})
	if envelope["code"] != "VALIDATION_ERROR" {
		t.Fatalf("code = %v", envelope["code"])
	}
	if _, leaked := envelope["details"]; leaked {
		t.Fatalf("parser error leaked to the client: %v", envelope["details"])
	}

	resp = ta.do(t, call{method: http.MethodPost, path: path, user: "user-1", body: `{"dwell_seconds":40}`})
	expectError(t, resp, fiber.StatusBadRequest, "VALIDATION_ERROR")

	resp = ta.do(t, call{method: http.MethodPost, path: path, user: "user-1", body: `{"token":"unknown","dwell_seconds":40}`})
	expectError(t, resp, fiber.StatusNotFound, "NOT_FOUND")
}

func TestIssueErrors(t *testing.T) {
	ta := newTestApp(t)

	resp := ta.do(t, call{method: http.MethodPost, path: "/tasks/missing/track", user: "user-1"})
	expectError(t, resp, fiber.StatusNotFound, "NOT_FOUND")

	scoreTask := ta.createTask(t, `{"title":"High score","type":"IN_APP_SCORE"}`)
	resp = ta.do(t, call{method: http.MethodPost, path: "/tasks/" + scoreTask + "/track", user: "user-1"})
	expectError(t, resp, fiber.StatusBadRequest, "INVALID_TASK_TYPE")
}

func TestExpiredTokenOverHTTP(t *testing.T) {
	ta := newTestApp(t)
	taskID := ta.createTask(t, visitTask)
	resp := ta.do(t, call{method: http.MethodPost, path: "/tasks/" + taskID + "/track", user: "user-1"})
	token := decode(t, resp)["token"].(string)

	ta.clock.Advance(25 * time.Hour)
	resp = ta.do(t, call{method: http.MethodGet, path: "/track/" + token})
	expectError(t, resp, fiber.StatusGone, "EXPIRED")
}

func TestIssueQR(t *testing.T) {
	ta := newTestApp(t)
	taskID := ta.createTask(t, visitTask)

	resp := ta.do(t, call{method: http.MethodGet, path: "/tasks/" + taskID + "/track/qr", user: "user-1"})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("qr: %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type = %q", ct)
	}
	if resp.Header.Get("X-Tracking-Expires-At") != t0.Add(24*time.Hour).Format(time.RFC3339) {
		t.Fatalf("expires header = %q", resp.Header.Get("X-Tracking-Expires-At"))
	}
	png, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if len(png) < 8 || string(png[1:4]) != "PNG" {
		t.Fatalf("body is not a png")
	}
}

func TestCompletionsLimitValidation(t *testing.T) {
	ta := newTestApp(t)
	resp := ta.do(t, call{method: http.MethodGet, path: "/user/completions?limit=500", user: "user-1"})
	expectError(t, resp, fiber.StatusBadRequest, "VALIDATION_ERROR")
}

func TestAdminGrantAndPendingRewards(t *testing.T) {
	ta := newTestApp(t)

	resp := ta.do(t, call{method: http.MethodPost, path: "/admin/xp/grant", user: "admin-1", roles: "admin", body: `{"user_id":"user-7","points":5,"xp":150}`})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("grant: %d", resp.StatusCode)
	}
	if ref, _ := decode(t, resp)["reference"].(string); !strings.HasPrefix(ref, "grant:") {
		t.Fatalf("reference = %q", ref)
	}

	resp = ta.do(t, call{method: http.MethodPost, path: "/admin/xp/grant", user: "admin-1", roles: "admin", body: `{"user_id":"user-7"}`})
	expectError(t, resp, fiber.StatusBadRequest, "VALIDATION_ERROR")

	resp = ta.do(t, call{method: http.MethodGet, path: "/user/progress", user: "user-7"})
	prog := decode(t, resp)
	if prog["level"].(float64) != 2 || prog["total_quests"].(float64) != 0 {
		t.Fatalf("unexpected progress after grant: %v", prog)
	}

	resp = ta.do(t, call{method: http.MethodGet, path: "/admin/completions/pending-rewards", user: "admin-1", roles: "admin"})
	if decode(t, resp)["count"].(float64) != 0 {
		t.Fatalf("expected no pending rewards")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ta := newTestApp(t)
	taskID := ta.createTask(t, visitTask)
	ta.do(t, call{method: http.MethodPost, path: "/tasks/" + taskID + "/track", user: "user-1"})

	resp := ta.do(t, call{method: http.MethodGet, path: "/metrics"})
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "quest_tokens_issued_total 1") {
		t.Fatalf("metrics missing issued counter:\n%s", body)
	}
}

func TestCompleteAcceptsPlainTextBeacon(t *testing.T) {
	ta := newTestApp(t)
	taskID := ta.createTask(t, visitTask)
	resp := ta.do(t, call{method: http.MethodPost, path: "/tasks/" + taskID + "/track", user: "user-1"})
	token := decode(t, resp)["token"].(string)

	resp = ta.do(t, call{
		method: http.MethodPost, path: "/tasks/" + taskID + "/complete", user: "user-1",
		body:    `{"token":"` + token + `","dwell_seconds":31}`,
		headers: map[string]string{"Content-Type": "text/plain;charset=UTF-8"},
	})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("complete: %d %v", resp.StatusCode, decode(t, resp))
	}
	if done := decode(t, resp); done["success"] != true {
		t.Fatalf("unexpected completion body: %v", done)
	}
}
