package admin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cloudbsd/admin-panel/internal/config"
	"github.com/cloudbsd/admin-panel/internal/db"
	"github.com/cloudbsd/admin-panel/internal/ratelimit"
	"github.com/cloudbsd/admin-panel/internal/realtime"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T, demo bool, limiter *ratelimit.Manager) (*gin.Engine, *gorm.DB) {
	t.Helper()
	return newTestServerWithConfig(t, demo, limiter, nil)
}

func newTestServerWithConfig(t *testing.T, demo bool, limiter *ratelimit.Manager, mutate func(*config.Config)) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "admin.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(conn) })
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	if errSeed := db.Seed(conn, demo); errSeed != nil {
		t.Fatalf("seed: %v", errSeed)
	}

	cfg := config.Default()
	cfg.JWT.Secret = testSecret
	cfg.DemoMode = demo
	if mutate != nil {
		mutate(&cfg)
	}

	r := gin.New()
	RegisterAdminRoutes(r, conn, cfg, realtime.NewHub(), limiter)
	return r, conn
}

func doJSON(t *testing.T, r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

type loginResponse struct {
	Token string `json:"token"`
	User  struct {
		ID       uint64 `json:"id"`
		Username string `json:"username"`
		Role     string `json:"role"`
		Language string `json:"language"`
	} `json:"user"`
}

func login(t *testing.T, r http.Handler, username, password string) string {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/api/login", "", gin.H{"username": username, "password": password})
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d: %s", username, w.Code, w.Body.String())
	}
	return decode[loginResponse](t, w).Token
}

// createUser creates an account as admin and returns its id and token.
func createUser(t *testing.T, r http.Handler, adminToken, username, role string) (uint64, string) {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/api/users", adminToken, gin.H{
		"username": username,
		"password": username + "-pass",
		"role":     role,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create user %s: expected 201, got %d: %s", username, w.Code, w.Body.String())
	}
	created := decode[struct {
		ID   uint64 `json:"id"`
		Role string `json:"role"`
	}](t, w)
	if created.Role != role {
		t.Fatalf("expected role %s, got %s", role, created.Role)
	}
	return created.ID, login(t, r, username, username+"-pass")
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[struct {
		Error string `json:"error"`
	}](t, w).Error
}

func TestLogin(t *testing.T) {
	r, _ := newTestServer(t, true, nil)

	w := doJSON(t, r, http.MethodPost, "/api/login", "", gin.H{"username": "admin", "password": "admin"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode[loginResponse](t, w)
	if resp.Token == "" || resp.User.Username != "admin" || resp.User.Role != "admin" || resp.User.Language != "en" {
		t.Fatalf("unexpected login response: %+v", resp)
	}

	w = doJSON(t, r, http.MethodPost, "/api/login", "", gin.H{"username": "admin", "password": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if msg := errorMessage(t, w); msg != "Invalid credentials" {
		t.Fatalf("unexpected error message %q", msg)
	}

	w = doJSON(t, r, http.MethodPost, "/api/login", "", gin.H{"username": "ghost", "password": "admin"})
	if w.Code != http.StatusUnauthorized || errorMessage(t, w) != "Invalid credentials" {
		t.Fatalf("expected unknown user to look like a bad password, got %d: %s", w.Code, w.Body.String())
	}
}

func TestLoginIsThrottledPerClient(t *testing.T) {
	limiter := ratelimit.NewManager(ratelimit.SettingsConfig{
		Limit:  2,
		Window: time.Minute,
	}, nil, nil)
	r, _ := newTestServer(t, false, limiter)

	for i := 0; i < 2; i++ {
		w := doJSON(t, r, http.MethodPost, "/api/login", "", gin.H{"username": "admin", "password": "wrong"})
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, w.Code)
		}
	}
	w := doJSON(t, r, http.MethodPost, "/api/login", "", gin.H{"username": "admin", "password": "admin"})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d: %s", w.Code, w.Body.String())
	}
}

func postLoginFrom(r http.Handler, forwardedFor string) int {
	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(`{"username":"admin","password":"wrong"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", forwardedFor)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestLoginThrottleIgnoresForwardedForFromClients(t *testing.T) {
	limiter := ratelimit.NewManager(ratelimit.SettingsConfig{
		Limit:  2,
		Window: time.Minute,
	}, nil, nil)
	r, _ := newTestServer(t, false, limiter)

	codes := make([]int, 0, 6)
	for i := 0; i < 6; i++ {
		codes = append(codes, postLoginFrom(r, fmt.Sprintf("203.0.113.%d", i+1)))
	}
	want := []int{401, 401, 429, 429, 429, 429}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, codes)
		}
	}
}

func TestLoginThrottleTrustsConfiguredProxy(t *testing.T) {
	limiter := ratelimit.NewManager(ratelimit.SettingsConfig{
		Limit:  2,
		Window: time.Minute,
	}, nil, nil)
	// httptest requests come from 192.0.2.1.
	r, _ := newTestServerWithConfig(t, false, limiter, func(cfg *config.Config) {
		cfg.TrustedProxies = []string{"192.0.2.0/24"}
	})

	for i := 0; i < 4; i++ {
		if code := postLoginFrom(r, fmt.Sprintf("198.51.100.%d", i+1)); code != http.StatusUnauthorized {
			t.Fatalf("client %d: expected 401, got %d", i, code)
		}
	}
	if code := postLoginFrom(r, "198.51.100.1"); code != http.StatusUnauthorized {
		t.Fatalf("second attempt: expected 401, got %d", code)
	}
	if code := postLoginFrom(r, "198.51.100.1"); code != http.StatusTooManyRequests {
		t.Fatalf("third attempt: expected 429, got %d", code)
	}
}

func TestTokenChecks(t *testing.T) {
	r, _ := newTestServer(t, true, nil)

	w := doJSON(t, r, http.MethodGet, "/api/nodes", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: expected 401, got %d", w.Code)
	}
	if msg := errorMessage(t, w); msg != "Access token required" {
		t.Fatalf("unexpected message %q", msg)
	}

	w = doJSON(t, r, http.MethodGet, "/api/nodes", "not-a-jwt", nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("bad token: expected 403, got %d", w.Code)
	}

	token := login(t, r, "admin", "admin")
	w = doJSON(t, r, http.MethodGet, "/api/account", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("account: expected 200, got %d", w.Code)
	}
	account := decode[struct {
		Username    string `json:"username"`
		TOTPEnabled bool   `json:"totp_enabled"`
	}](t, w)
	if account.Username != "admin" || account.TOTPEnabled {
		t.Fatalf("unexpected account: %+v", account)
	}
}

func TestOperatorResourceLifecycle(t *testing.T) {
	r, _ := newTestServer(t, true, nil)
	adminToken := login(t, r, "admin", "admin")
	_, opToken := createUser(t, r, adminToken, "ops", "operator")

	w := doJSON(t, r, http.MethodPost, "/api/vms", opToken, gin.H{"name": "test-vm", "status": "running", "cpu": 2, "memory": "4GB"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create vm: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	created := decode[struct {
		ID     uint64 `json:"id"`
		Name   string `json:"name"`
		Status string `json:"status"`
	}](t, w)
	if created.Name != "test-vm" || created.Status != "stopped" {
		t.Fatalf("expected new vm to be stopped, got %+v", created)
	}

	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/vms/%d/start", created.ID), opToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("start vm: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	action := decode[struct {
		Message string `json:"message"`
		Status  string `json:"status"`
	}](t, w)
	if action.Message != fmt.Sprintf("Successfully started vms %d", created.ID) || action.Status != "running" {
		t.Fatalf("unexpected action response: %+v", action)
	}

	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/vms/%d", created.ID), opToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get vm: expected 200, got %d", w.Code)
	}
	if got := decode[struct {
		Status string `json:"status"`
	}](t, w).Status; got != "running" {
		t.Fatalf("expected running, got %s", got)
	}

	// The id belongs to a vm, so the containers route must not find it.
	w = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/containers/%d/stop", created.ID), opToken, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for mismatched kind, got %d", w.Code)
	}

	w = doJSON(t, r, http.MethodPut, fmt.Sprintf("/api/vms/%d", created.ID), opToken, gin.H{"name": "renamed-vm"})
	if w.Code != http.StatusOK {
		t.Fatalf("update vm: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodDelete, fmt.Sprintf("/api/vms/%d", created.ID), opToken, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete vm: expected 204, got %d", w.Code)
	}
	w = doJSON(t, r, http.MethodDelete, fmt.Sprintf("/api/vms/%d", created.ID), opToken, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", w.Code)
	}
}

func TestInvalidResourceRoutes(t *testing.T) {
	r, _ := newTestServer(t, true, nil)
	token := login(t, r, "admin", "admin")

	w := doJSON(t, r, http.MethodGet, "/api/bogus", token, nil)
	if w.Code != http.StatusBadRequest || errorMessage(t, w) != "Invalid resource type" {
		t.Fatalf("expected invalid resource type, got %d: %s", w.Code, w.Body.String())
	}
	w = doJSON(t, r, http.MethodPost, "/api/vms/1/explode", token, nil)
	if w.Code != http.StatusBadRequest || errorMessage(t, w) != "Invalid resource or action" {
		t.Fatalf("expected invalid action, got %d: %s", w.Code, w.Body.String())
	}
	w = doJSON(t, r, http.MethodPost, "/api/vms", token, gin.H{"name": "  "})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected blank name to be rejected, got %d", w.Code)
	}
}

func TestListJoinsNodeName(t *testing.T) {
	r, _ := newTestServer(t, true, nil)
	token := login(t, r, "admin", "admin")

	w := doJSON(t, r, http.MethodGet, "/api/containers", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	rows := decode[[]struct {
		Type     string  `json:"type"`
		NodeName *string `json:"node_name"`
	}](t, w)
	if len(rows) != 6 {
		t.Fatalf("expected 6 demo containers, got %d", len(rows))
	}
	for _, row := range rows {
		if row.Type != "containers" || row.NodeName == nil || *row.NodeName == "" {
			t.Fatalf("unexpected row: %+v", row)
		}
	}
}

func TestRoleGuardsAndGrants(t *testing.T) {
	r, _ := newTestServer(t, true, nil)
	adminToken := login(t, r, "admin", "admin")
	viewerID, viewerToken := createUser(t, r, adminToken, "watcher", "viewer")

	w := doJSON(t, r, http.MethodDelete, "/api/users/1", viewerToken, nil)
	if w.Code != http.StatusForbidden || errorMessage(t, w) != msgAdminRequired {
		t.Fatalf("viewer delete user: expected 403, got %d: %s", w.Code, w.Body.String())
	}
	w = doJSON(t, r, http.MethodPost, "/api/nodes", viewerToken, gin.H{"name": "n1"})
	if w.Code != http.StatusForbidden || errorMessage(t, w) != msgOperatorRequired {
		t.Fatalf("viewer create node: expected 403, got %d: %s", w.Code, w.Body.String())
	}
	w = doJSON(t, r, http.MethodGet, "/api/vms", viewerToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("viewer list vms: expected 200, got %d", w.Code)
	}
	w = doJSON(t, r, http.MethodPost, "/api/vms", viewerToken, gin.H{"name": "blocked"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("viewer create vm: expected 403, got %d", w.Code)
	}

	path := fmt.Sprintf("/api/users/%d/permissions", viewerID)
	w = doJSON(t, r, http.MethodPut, path, adminToken, gin.H{"permissions": []string{"vms:write", "vms:write"}})
	if w.Code != http.StatusOK {
		t.Fatalf("grant: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	w = doJSON(t, r, http.MethodGet, path, adminToken, nil)
	perms := decode[struct {
		Permissions []string `json:"permissions"`
	}](t, w).Permissions
	if len(perms) != 1 || perms[0] != "vms:write" {
		t.Fatalf("unexpected stored permissions: %v", perms)
	}

	w = doJSON(t, r, http.MethodPost, "/api/vms", viewerToken, gin.H{"name": "granted"})
	if w.Code != http.StatusCreated {
		t.Fatalf("granted create vm: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	w = doJSON(t, r, http.MethodPost, "/api/jails", viewerToken, gin.H{"name": "still-blocked"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("grant must not cover other kinds, got %d", w.Code)
	}

	w = doJSON(t, r, http.MethodPut, path, adminToken, gin.H{"permissions": []string{"nodes:write"}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown permission: expected 400, got %d", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/api/permissions", adminToken, nil)
	defs := decode[struct {
		Permissions []struct {
			Key string `json:"key"`
		} `json:"permissions"`
	}](t, w).Permissions
	if len(defs) != 9 {
		t.Fatalf("expected 9 permission definitions, got %d", len(defs))
	}
}

func TestUserManagement(t *testing.T) {
	r, _ := newTestServer(t, false, nil)
	adminToken := login(t, r, "admin", "admin")

	w := doJSON(t, r, http.MethodPost, "/api/users", adminToken, gin.H{"username": "admin", "password": "x"})
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate username: expected 409, got %d", w.Code)
	}

	w = doJSON(t, r, http.MethodDelete, "/api/users/1", adminToken, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("deleting self: expected 403, got %d", w.Code)
	}

	id, _ := createUser(t, r, adminToken, "temp", "viewer")
	w = doJSON(t, r, http.MethodDelete, fmt.Sprintf("/api/users/%d", id), adminToken, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete user: expected 204, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodGet, "/api/users", adminToken, nil)
	users := decode[[]map[string]any](t, w)
	if len(users) != 1 {
		t.Fatalf("expected only admin to remain, got %d", len(users))
	}
	if _, leaked := users[0]["password"]; leaked {
		t.Fatalf("user list must not expose password hashes")
	}
}

func TestClusterStatsAndNodes(t *testing.T) {
	r, _ := newTestServer(t, false, nil)
	token := login(t, r, "admin", "admin")

	w := doJSON(t, r, http.MethodPost, "/api/nodes", token, gin.H{
		"name":       "worker-a",
		"ip":         "10.0.0.2",
		"cpu_total":  4,
		"cpu_used":   1,
		"mem_total":  "16GB",
		"mem_used":   "4GB",
		"disk_total": "500GB",
		"disk_used":  "100GB",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create node: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	node := decode[struct {
		ID       uint64  `json:"id"`
		Role     string  `json:"role"`
		Status   string  `json:"status"`
		MemTotal *string `json:"mem_total"`
	}](t, w)
	if node.Role != "worker" || node.Status != "online" || node.MemTotal == nil || *node.MemTotal != "16GB" {
		t.Fatalf("unexpected node: %+v", node)
	}

	w = doJSON(t, r, http.MethodGet, "/api/cluster/stats", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats: expected 200, got %d", w.Code)
	}
	stats := decode[struct {
		CPU struct {
			Total int `json:"total"`
			Used  int `json:"used"`
		} `json:"cpu"`
		Memory struct {
			Total string `json:"total"`
			Used  string `json:"used"`
		} `json:"memory"`
		Nodes struct {
			Total  int `json:"total"`
			Online int `json:"online"`
		} `json:"nodes"`
	}](t, w)
	if stats.CPU.Total != 12 || stats.CPU.Used != 3 {
		t.Fatalf("unexpected cpu stats: %+v", stats.CPU)
	}
	if stats.Memory.Total != "48.0GB" || stats.Memory.Used != "12.0GB" {
		t.Fatalf("unexpected memory stats: %+v", stats.Memory)
	}
	if stats.Nodes.Total != 2 || stats.Nodes.Online != 2 {
		t.Fatalf("unexpected node counts: %+v", stats.Nodes)
	}

	w = doJSON(t, r, http.MethodPost, "/api/nodes", token, gin.H{"name": "bad", "mem_total": "lots"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("malformed capacity: expected 400, got %d", w.Code)
	}
	w = doJSON(t, r, http.MethodPost, "/api/nodes", token, gin.H{"name": "second-main", "role": "main"})
	if w.Code != http.StatusConflict {
		t.Fatalf("second main: expected 409, got %d", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/api/nodes", token, nil)
	nodes := decode[[]struct {
		ID   uint64 `json:"id"`
		Role string `json:"role"`
	}](t, w)
	if len(nodes) != 2 || nodes[0].Role != "main" {
		t.Fatalf("expected main node first, got %+v", nodes)
	}
	w = doJSON(t, r, http.MethodDelete, fmt.Sprintf("/api/nodes/%d", nodes[0].ID), token, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("delete main: expected 409, got %d", w.Code)
	}
	w = doJSON(t, r, http.MethodDelete, fmt.Sprintf("/api/nodes/%d", node.ID), token, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete worker: expected 204, got %d", w.Code)
	}
}

func TestSystemEndpoints(t *testing.T) {
	r, _ := newTestServer(t, true, nil)
	adminToken := login(t, r, "admin", "admin")
	_, viewerToken := createUser(t, r, adminToken, "reader", "viewer")

	w := doJSON(t, r, http.MethodGet, "/api/system/stats", viewerToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats: expected 200, got %d", w.Code)
	}
	stats := decode[struct {
		CPU    int    `json:"cpu"`
		Disk   int    `json:"disk"`
		Uptime string `json:"uptime"`
	}](t, w)
	if stats.CPU < 5 || stats.CPU > 29 || stats.Disk != 38 || !strings.HasSuffix(stats.Uptime, "m") {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	w = doJSON(t, r, http.MethodGet, "/api/system/info", viewerToken, nil)
	info := decode[map[string]any](t, w)
	if cores, _ := info["cores"].(string); !strings.HasSuffix(cores, " Cores") {
		t.Fatalf("unexpected info: %v", info)
	}

	w = doJSON(t, r, http.MethodGet, "/api/system/host", viewerToken, nil)
	host := decode[map[string]any](t, w)
	if total, _ := host["totalMemory"].(string); !strings.HasSuffix(total, " GB") {
		t.Fatalf("unexpected host: %v", host)
	}

	w = doJSON(t, r, http.MethodGet, "/api/system/config", viewerToken, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("viewer config: expected 403, got %d", w.Code)
	}
	w = doJSON(t, r, http.MethodGet, "/api/system/config", adminToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("admin config: expected 200, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), testSecret) || strings.Contains(w.Body.String(), config.DefaultSecretKey) {
		t.Fatalf("config must not expose the secret: %s", w.Body.String())
	}
}

func TestLicenseEndpoints(t *testing.T) {
	r, _ := newTestServer(t, true, nil)
	token := login(t, r, "admin", "admin")

	w := doJSON(t, r, http.MethodGet, "/api/system/license", token, nil)
	current := decode[struct {
		LicenseType string `json:"license_type"`
		Usage       struct {
			VMs int `json:"vms"`
		} `json:"usage"`
	}](t, w)
	if current.LicenseType != "trial" || current.Usage.VMs != 2 {
		t.Fatalf("unexpected seeded license: %+v", current)
	}

	w = doJSON(t, r, http.MethodPost, "/api/system/license", token, gin.H{"license_key": "BOGUS"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid key: expected 400, got %d", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/api/system/license", token, gin.H{"license_key": "CBSD-ENT-0001"})
	if w.Code != http.StatusOK {
		t.Fatalf("register: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	registered := decode[struct {
		Message string `json:"message"`
		License struct {
			LicenseType  string `json:"license_type"`
			RegisteredTo string `json:"registered_to"`
		} `json:"license"`
	}](t, w)
	if registered.Message != "License registered successfully" || registered.License.LicenseType != "enterprise" ||
		registered.License.RegisteredTo != "Licensed Customer" {
		t.Fatalf("unexpected registration: %+v", registered)
	}
}

func TestLogsAreAdminOnlyAndNewestFirst(t *testing.T) {
	r, _ := newTestServer(t, false, nil)
	adminToken := login(t, r, "admin", "admin")
	doJSON(t, r, http.MethodPost, "/api/login", "", gin.H{"username": "admin", "password": "nope"})
	_, viewerToken := createUser(t, r, adminToken, "auditor", "viewer")

	w := doJSON(t, r, http.MethodGet, "/api/logs", viewerToken, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("viewer logs: expected 403, got %d", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/api/logs?limit=50", adminToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("admin logs: expected 200, got %d", w.Code)
	}
	entries := decode[[]struct {
		Action   string `json:"action"`
		Username string `json:"username"`
	}](t, w)
	if len(entries) < 4 || entries[0].Action != "LOGIN_SUCCESS" || entries[0].Username != "auditor" {
		t.Fatalf("unexpected newest entries: %+v", entries)
	}
	var sawFailure bool
	for _, entry := range entries {
		if entry.Action == "LOGIN_FAILURE" {
			sawFailure = true
			if entry.Username != "System" {
				t.Fatalf("failed login should have no user, got %s", entry.Username)
			}
		}
	}
	if !sawFailure {
		t.Fatalf("expected a LOGIN_FAILURE entry")
	}

	w = doJSON(t, r, http.MethodGet, "/api/logs?search=user_create", adminToken, nil)
	filtered := decode[[]struct {
		Action string `json:"action"`
	}](t, w)
	if len(filtered) != 1 || filtered[0].Action != "USER_CREATE" {
		t.Fatalf("unexpected filtered entries: %+v", filtered)
	}

	w = doJSON(t, r, http.MethodGet, "/api/logs?limit=abc", adminToken, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: expected 400, got %d", w.Code)
	}
}

func TestHealthCORSAndRequestID(t *testing.T) {
	r, _ := newTestServer(t, false, nil)

	w := doJSON(t, r, http.MethodGet, "/api/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", w.Code)
	}
	if status := decode[struct {
		Status string `json:"status"`
	}](t, w).Status; status != "ok" {
		t.Fatalf("unexpected health status %q", status)
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected a generated request id")
	}

	req := httptest.NewRequest(http.MethodOptions, "/api/users", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("preflight: got %d headers=%v", rec.Code, rec.Header())
	}
	if rec.Header().Get(requestIDHeader) != "abc-123" {
		t.Fatalf("expected request id to be echoed, got %q", rec.Header().Get(requestIDHeader))
	}

	w = doJSON(t, r, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "cloudbsd_") {
		t.Fatalf("metrics: expected exposition, got %d", w.Code)
	}
}

func TestEventsRequiresToken(t *testing.T) {
	r, _ := newTestServer(t, false, nil)

	w := doJSON(t, r, http.MethodGet, "/api/events", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	w = doJSON(t, r, http.MethodGet, "/api/events?token=garbage", "", nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for bad query token, got %d", w.Code)
	}
}
