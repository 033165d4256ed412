package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paramita1949/C-Canvas-sub005/internal/license"
	"github.com/paramita1949/C-Canvas-sub005/internal/security"
)

// newTestRouter stands up the auth routes over a manager backed by a mock
// license service.
func newTestRouter(t *testing.T, loginRPS float64, loginBurst int) (http.Handler, *httptest.Server) {
	t.Helper()

	licenseServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/verify", "/heartbeat":
			json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"valid":   true,
				"message": "ok",
				"data": map[string]any{
					"username":       "alice",
					"token":          "tok-1",
					"expires_at":     time.Now().AddDate(0, 0, 30).Unix(),
					"remaining_days": 30,
					"server_time":    time.Now().UTC().Format(time.RFC3339),
					"device_info": map[string]any{
						"bound_devices":   1,
						"max_devices":     3,
						"remaining_slots": 2,
					},
				},
			})
		case "/register":
			json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"message": "created",
				"data":    map[string]any{"trial_days": 14, "max_devices": 3},
			})
		case "/reset-devices":
			json.NewEncoder(w).Encode(map[string]any{
				"success": true, "reset_count": 2, "reset_remaining": 1,
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(licenseServer.Close)

	dir := t.TempDir()
	fingerprint := security.NewFingerprintManager()
	key, err := security.DeriveStoreKey(fingerprint.Fingerprint(), filepath.Join(dir, "credential.dat"))
	require.NoError(t, err)

	clock := license.NewSystemClock()
	manager := license.NewManager(license.ManagerConfig{
		Store: license.NewCredentialStore(
			filepath.Join(dir, "credential.dat"),
			filepath.Join(dir, "version.dat"),
			key, clock,
		),
		Client:                license.NewClient(licenseServer.URL, "test", time.Second, time.Second),
		Fingerprint:           fingerprint,
		Clock:                 clock,
		Trial:                 license.TrialConfig{MinDuration: time.Hour, MaxDuration: time.Hour, HardClamp: time.Hour},
		MaxOffline:            7 * 24 * time.Hour,
		HeartbeatInitialDelay: time.Hour,
		HeartbeatInterval:     time.Hour,
	})
	t.Cleanup(manager.Close)

	handler := NewAuthHandler(manager, slog.Default(), loginRPS, loginBurst)
	return handler.Routes(), licenseServer
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestGetStatusUnauthenticated(t *testing.T) {
	router, _ := newTestRouter(t, 100, 100)

	rec := doJSON(t, router, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Status.Authenticated)
	assert.NotEmpty(t, resp.Summary)
}

func TestLoginThenStatusAndProjection(t *testing.T) {
	router, _ := newTestRouter(t, 100, 100)

	rec := doJSON(t, router, http.MethodPost, "/login",
		`{"username":"alice","password":"secret1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var loginResp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &loginResp))
	assert.True(t, loginResp.Status.Authenticated)
	assert.Equal(t, "alice", loginResp.Status.Username)

	rec = doJSON(t, router, http.MethodGet, "/projection", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var proj ProjectionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &proj))
	assert.True(t, proj.Allowed)
}

func TestLoginValidationFailure(t *testing.T) {
	router, _ := newTestRouter(t, 100, 100)

	tests := []struct {
		name string
		body string
	}{
		{"empty body", ``},
		{"missing password", `{"username":"alice"}`},
		{"short username", `{"username":"ab","password":"secret1"}`},
		{"short password", `{"username":"alice","password":"abc"}`},
		{"not json", `username=alice`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/login", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestLoginUnreachableServer(t *testing.T) {
	router, licenseServer := newTestRouter(t, 100, 100)
	licenseServer.Close()

	rec := doJSON(t, router, http.MethodPost, "/login",
		`{"username":"alice","password":"secret1"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLoginRateLimited(t *testing.T) {
	router, _ := newTestRouter(t, 0.001, 1)

	body := `{"username":"alice","password":"secret1"}`
	rec := doJSON(t, router, http.MethodPost, "/login", body)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/login", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestLogout(t *testing.T) {
	router, _ := newTestRouter(t, 100, 100)

	rec := doJSON(t, router, http.MethodPost, "/login",
		`{"username":"alice","password":"secret1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/logout", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/status", "")
	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Status.Authenticated)
}

func TestRegister(t *testing.T) {
	router, _ := newTestRouter(t, 100, 100)

	rec := doJSON(t, router, http.MethodPost, "/register",
		`{"username":"bob","password":"secret1","email":"bob@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result license.RegisterResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, 14, result.TrialDays)
}

func TestRegisterRejectsBadEmail(t *testing.T) {
	router, _ := newTestRouter(t, 100, 100)

	rec := doJSON(t, router, http.MethodPost, "/register",
		`{"username":"bob","password":"secret1","email":"not-an-email"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResetDevicesRequiresSession(t *testing.T) {
	router, _ := newTestRouter(t, 100, 100)

	rec := doJSON(t, router, http.MethodPost, "/reset-devices", `{"password":"secret1"}`)
	assert.Equal(t, http.StatusPreconditionRequired, rec.Code)
}

func TestResetDevicesAfterLogin(t *testing.T) {
	router, _ := newTestRouter(t, 100, 100)

	rec := doJSON(t, router, http.MethodPost, "/login",
		`{"username":"alice","password":"secret1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/reset-devices", `{"password":"secret1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ResetDevicesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.ResetRemaining)
}
