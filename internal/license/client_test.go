package license

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientVerifyParsesFullResponse(t *testing.T) {
	expires := time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/verify", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "alice", req["username"])
		assert.NotEmpty(t, req["hardware_id"])
		assert.NotEmpty(t, req["app_version"])

		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"valid":   true,
			"message": "ok",
			"data": map[string]any{
				"username":       "alice",
				"token":          "tok-1",
				"expires_at":     expires.Unix(),
				"remaining_days": 97,
				"server_time":    "2026-08-26 10:00:00",
				"device_info": map[string]any{
					"bound_devices":   2,
					"max_devices":     3,
					"remaining_slots": 1,
					"is_new_device":   true,
				},
				"reset_device_count": 1,
			},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, "1.0.0", time.Second, time.Second)
	result := c.Verify(context.Background(), "alice", "pw", "hw-id", "laptop")

	require.False(t, result.Transport)
	assert.True(t, result.Success)
	assert.True(t, result.Valid)
	assert.Equal(t, "alice", result.Username)
	assert.Equal(t, "tok-1", result.Token)
	assert.True(t, result.ExpiresAt.Equal(time.Unix(expires.Unix(), 0)))
	assert.Equal(t, 97, result.RemainingDays)
	assert.Equal(t, 2, result.DeviceInfo.BoundDevices)
	assert.True(t, result.DeviceInfo.IsNewDevice)
	assert.Equal(t, 1, result.ResetDeviceCount)
	assert.Equal(t, time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC), result.ServerTime)
}

func TestClientWellFormedRejectionIsNotTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"valid":   false,
			"message": "Invalid credentials",
			"reason":  "bad_password",
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, "1.0.0", time.Second, time.Second)
	result := c.Verify(context.Background(), "alice", "pw", "hw-id", "laptop")

	assert.False(t, result.Transport)
	assert.False(t, result.Success)
	assert.Equal(t, "bad_password", result.Reason)
	assert.Equal(t, "Invalid credentials", result.Message)
}

func TestClientConnectionErrorIsTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	c := NewClient(server.URL, "1.0.0", time.Second, time.Second)
	result := c.Heartbeat(context.Background(), "tok", "hw-id")

	assert.True(t, result.Transport)
	assert.Empty(t, result.Reason)
}

func TestClientMalformedBodyIsTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>gateway error</html>"))
	}))
	defer server.Close()

	c := NewClient(server.URL, "1.0.0", time.Second, time.Second)
	result := c.Heartbeat(context.Background(), "tok", "hw-id")

	assert.True(t, result.Transport)
}

func TestClientTimeoutIsTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	c := NewClient(server.URL, "1.0.0", 20*time.Millisecond, 20*time.Millisecond)
	result := c.Heartbeat(context.Background(), "tok", "hw-id")

	assert.True(t, result.Transport)
}

func TestClientRegisterSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/register", r.URL.Path)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "bob", req["username"])
		assert.Contains(t, req, "cpu_id")
		assert.Contains(t, req, "bios_uuid")

		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"message": "account created",
			"data": map[string]any{
				"trial_days":  14,
				"max_devices": 3,
				"expires_at":  time.Now().AddDate(0, 0, 14).Unix(),
			},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, "1.0.0", time.Second, time.Second)
	result := c.Register(context.Background(), RegisterProfile{
		Username:   "bob",
		Password:   "secret",
		DeviceName: "laptop",
	})

	require.False(t, result.Transport)
	assert.True(t, result.Success)
	assert.Equal(t, 14, result.TrialDays)
	assert.Equal(t, 3, result.MaxDevices)
	assert.False(t, result.ExpiresAt.IsZero())
}

func TestClientResetDevices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/reset-devices", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"success":         true,
			"message":         "done",
			"reset_count":     2,
			"reset_remaining": 1,
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, "1.0.0", time.Second, time.Second)
	result := c.ResetDevices(context.Background(), "alice", "pw", "hw-id")

	require.False(t, result.Transport)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.ResetCount)
	assert.Equal(t, 1, result.ResetRemaining)
}

func TestParseServerTime(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Time
	}{
		{"rfc3339", "2026-08-26T10:00:00Z", time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)},
		{"legacy", "2026-08-26 10:00:00", time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)},
		{"empty", "", time.Time{}},
		{"garbage", "yesterday", time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseServerTime(tt.value)
			assert.True(t, tt.want.Equal(got), "got %v", got)
		})
	}
}
