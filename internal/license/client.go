package license

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/paramita1949/C-Canvas-sub005/internal/security"
)

// AuthResult is the structured outcome of a verify or heartbeat call.
// Transport failures and unparsable bodies set Transport; only a well-formed
// negative response carries a Reason, and only specific reasons force logout.
type AuthResult struct {
	Success bool
	Valid   bool
	Message string
	Reason  string

	Username         string
	Token            string
	ExpiresAt        time.Time
	RemainingDays    int
	DeviceInfo       DeviceBindingInfo
	ResetDeviceCount int
	ServerTime       time.Time

	// Transport marks timeouts, connection errors and malformed responses.
	// These must never force a logout.
	Transport bool
}

// RegisterResult is the outcome of an account registration call.
type RegisterResult struct {
	Success    bool
	Message    string
	Transport  bool
	TrialDays  int
	MaxDevices int
	ExpiresAt  time.Time
}

// ResetResult is the outcome of a device-reset call.
type ResetResult struct {
	Success        bool
	Message        string
	Transport      bool
	ResetCount     int
	ResetRemaining int
}

// RegisterProfile carries the registration payload, including the raw
// hardware identifiers the server stores for later binding decisions.
type RegisterProfile struct {
	Username   string
	Password   string
	Email      string
	Hardware   *security.HardwareIdentifiers
	DeviceName string
}

// Client performs the remote license service calls. Heartbeats use a short
// timeout; interactive calls (login, registration, reset) a longer one.
type Client struct {
	baseURL            string
	httpClient         *http.Client
	heartbeatTimeout   time.Duration
	interactiveTimeout time.Duration
	appVersion         string
}

// NewClient creates a client against the given base URL.
func NewClient(baseURL, appVersion string, heartbeatTimeout, interactiveTimeout time.Duration) *Client {
	return &Client{
		baseURL:            baseURL,
		httpClient:         &http.Client{},
		heartbeatTimeout:   heartbeatTimeout,
		interactiveTimeout: interactiveTimeout,
		appVersion:         appVersion,
	}
}

// Wire shapes.

type verifyRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	HardwareID string `json:"hardware_id"`
	DeviceName string `json:"device_name"`
	OSVersion  string `json:"os_version"`
	AppVersion string `json:"app_version"`
}

type heartbeatRequest struct {
	Token      string `json:"token"`
	HardwareID string `json:"hardware_id"`
}

type registerRequest struct {
	Username          string `json:"username"`
	Password          string `json:"password"`
	Email             string `json:"email,omitempty"`
	CPUID             string `json:"cpu_id"`
	MotherboardSerial string `json:"motherboard_serial"`
	DiskSerial        string `json:"disk_serial"`
	BIOSUUID          string `json:"bios_uuid"`
	WindowsInstallID  string `json:"windows_install_id"`
	DeviceName        string `json:"device_name"`
}

type resetRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	HardwareID string `json:"hardware_id"`
}

type deviceInfoPayload struct {
	BoundDevices   int  `json:"bound_devices"`
	MaxDevices     int  `json:"max_devices"`
	RemainingSlots int  `json:"remaining_slots"`
	IsNewDevice    bool `json:"is_new_device"`
}

type authResponseData struct {
	Username         string            `json:"username"`
	Email            string            `json:"email"`
	LicenseType      string            `json:"license_type"`
	ExpiresAt        int64             `json:"expires_at"`
	RemainingDays    int               `json:"remaining_days"`
	Token            string            `json:"token"`
	ServerTime       string            `json:"server_time"`
	DeviceInfo       deviceInfoPayload `json:"device_info"`
	ResetDeviceCount int               `json:"reset_device_count"`
}

type authResponse struct {
	Success bool              `json:"success"`
	Valid   bool              `json:"valid"`
	Message string            `json:"message"`
	Reason  string            `json:"reason,omitempty"`
	Data    *authResponseData `json:"data,omitempty"`
}

type registerResponseData struct {
	TrialDays  int   `json:"trial_days"`
	MaxDevices int   `json:"max_devices"`
	ExpiresAt  int64 `json:"expires_at"`
}

type registerResponse struct {
	Success bool                  `json:"success"`
	Message string                `json:"message"`
	Data    *registerResponseData `json:"data,omitempty"`
}

type resetResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	ResetCount     int    `json:"reset_count"`
	ResetRemaining int    `json:"reset_remaining"`
}

// Verify performs an interactive login/verification call.
func (c *Client) Verify(ctx context.Context, username, password, hardwareID, deviceName string) AuthResult {
	req := verifyRequest{
		Username:   username,
		Password:   password,
		HardwareID: hardwareID,
		DeviceName: deviceName,
		OSVersion:  runtime.GOOS,
		AppVersion: c.appVersion,
	}
	return c.authCall(ctx, "verify", req, c.interactiveTimeout)
}

// Heartbeat re-validates an existing session.
func (c *Client) Heartbeat(ctx context.Context, token, hardwareID string) AuthResult {
	req := heartbeatRequest{Token: token, HardwareID: hardwareID}
	return c.authCall(ctx, "heartbeat", req, c.heartbeatTimeout)
}

// Register creates a new account bound to this device's hardware profile.
func (c *Client) Register(ctx context.Context, profile RegisterProfile) RegisterResult {
	hw := profile.Hardware
	if hw == nil {
		hw = &security.HardwareIdentifiers{}
	}
	req := registerRequest{
		Username:          profile.Username,
		Password:          profile.Password,
		Email:             profile.Email,
		CPUID:             hw.CPUID,
		MotherboardSerial: hw.MotherboardSerial,
		DiskSerial:        hw.DiskSerial,
		BIOSUUID:          hw.BIOSUUID,
		WindowsInstallID:  hw.OSInstallID,
		DeviceName:        profile.DeviceName,
	}

	body, status, err := c.post(ctx, "register", req, c.interactiveTimeout)
	if err != nil {
		return RegisterResult{Transport: true, Message: "License server unreachable."}
	}

	var resp registerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		logWarn(ctx, "register_response", "Malformed registration response",
			slog.Int("status", status),
		)
		return RegisterResult{Transport: true, Message: "Unexpected response from license server."}
	}

	result := RegisterResult{Success: resp.Success, Message: resp.Message}
	if resp.Data != nil {
		result.TrialDays = resp.Data.TrialDays
		result.MaxDevices = resp.Data.MaxDevices
		if resp.Data.ExpiresAt > 0 {
			result.ExpiresAt = time.Unix(resp.Data.ExpiresAt, 0)
		}
	}
	return result
}

// ResetDevices unbinds all of the account's devices.
func (c *Client) ResetDevices(ctx context.Context, username, password, hardwareID string) ResetResult {
	req := resetRequest{Username: username, Password: password, HardwareID: hardwareID}

	body, status, err := c.post(ctx, "reset-devices", req, c.interactiveTimeout)
	if err != nil {
		return ResetResult{Transport: true, Message: "License server unreachable."}
	}

	var resp resetResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		logWarn(ctx, "reset_response", "Malformed reset response",
			slog.Int("status", status),
		)
		return ResetResult{Transport: true, Message: "Unexpected response from license server."}
	}

	return ResetResult{
		Success:        resp.Success,
		Message:        resp.Message,
		ResetCount:     resp.ResetCount,
		ResetRemaining: resp.ResetRemaining,
	}
}

// authCall runs a verify-shaped request and maps the response.
func (c *Client) authCall(ctx context.Context, endpoint string, payload any, timeout time.Duration) AuthResult {
	body, status, err := c.post(ctx, endpoint, payload, timeout)
	if err != nil {
		logWarn(ctx, "auth_call", "License server call failed",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
		return AuthResult{Transport: true, Message: "License server unreachable."}
	}

	var resp authResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		logWarn(ctx, "auth_call", "Malformed license server response",
			slog.String("endpoint", endpoint),
			slog.Int("status", status),
		)
		return AuthResult{Transport: true, Message: "Unexpected response from license server."}
	}

	result := AuthResult{
		Success: resp.Success,
		Valid:   resp.Valid,
		Message: resp.Message,
		Reason:  resp.Reason,
	}

	if resp.Data != nil {
		result.Username = resp.Data.Username
		result.Token = resp.Data.Token
		result.RemainingDays = resp.Data.RemainingDays
		result.ResetDeviceCount = resp.Data.ResetDeviceCount
		result.DeviceInfo = DeviceBindingInfo{
			BoundDevices:   resp.Data.DeviceInfo.BoundDevices,
			MaxDevices:     resp.Data.DeviceInfo.MaxDevices,
			RemainingSlots: resp.Data.DeviceInfo.RemainingSlots,
			IsNewDevice:    resp.Data.DeviceInfo.IsNewDevice,
		}
		if resp.Data.ExpiresAt > 0 {
			result.ExpiresAt = time.Unix(resp.Data.ExpiresAt, 0)
		}
		result.ServerTime = parseServerTime(resp.Data.ServerTime)
	}

	return result
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, timeout time.Duration) ([]byte, int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

// parseServerTime accepts RFC 3339 and the service's legacy space-separated
// format. An unparsable value yields the zero time, which callers treat as
// "no timestamp present" and skip re-anchoring.
func parseServerTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05", value); err == nil {
		return t.UTC()
	}
	return time.Time{}
}
