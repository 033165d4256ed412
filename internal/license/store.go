package license

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/paramita1949/C-Canvas-sub005/internal/infrastructure"
)

// storeEnvelope wraps the serialized credential with its signature. The whole
// envelope is base64-wrapped on disk.
type storeEnvelope struct {
	Data      string `json:"data"`      // base64(inner JSON)
	Signature string `json:"signature"` // base64(HMAC-SHA256 over inner JSON)
}

// versionRecord is the anti-rollback side channel: the highest file version
// ever observed, kept outside the credential file at a machine-scoped path
// and guarded by its own HMAC so it cannot be trivially edited down.
type versionRecord struct {
	Version int64  `json:"version"`
	MAC     string `json:"mac"`
}

// CredentialStore reads and writes the signed, versioned credential blob.
// Writes are serialized by the store's mutex so there is a single in-flight
// write at a time.
type CredentialStore struct {
	mu          sync.Mutex
	path        string
	versionPath string
	key         []byte
	clock       Clock

	// lastKnownVersion caches the side-channel maximum for the process
	// lifetime.
	lastKnownVersion int64
	versionLoaded    bool
}

// NewCredentialStore creates a store over the given credential file and
// version-counter paths, signing with the key from security.DeriveStoreKey.
func NewCredentialStore(path, versionPath string, key []byte, clock Clock) *CredentialStore {
	return &CredentialStore{
		path:        path,
		versionPath: versionPath,
		key:         key,
		clock:       clock,
	}
}

// Save serializes the session with a fresh nonce, the current timestamp and
// the next file version, signs it and writes the wrapped envelope. The
// side-channel maximum advances with it.
func (cs *CredentialStore) Save(ctx context.Context, session *Session) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	logger := infrastructure.LoggerWithContext(ctx)
	now := cs.clock.Now()

	cred := persistedCredential{
		Username:         session.Username,
		Token:            session.Token,
		ExpiresAt:        session.ExpiresAt,
		RemainingDays:    session.RemainingDays,
		LastServerTime:   session.LastServerTime,
		LastLocalTime:    now,
		LastTickCount:    session.AnchorTick,
		ResetDeviceCount: session.ResetDeviceCount,
		LastHeartbeat:    session.LastHeartbeat,
		Nonce:            uuid.New().String(),
		SaveTime:         now,
		FileVersion:      cs.nextVersionLocked(now.Unix()),
		DeviceInfo:       session.DeviceInfo,
	}

	inner, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}

	envelope := storeEnvelope{
		Data:      base64.StdEncoding.EncodeToString(inner),
		Signature: base64.StdEncoding.EncodeToString(cs.sign(inner)),
	}
	outer, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	wrapped := base64.StdEncoding.EncodeToString(outer)
	if err := os.WriteFile(cs.path, []byte(wrapped), 0o600); err != nil {
		logger.Error("Failed to write credential file",
			slog.String("path", cs.path),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("write credential file: %w", err)
	}

	cs.writeVersionLocked(cred.FileVersion)

	logger.Debug("Credential saved",
		slog.String("path", cs.path),
		slog.Int64("file_version", cred.FileVersion),
		slog.String("username", maskUsername(cred.Username)),
	)
	return nil
}

// Load reads, verifies and decodes the credential file. Signature mismatch or
// undecodable content returns ErrCorrupted; a version below the recorded
// maximum returns ErrRolledBack. On success the recorded maximum advances if
// the file's version is newer.
func (cs *CredentialStore) Load(ctx context.Context) (*Session, error) {
	cred, err := cs.LoadRaw(ctx)
	if err != nil {
		return nil, err
	}
	return &Session{
		Username:         cred.Username,
		Token:            cred.Token,
		ExpiresAt:        cred.ExpiresAt,
		RemainingDays:    cred.RemainingDays,
		DeviceInfo:       cred.DeviceInfo,
		ResetDeviceCount: cred.ResetDeviceCount,
		LastServerTime:   cred.LastServerTime,
		AnchorTick:       cred.LastTickCount,
		LastHeartbeat:    cred.LastHeartbeat,
	}, nil
}

// LoadRaw is Load but returns the full persisted record, including the anchor
// metadata needed to restore the time estimator.
func (cs *CredentialStore) LoadRaw(ctx context.Context) (*persistedCredential, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	logger := infrastructure.LoggerWithContext(ctx)

	wrapped, err := os.ReadFile(cs.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}

	outer, err := base64.StdEncoding.DecodeString(string(wrapped))
	if err != nil {
		return nil, fmt.Errorf("%w: outer encoding: %v", ErrCorrupted, err)
	}

	var envelope storeEnvelope
	if err := json.Unmarshal(outer, &envelope); err != nil {
		return nil, fmt.Errorf("%w: envelope: %v", ErrCorrupted, err)
	}

	inner, err := base64.StdEncoding.DecodeString(envelope.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: payload encoding: %v", ErrCorrupted, err)
	}
	signature, err := base64.StdEncoding.DecodeString(envelope.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: signature encoding: %v", ErrCorrupted, err)
	}

	if !hmac.Equal(signature, cs.sign(inner)) {
		logger.Warn("Credential signature mismatch", slog.String("path", cs.path))
		return nil, fmt.Errorf("%w: signature mismatch", ErrCorrupted)
	}

	var cred persistedCredential
	if err := json.Unmarshal(inner, &cred); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrCorrupted, err)
	}

	maxVersion := cs.readVersionLocked()
	if cred.FileVersion < maxVersion {
		logger.Warn("Credential version below recorded maximum",
			slog.Int64("file_version", cred.FileVersion),
			slog.Int64("max_version", maxVersion),
		)
		return nil, fmt.Errorf("%w: version %d < %d", ErrRolledBack, cred.FileVersion, maxVersion)
	}
	if cred.FileVersion > maxVersion {
		cs.writeVersionLocked(cred.FileVersion)
	}

	logger.Debug("Credential loaded",
		slog.String("path", cs.path),
		slog.Int64("file_version", cred.FileVersion),
		slog.String("username", maskUsername(cred.Username)),
	)
	return &cred, nil
}

// Delete removes the credential file. Idempotent; never errors if the file is
// already absent. The version counter is deliberately left in place so a
// later restore of an old snapshot still fails the rollback check.
func (cs *CredentialStore) Delete(ctx context.Context) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if err := os.Remove(cs.path); err != nil && !os.IsNotExist(err) {
		infrastructure.LoggerWithContext(ctx).Warn("Failed to delete credential file",
			slog.String("path", cs.path),
			slog.String("error", err.Error()),
		)
	}
}

func (cs *CredentialStore) sign(payload []byte) []byte {
	h := hmac.New(sha256.New, cs.key)
	h.Write(payload)
	return h.Sum(nil)
}

// nextVersionLocked computes max(time-based version, lastKnown+1) so versions
// increase even when saves happen within the same second or the clock moves
// backwards.
func (cs *CredentialStore) nextVersionLocked(timeVersion int64) int64 {
	last := cs.readVersionLocked()
	next := timeVersion
	if next <= last {
		next = last + 1
	}
	return next
}

func (cs *CredentialStore) readVersionLocked() int64 {
	if cs.versionLoaded {
		return cs.lastKnownVersion
	}
	cs.versionLoaded = true
	cs.lastKnownVersion = 0

	data, err := os.ReadFile(cs.versionPath)
	if err != nil {
		return 0
	}
	var rec versionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return 0
	}
	if !hmac.Equal(cs.versionMAC(rec.Version), decodeHexQuiet(rec.MAC)) {
		// Tampered counter; treat as absent. The next save rewrites it.
		slog.Warn("Version counter MAC mismatch, resetting", slog.String("path", cs.versionPath))
		return 0
	}
	cs.lastKnownVersion = rec.Version
	return rec.Version
}

func (cs *CredentialStore) writeVersionLocked(version int64) {
	cs.lastKnownVersion = version
	cs.versionLoaded = true

	rec := versionRecord{
		Version: version,
		MAC:     encodeHex(cs.versionMAC(version)),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := os.WriteFile(cs.versionPath, data, 0o600); err != nil {
		slog.Warn("Failed to write version counter",
			slog.String("path", cs.versionPath),
			slog.String("error", err.Error()),
		)
	}
}

func (cs *CredentialStore) versionMAC(version int64) []byte {
	h := hmac.New(sha256.New, cs.key)
	fmt.Fprintf(h, "version|%d", version)
	return h.Sum(nil)
}
