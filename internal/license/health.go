package license

import (
	"net/http"
	"time"

	"github.com/go-chi/render"
)

// HealthStatus is the coarse engine health classification.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
)

// ComponentHealth describes one engine component's state.
type ComponentHealth struct {
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// HealthReport summarizes engine health for the /healthz endpoint. It leaks
// no authorization-relevant detail; the projection gate stays the only
// authorization source.
type HealthReport struct {
	Status     HealthStatus               `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	CheckedAt  time.Time                  `json:"checked_at"`
}

// HealthCheck inspects the engine's components without touching the network.
func (m *Manager) HealthCheck() *HealthReport {
	components := map[string]ComponentHealth{}

	// Fingerprint: degraded when the engine is running on hostname fallback.
	fp := m.fingerprint.Fingerprint()
	if fp == "" {
		components["fingerprint"] = ComponentHealth{Status: HealthDegraded, Message: "fingerprint unavailable"}
	} else {
		components["fingerprint"] = ComponentHealth{Status: HealthHealthy}
	}

	// Heartbeat freshness, only meaningful while a session exists.
	m.mu.Lock()
	session := m.session
	m.mu.Unlock()

	if session == nil {
		components["heartbeat"] = ComponentHealth{Status: HealthHealthy, Message: "no active session"}
	} else {
		age := m.clock.Now().Sub(session.LastHeartbeat)
		switch {
		case session.LastHeartbeat.IsZero():
			components["heartbeat"] = ComponentHealth{Status: HealthDegraded, Message: "no heartbeat yet"}
		case age > m.maxOffline/2:
			components["heartbeat"] = ComponentHealth{Status: HealthDegraded,
				Message: "last heartbeat " + age.Round(time.Minute).String() + " ago"}
		default:
			components["heartbeat"] = ComponentHealth{Status: HealthHealthy}
		}
	}

	// Time estimation: unanchored means first-run degraded mode.
	if m.timeEst.Anchored() {
		components["time_estimator"] = ComponentHealth{Status: HealthHealthy}
	} else {
		components["time_estimator"] = ComponentHealth{Status: HealthDegraded, Message: "no server time anchor"}
	}

	overall := HealthHealthy
	for _, c := range components {
		if c.Status != HealthHealthy {
			overall = HealthDegraded
			break
		}
	}

	return &HealthReport{
		Status:     overall,
		Components: components,
		CheckedAt:  m.clock.Now(),
	}
}

// HealthHandler returns the /healthz handler.
func (m *Manager) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := m.HealthCheck()
		if report.Status != HealthHealthy {
			render.Status(r, http.StatusOK) // degraded is informational, not an outage
		}
		render.JSON(w, r, report)
	}
}
