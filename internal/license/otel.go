package license

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AuthMetrics holds the engine's OpenTelemetry instruments. A nil *AuthMetrics
// is valid and records nothing, so tests and minimal builds can skip the
// metric pipeline.
type AuthMetrics struct {
	LoginAttempts    metric.Int64Counter
	HeartbeatRuns    metric.Int64Counter
	ProjectionChecks metric.Int64Counter
	StoreOperations  metric.Int64Counter
	TrialStarts      metric.Int64Counter
	ForcedLogouts    metric.Int64Counter
}

// NewAuthMetrics creates the engine instruments on the given meter.
func NewAuthMetrics(meter metric.Meter) (*AuthMetrics, error) {
	m := &AuthMetrics{}
	var err error

	if m.LoginAttempts, err = meter.Int64Counter("auth_login_attempts_total",
		metric.WithDescription("Login attempts by outcome")); err != nil {
		return nil, fmt.Errorf("create login counter: %w", err)
	}
	if m.HeartbeatRuns, err = meter.Int64Counter("auth_heartbeat_runs_total",
		metric.WithDescription("Heartbeat executions by outcome")); err != nil {
		return nil, fmt.Errorf("create heartbeat counter: %w", err)
	}
	if m.ProjectionChecks, err = meter.Int64Counter("auth_projection_checks_total",
		metric.WithDescription("Feature gate checks by decision")); err != nil {
		return nil, fmt.Errorf("create projection counter: %w", err)
	}
	if m.StoreOperations, err = meter.Int64Counter("auth_store_operations_total",
		metric.WithDescription("Credential store operations by kind and outcome")); err != nil {
		return nil, fmt.Errorf("create store counter: %w", err)
	}
	if m.TrialStarts, err = meter.Int64Counter("auth_trial_starts_total",
		metric.WithDescription("Trial window activations")); err != nil {
		return nil, fmt.Errorf("create trial counter: %w", err)
	}
	if m.ForcedLogouts, err = meter.Int64Counter("auth_forced_logouts_total",
		metric.WithDescription("Forced logouts by reason")); err != nil {
		return nil, fmt.Errorf("create forced logout counter: %w", err)
	}

	return m, nil
}

func (m *AuthMetrics) recordLogin(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.LoginAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *AuthMetrics) recordHeartbeat(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.HeartbeatRuns.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *AuthMetrics) recordProjectionCheck(ctx context.Context, decision string) {
	if m == nil {
		return
	}
	m.ProjectionChecks.Add(ctx, 1, metric.WithAttributes(attribute.String("decision", decision)))
}

func (m *AuthMetrics) recordStoreOp(ctx context.Context, op, outcome string) {
	if m == nil {
		return
	}
	m.StoreOperations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
}

func (m *AuthMetrics) recordTrialStart(ctx context.Context) {
	if m == nil {
		return
	}
	m.TrialStarts.Add(ctx, 1)
}

func (m *AuthMetrics) recordForcedLogout(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.ForcedLogouts.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
