package license

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// heartbeatState tracks the scheduler's lifecycle:
// Idle -> Scheduled -> Running -> Scheduled (loop) | Stopped.
type heartbeatState int32

const (
	heartbeatIdle heartbeatState = iota
	heartbeatScheduled
	heartbeatRunning
	heartbeatStopped
)

// Heartbeat periodically re-validates the session against the license server
// and enforces the offline-duration policy. It runs on its own goroutine;
// every state change flows through the Manager's mutex-guarded apply methods,
// never by direct field mutation.
type Heartbeat struct {
	manager      *Manager
	initialDelay time.Duration
	interval     time.Duration

	mu    sync.Mutex
	state heartbeatState
	stop  chan struct{}
	done  chan struct{}
}

// NewHeartbeat creates a scheduler over the manager. Start is separate so the
// manager can construct it eagerly and start it only once a session exists.
func NewHeartbeat(manager *Manager, initialDelay, interval time.Duration) *Heartbeat {
	return &Heartbeat{
		manager:      manager,
		initialDelay: initialDelay,
		interval:     interval,
		state:        heartbeatIdle,
	}
}

// Start schedules the first heartbeat after the initial delay, then the
// recurring interval. Idempotent while running.
func (hb *Heartbeat) Start() {
	hb.mu.Lock()
	defer hb.mu.Unlock()

	if hb.state == heartbeatScheduled || hb.state == heartbeatRunning {
		return
	}

	hb.stop = make(chan struct{})
	hb.done = make(chan struct{})
	hb.state = heartbeatScheduled

	go hb.loop(hb.stop, hb.done)
}

// Stop halts the timer. An in-flight heartbeat's context is abandoned, not
// awaited past shutdown.
func (hb *Heartbeat) Stop() {
	hb.mu.Lock()
	if hb.state != heartbeatScheduled && hb.state != heartbeatRunning {
		hb.mu.Unlock()
		return
	}
	hb.state = heartbeatStopped
	close(hb.stop)
	done := hb.done
	hb.mu.Unlock()

	<-done
}

func (hb *Heartbeat) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	timer := time.NewTimer(hb.initialDelay)
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return
		case <-timer.C:
		}

		hb.setState(heartbeatRunning)

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			// Cancel the in-flight request if Stop arrives mid-beat.
			select {
			case <-stop:
				cancel()
			case <-ctx.Done():
			}
		}()

		keepGoing := hb.manager.runHeartbeat(ctx)
		cancel()

		if !keepGoing {
			logInfo(context.Background(), "heartbeat_stop", "Heartbeat stopped by session termination")
			hb.setState(heartbeatStopped)
			return
		}

		hb.setState(heartbeatScheduled)
		timer.Reset(hb.interval)
		logDebug(context.Background(), "heartbeat_schedule", "Next heartbeat scheduled",
			slog.Duration("interval", hb.interval),
		)
	}
}

func (hb *Heartbeat) setState(s heartbeatState) {
	hb.mu.Lock()
	if hb.state != heartbeatStopped {
		hb.state = s
	}
	hb.mu.Unlock()
}
