// Package health runs periodic checks on the running session and the host:
// stale connections, ping latency and journal disk space. It also
// publishes the heartbeat consumed by telemetry.
package health

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/realmwalker-project/realmwalker/internal/config"
	"github.com/realmwalker-project/realmwalker/internal/connector"
	"github.com/realmwalker-project/realmwalker/internal/events"
	"github.com/realmwalker-project/realmwalker/internal/session"
	"github.com/realmwalker-project/realmwalker/internal/util"
)

// Target is the client being watched.
type Target interface {
	Status() connector.Status
	Disconnect() error
}

// Manager runs the health checks.
type Manager struct {
	cfg      *config.Config
	eventBus *events.EventBus
	target   Target

	now          func() time.Time
	diskUsage    func(path string) (*util.DiskUsage, error)
	processStats func() (*util.ProcessStats, error)
}

// NewManager creates a new health check manager.
func NewManager(cfg *config.Config, eventBus *events.EventBus, target Target) *Manager {
	return &Manager{
		cfg:          cfg,
		eventBus:     eventBus,
		target:       target,
		now:          time.Now,
		diskUsage:    util.GetDiskUsage,
		processStats: util.GetProcessStats,
	}
}

// Start launches the checks and blocks until ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	hc := m.cfg.GetHealth()

	checks := []struct {
		name     string
		interval int
		fn       func(context.Context)
	}{
		{"connection", hc.CheckIntervalSec, m.checkConnection},
		{"latency", hc.CheckIntervalSec, m.checkLatency},
		{"disk_utilization", hc.CheckIntervalSec, m.checkDiskUtilization},
		{"heartbeat", hc.HeartbeatIntervalSec, m.heartbeat},
	}

	started := 0
	for _, check := range checks {
		if check.interval <= 0 {
			continue
		}
		started++

		check := check
		go func() {
			ticker := time.NewTicker(time.Duration(check.interval) * time.Second)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					check.fn(ctx)
				}
			}
		}()
	}

	log.Info().Int("checks", started).Msg("health check manager started")

	<-ctx.Done()
	log.Info().Msg("health check manager stopped")
}

// checkConnection drops a world connection that has gone silent. The
// server answers every ping, so silence means the socket is dead.
func (m *Manager) checkConnection(ctx context.Context) {
	staleAfter := config.Seconds(m.cfg.GetHealth().StaleAfterSec)
	if staleAfter <= 0 {
		return
	}

	st := m.target.Status().Session
	if st.State != session.InWorld || st.LastInbound.IsZero() {
		return
	}

	silent := m.now().Sub(st.LastInbound)
	if silent <= staleAfter {
		return
	}

	msg := fmt.Sprintf("no packet for %s, reconnecting", silent.Round(time.Second))
	log.Warn().Dur("silent", silent).Msg("stale connection")
	m.alert(ctx, "connection", "error", msg)

	if err := m.target.Disconnect(); err != nil {
		log.Warn().Err(err).Msg("failed to drop stale connection")
	}
}

// checkLatency warns when the last ping round trip was slow.
func (m *Manager) checkLatency(ctx context.Context) {
	limit := time.Duration(m.cfg.GetHealth().LatencyWarnMs) * time.Millisecond
	if limit <= 0 {
		return
	}
	st := m.target.Status().Session
	if st.State != session.InWorld || st.Latency <= limit {
		return
	}
	m.alert(ctx, "latency", "warning", fmt.Sprintf("latency %s above %s", st.Latency, limit))
}

// checkDiskUtilization watches the volume holding the journal.
func (m *Manager) checkDiskUtilization(ctx context.Context) {
	threshold := m.cfg.GetHealth().DiskWarnPercent
	if threshold <= 0 {
		return
	}

	path := filepath.Dir(m.cfg.GetJournal().Path)
	usage, err := m.diskUsage(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("disk utilization check failed")
		return
	}

	log.Debug().
		Float64("used_percent", usage.UsedPercent).
		Uint64("free_gb", usage.Free).
		Msg("disk utilization")

	if usage.UsedPercent < threshold {
		return
	}
	level := "warning"
	if usage.UsedPercent >= 98 {
		level = "error"
	}
	m.alert(ctx, "disk_utilization", level, fmt.Sprintf("disk usage at %.1f%% (%d GB free of %d GB total)",
		usage.UsedPercent, usage.Free, usage.Total))
}

// heartbeat publishes the status snapshot for telemetry.
func (m *Manager) heartbeat(ctx context.Context) {
	st := m.target.Status()
	payload := events.HeartbeatPayload{
		RunID:     st.RunID,
		State:     st.Session.State.String(),
		Realm:     st.Session.Realm,
		Character: st.Session.Character,
		Latency:   st.Session.Latency,
	}
	if ps, err := m.processStats(); err == nil {
		payload.RSSMB = ps.RSSMB
		payload.CPUPercent = ps.CPUPercent
		payload.Uptime = ps.Uptime
	} else {
		log.Debug().Err(err).Msg("process stats unavailable")
	}
	m.eventBus.Emit(ctx, events.New(events.EventHeartbeat, "heartbeat", payload))
}

func (m *Manager) alert(ctx context.Context, check, level, message string) {
	m.eventBus.Emit(ctx, events.New(events.EventHealthAlert, "health_check", events.HealthAlertPayload{
		Check:   check,
		Level:   level,
		Message: message,
	}))
}
