// Package background runs the CSMS's two periodic loops (spec §4.6): the
// heartbeat monitor, which marks a charge point Offline once its last
// heartbeat goes stale, and the reservation expiry sweep, which
// transitions overdue Accepted reservations to Expired. Grounded on the
// teacher's business/chargepoint.Manager statusCheckRoutine/cleanupRoutine
// (ticker + select-on-shutdown-context) and
// original_source/src/application/charging/services/reservation_expiry.rs
// (tokio::interval + find_expired + update loop).
package background

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ocpp-csms/central-system/internal/domain/chargepoint"
	"github.com/ocpp-csms/central-system/internal/domain/events"
	"github.com/ocpp-csms/central-system/internal/domain/ports"
	"github.com/ocpp-csms/central-system/internal/domain/reservation"
)

// Config tunes both loops' intervals and the heartbeat staleness
// threshold (spec §4.6: 60s ticks, 180s stale threshold by default).
type Config struct {
	HeartbeatCheckInterval time.Duration
	HeartbeatStaleAfter    time.Duration
	ReservationCheckInterval time.Duration
}

// DefaultConfig matches spec.md §4.6's defaults.
func DefaultConfig() Config {
	return Config{
		HeartbeatCheckInterval:   60 * time.Second,
		HeartbeatStaleAfter:      180 * time.Second,
		ReservationCheckInterval: 60 * time.Second,
	}
}

// Runner owns both background loops and their shutdown.
type Runner struct {
	cfg   Config
	repos ports.RepositoryProvider
	bus   ports.EventBus
	log   zerolog.Logger
}

// NewRunner builds a Runner.
func NewRunner(cfg Config, repos ports.RepositoryProvider, bus ports.EventBus, log zerolog.Logger) *Runner {
	return &Runner{cfg: cfg, repos: repos, bus: bus, log: log.With().Str("component", "background").Logger()}
}

// Start launches both loops; they stop when ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	go r.heartbeatMonitorLoop(ctx)
	go r.reservationExpiryLoop(ctx)
}

func (r *Runner) heartbeatMonitorLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.HeartbeatCheckInterval)
	defer ticker.Stop()

	r.log.Info().Dur("interval", r.cfg.HeartbeatCheckInterval).Msg("heartbeat monitor started")
	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("heartbeat monitor stopped")
			return
		case <-ticker.C:
			r.checkHeartbeats(ctx)
		}
	}
}

func (r *Runner) checkHeartbeats(ctx context.Context) {
	cps, err := r.repos.ChargePoints().List(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("failed to list charge points for heartbeat check")
		return
	}

	now := time.Now()
	for _, cp := range cps {
		snapshot := cp.Snapshot()
		if snapshot.Status != chargepoint.StatusOnline {
			continue
		}
		class := chargepoint.ClassifyHeartbeat(snapshot.LastHeartbeat, now, r.cfg.HeartbeatStaleAfter)
		if class == chargepoint.HeartbeatStale {
			cp.MarkOffline()
			if err := r.repos.ChargePoints().Upsert(ctx, cp); err != nil {
				r.log.Warn().Str("charge_point_id", cp.ID).Err(err).Msg("failed to persist offline transition")
				continue
			}
			r.log.Warn().Str("charge_point_id", cp.ID).Msg("charge point heartbeat stale, marking offline")
			r.bus.Publish(events.NewChargePointStatusChanged(cp.ID, string(chargepoint.StatusOffline)))
		}
	}
}

func (r *Runner) reservationExpiryLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.ReservationCheckInterval)
	defer ticker.Stop()

	r.log.Info().Dur("interval", r.cfg.ReservationCheckInterval).Msg("reservation expiry loop started")
	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("reservation expiry loop stopped")
			return
		case <-ticker.C:
			r.expireReservations(ctx)
		}
	}
}

func (r *Runner) expireReservations(ctx context.Context) {
	overdue, err := r.repos.Reservations().ListExpiring(ctx, time.Now())
	if err != nil {
		r.log.Warn().Err(err).Msg("failed to list expiring reservations")
		return
	}
	if len(overdue) == 0 {
		return
	}

	r.log.Info().Int("count", len(overdue)).Msg("expiring overdue reservations")
	for _, res := range overdue {
		if res.Status != reservation.StatusAccepted {
			continue
		}
		res.Status = reservation.StatusExpired
		if err := r.repos.Reservations().Update(ctx, res); err != nil {
			r.log.Warn().Int64("reservation_id", res.ID).Err(err).Msg("failed to expire reservation")
			continue
		}
		r.bus.Publish(events.NewReservationExpired(res.ChargePointID, res.ID, res.ConnectorID))
	}
}
