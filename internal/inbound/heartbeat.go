package inbound

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ocpp-csms/central-system/internal/domain/events"
	"github.com/ocpp-csms/central-system/internal/ocppversion"
)

func handleHeartbeat(ctx context.Context, a *Adapter, chargePointID string, version ocppversion.Version, raw json.RawMessage) (interface{}, error) {
	repo := a.Repos.ChargePoints()
	cp, err := repo.Get(ctx, chargePointID)
	if err == nil {
		cp.RecordHeartbeat()
		_ = repo.Upsert(ctx, cp)
	}

	a.Bus.Publish(events.NewHeartbeatReceived(chargePointID))

	return map[string]interface{}{
		"currentTime": time.Now().UTC().Format(time.RFC3339),
	}, nil
}
