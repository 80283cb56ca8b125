package inbound

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ocpp-csms/central-system/internal/domain/events"
	"github.com/ocpp-csms/central-system/internal/domain/idtag"
	"github.com/ocpp-csms/central-system/internal/ocppversion"
)

type authorizeV16Request struct {
	IdTag string `json:"idTag" validate:"required,ocpp_id_token"`
}

type authorizeV2Request struct {
	IdToken struct {
		IdToken string `json:"idToken" validate:"required,ocpp_id_token"`
		Type    string `json:"type"`
	} `json:"idToken"`
}

func resolveAuthStatus(ctx context.Context, a *Adapter, tag string) idtag.Status {
	t, err := a.Repos.IdTags().Get(ctx, tag)
	if err != nil {
		return idtag.StatusInvalid
	}
	return t.AuthStatus(time.Now())
}

func handleAuthorizeV16(ctx context.Context, a *Adapter, chargePointID string, version ocppversion.Version, raw json.RawMessage) (interface{}, error) {
	var req authorizeV16Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, formationViolation(err.Error())
	}
	if err := validateRequest(a, req); err != nil {
		return nil, err
	}

	status := resolveAuthStatus(ctx, a, req.IdTag)
	a.Bus.Publish(events.NewAuthorizationResult(chargePointID, req.IdTag, string(status)))

	return map[string]interface{}{
		"idTagInfo": map[string]interface{}{"status": string(status)},
	}, nil
}

func handleAuthorizeV2(ctx context.Context, a *Adapter, chargePointID string, version ocppversion.Version, raw json.RawMessage) (interface{}, error) {
	var req authorizeV2Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, formationViolation(err.Error())
	}
	if err := validateRequest(a, req.IdToken); err != nil {
		return nil, err
	}

	status := resolveAuthStatus(ctx, a, req.IdToken.IdToken)
	a.Bus.Publish(events.NewAuthorizationResult(chargePointID, req.IdToken.IdToken, string(status)))

	return map[string]interface{}{
		"idTokenInfo": map[string]interface{}{"status": string(status)},
	}, nil
}
