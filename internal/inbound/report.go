package inbound

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ocpp-csms/central-system/internal/domain/chargepoint"
	"github.com/ocpp-csms/central-system/internal/ocppversion"
)

// notifyReportRequest mirrors OCPP 2.0.1 part 2's NotifyReportRequest:
// one or more ReportData entries, possibly split across several messages
// correlated by requestId with tbc ("to be continued") chaining the rest.
type notifyReportRequest struct {
	RequestId   int    `json:"requestId"`
	GeneratedAt string `json:"generatedAt" validate:"ocpp_datetime"`
	Tbc         bool   `json:"tbc,omitempty"`
	SeqNo       int    `json:"seqNo"`
	ReportData  []struct {
		Component struct {
			Name     string `json:"name"`
			Instance string `json:"instance,omitempty"`
		} `json:"component"`
		Variable struct {
			Name     string `json:"name"`
			Instance string `json:"instance,omitempty"`
		} `json:"variable"`
		VariableAttribute []struct {
			Value string `json:"value,omitempty"`
		} `json:"variableAttribute,omitempty"`
	} `json:"reportData"`
}

// handleNotifyReport assembles the (possibly multi-part) component/
// variable report a charge station sends in response to GetBaseReport or
// GetReport onto the station's ChargePoint (AppendReportComponents), keyed
// by requestId: parts are appended in arrival order. tbc and seqNo are
// parsed but not used, so parts are not reordered by seqNo and no part
// marks the report as complete.
func handleNotifyReport(ctx context.Context, a *Adapter, chargePointID string, version ocppversion.Version, raw json.RawMessage) (interface{}, error) {
	var req notifyReportRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, formationViolation(err.Error())
	}
	if err := validateRequest(a, req); err != nil {
		return nil, err
	}

	repo := a.Repos.ChargePoints()
	cp, err := repo.Get(ctx, chargePointID)
	if err != nil {
		cp = chargepoint.New(chargePointID)
	}

	generatedAt := parseOCPPTime(req.GeneratedAt, time.Now())
	components := make([]chargepoint.ReportedComponent, 0, len(req.ReportData))
	for _, rd := range req.ReportData {
		value := ""
		if len(rd.VariableAttribute) > 0 {
			value = rd.VariableAttribute[0].Value
		}
		components = append(components, chargepoint.ReportedComponent{
			Component: rd.Component.Name,
			Variable:  rd.Variable.Name,
			Value:     value,
		})
	}
	cp.AppendReportComponents(req.RequestId, components, generatedAt)

	if err := repo.Upsert(ctx, cp); err != nil {
		return nil, internalError(err.Error())
	}

	return map[string]interface{}{}, nil
}
