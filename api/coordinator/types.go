package coordinator

import (
	"fmt"
	"strings"
)

// CallResponse mirrors docs/CoordinatorContracts.schema.json $defs.call_response.
// Payload echoes the original push payload so the coordinator can correlate
// the answer with the call it announced.
type CallResponse struct {
	ReportID  string         `json:"report_id"`
	Available bool           `json:"available"`
	Payload   map[string]any `json:"payload"`
}

// Validate checks call-response completeness before it goes on the wire.
func (r CallResponse) Validate() error {
	if strings.TrimSpace(r.ReportID) == "" {
		return fmt.Errorf("report_id is required")
	}
	if len(r.Payload) == 0 {
		return fmt.Errorf("payload is required for correlation")
	}
	return nil
}

// DeviceRegistration mirrors docs/CoordinatorContracts.schema.json
// $defs.device_registration. The pair routes future call events here.
type DeviceRegistration struct {
	PushToken string `json:"push_token"`
	AccountID string `json:"account_id"`
}

// Validate checks both routing keys are present.
func (r DeviceRegistration) Validate() error {
	if strings.TrimSpace(r.PushToken) == "" {
		return fmt.Errorf("push_token is required")
	}
	if strings.TrimSpace(r.AccountID) == "" {
		return fmt.Errorf("account_id is required")
	}
	return nil
}
