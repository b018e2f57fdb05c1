package coordinator

import "testing"

func TestCallResponseValidate(t *testing.T) {
	t.Parallel()

	valid := CallResponse{
		ReportID:  "rep-1",
		Available: true,
		Payload:   map[string]any{"type": "call", "call_id": "c-1"},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("validate call response: %v", err)
	}

	missingID := valid
	missingID.ReportID = "  "
	if err := missingID.Validate(); err == nil {
		t.Fatalf("expected blank report_id to fail")
	}

	missingPayload := valid
	missingPayload.Payload = nil
	if err := missingPayload.Validate(); err == nil {
		t.Fatalf("expected empty payload to fail")
	}
}

func TestDeviceRegistrationValidate(t *testing.T) {
	t.Parallel()

	valid := DeviceRegistration{PushToken: "tok-1", AccountID: "acct-1"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("validate device registration: %v", err)
	}

	for name, reg := range map[string]DeviceRegistration{
		"missing token":   {AccountID: "acct-1"},
		"missing account": {PushToken: "tok-1"},
	} {
		if err := reg.Validate(); err == nil {
			t.Fatalf("%s: expected validation failure", name)
		}
	}
}
