package pushabi

import "testing"

func TestParseEventKindFoldsUnknownValues(t *testing.T) {
	t.Parallel()

	cases := map[string]EventKind{
		"call":      KindCall,
		"checkin":   KindCheckin,
		"message":   KindMessage,
		"":          KindUnknown,
		"voicemail": KindUnknown,
		"CALL":      KindUnknown,
	}
	for raw, want := range cases {
		if got := ParseEventKind(raw); got != want {
			t.Fatalf("ParseEventKind(%q) = %s, want %s", raw, got, want)
		}
	}
}

func TestValidateRequiresCallPayload(t *testing.T) {
	t.Parallel()

	event := IncomingEvent{Kind: KindCall}
	if err := event.Validate(); err == nil {
		t.Fatalf("expected empty call payload to fail validation")
	}

	event.Payload = map[string]any{"type": "call", "call_id": "c-1"}
	if err := event.Validate(); err != nil {
		t.Fatalf("validate call event: %v", err)
	}

	checkin := IncomingEvent{Kind: KindCheckin}
	if err := checkin.Validate(); err != nil {
		t.Fatalf("checkin events do not require payloads: %v", err)
	}
}

func TestClonePayloadIsDetached(t *testing.T) {
	t.Parallel()

	event := IncomingEvent{
		Kind:    KindCall,
		Payload: map[string]any{"call_id": "c-2"},
	}
	clone := event.ClonePayload()
	clone["call_id"] = "mutated"

	if event.Payload["call_id"] != "c-2" {
		t.Fatalf("clone mutation leaked into original payload: %+v", event.Payload)
	}
}
