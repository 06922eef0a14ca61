package gossip

import (
	"encoding/json"
	"testing"
)

func TestEnvelopeRoundTripsEventAndData(t *testing.T) {
	type payload struct {
		Foo string `json:"foo"`
	}
	raw, err := json.Marshal(payload{Foo: "bar"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	env := Envelope{Event: EventTx, Data: raw}

	encoded, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("Marshal envelope: %v", err)
	}

	var decoded Envelope
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("Unmarshal envelope: %v", err)
	}
	if decoded.Event != EventTx {
		t.Fatalf("Event = %q, want %q", decoded.Event, EventTx)
	}
	var gotPayload payload
	if err := json.Unmarshal(decoded.Data, &gotPayload); err != nil {
		t.Fatalf("Unmarshal payload: %v", err)
	}
	if gotPayload.Foo != "bar" {
		t.Fatalf("payload.Foo = %q, want bar", gotPayload.Foo)
	}
}
