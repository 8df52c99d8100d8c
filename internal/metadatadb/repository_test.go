package metadatadb

import (
	"encoding/json"
	"testing"
)

func TestMarshalFieldsNilBecomesEmptyObject(t *testing.T) {
	payload, err := marshalFields(nil)
	if err != nil {
		t.Fatalf("marshalFields: %v", err)
	}
	if string(payload) != "{}" {
		t.Errorf("got %s, want {}", payload)
	}
}

func TestMarshalFieldsRoundTrips(t *testing.T) {
	in := map[string]any{"Manufacturer": "ACME", "KVP": 120.0}
	payload, err := marshalFields(in)
	if err != nil {
		t.Fatalf("marshalFields: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(payload, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out["Manufacturer"] != "ACME" {
		t.Errorf("Manufacturer = %v, want ACME", out["Manufacturer"])
	}
}
