package cache

import (
	"encoding/json"
	"testing"
)

func TestChannelAndKeyNaming(t *testing.T) {
	if got := updatesChannel("doc1"); got != "doc:doc1:updates" {
		t.Errorf("updatesChannel = %q, want doc:doc1:updates", got)
	}
	if got := stateKey("doc1"); got != "doc:doc1:state" {
		t.Errorf("stateKey = %q, want doc:doc1:state", got)
	}
}

func TestFanoutMessageRoundTrip(t *testing.T) {
	msg := FanoutMessage{
		Kind:     MessageCRDTUpdate,
		OriginID: "instance-a",
		Payload:  json.RawMessage(`"deadbeef"`),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got FanoutMessage
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Kind != msg.Kind || got.OriginID != msg.OriginID {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, msg)
	}
}
