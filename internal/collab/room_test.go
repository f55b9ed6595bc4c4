package collab

import (
	"encoding/json"
	"testing"
	"time"
)

func TestRetryBackoffCapsAndEscalates(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 30 * time.Second},
		{100, 30 * time.Second},
	}
	for _, c := range cases {
		if got := retryBackoff(c.attempt); got != c.want {
			t.Errorf("retryBackoff(%d) = %v, want %v", c.attempt, got, c.want)
		}
	}
}

func TestFramePayloadRoundTrip(t *testing.T) {
	data := []byte{0x00, 0xde, 0xad, 0xbe, 0xef, 0x00}
	encoded := encodeFramePayload(data)

	// The payload travels as a base64 JSON string, not raw bytes.
	var asString string
	if err := json.Unmarshal(encoded, &asString); err != nil {
		t.Fatalf("frame payload is not a JSON string: %v", err)
	}

	decoded, err := decodeFramePayload(encoded)
	if err != nil {
		t.Fatalf("decodeFramePayload: %v", err)
	}
	if string(decoded) != string(data) {
		t.Fatalf("round trip = %v, want %v", decoded, data)
	}
}

func TestFramePayloadRoundTripEmpty(t *testing.T) {
	encoded := encodeFramePayload(nil)
	decoded, err := decodeFramePayload(encoded)
	if err != nil {
		t.Fatalf("decodeFramePayload: %v", err)
	}
	if len(decoded) != 0 {
		t.Fatalf("decoded = %v, want empty", decoded)
	}
}

func TestDecodeFramePayloadRejectsMalformed(t *testing.T) {
	if _, err := decodeFramePayload(json.RawMessage(`{"not":"a byte string"}`)); err == nil {
		t.Fatal("expected error decoding a non-string payload")
	}
}
