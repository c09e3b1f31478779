// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

// controlRequest mirrors the envelope a control socket client sends.
type controlRequest struct {
	Action string `cbor:"action"`
	Login  string `cbor:"login,omitempty"`
	Limit  int    `cbor:"limit"`
}

// userSummary uses json tags, relying on the fallback.
type userSummary struct {
	Login    string `json:"login"`
	Sessions int    `json:"sessions"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := controlRequest{Action: "users", Login: "alice", Limit: 5}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("Marshal produced empty output")
	}

	var decoded controlRequest
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	value := map[string]any{"phase": "running", "users": 3, "binds": []string{"127.0.0.1:79"}}

	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}
	for range 10 {
		again, err := Marshal(value)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("deterministic encoding violated: %x != %x", first, again)
		}
	}
}

func TestEncoderDecoderStreamRoundtrip(t *testing.T) {
	requests := []controlRequest{
		{Action: "status"},
		{Action: "users", Limit: 10},
		{Action: "users", Login: "bob"},
	}

	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for _, request := range requests {
		if err := encoder.Encode(request); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	for i, want := range requests {
		var got controlRequest
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode request %d: %v", i, err)
		}
		if got != want {
			t.Errorf("request %d: got %+v, want %+v", i, got, want)
		}
	}
}

func TestJSONTagFallback(t *testing.T) {
	original := userSummary{Login: "carol", Sessions: 2}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var generic map[string]any
	if err := Unmarshal(data, &generic); err != nil {
		t.Fatalf("Unmarshal into map: %v", err)
	}
	if generic["login"] != "carol" {
		t.Errorf("login key = %v, want carol (json tag name)", generic["login"])
	}

	var decoded userSummary
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("json-tag roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestOmitemptyRespected(t *testing.T) {
	withLogin, err := Marshal(controlRequest{Action: "users", Login: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	withoutLogin, err := Marshal(controlRequest{Action: "users"})
	if err != nil {
		t.Fatal(err)
	}
	if len(withoutLogin) >= len(withLogin) {
		t.Errorf("omitempty not effective: without=%d bytes, with=%d bytes",
			len(withoutLogin), len(withLogin))
	}

	var generic map[string]any
	if err := Unmarshal(withoutLogin, &generic); err != nil {
		t.Fatal(err)
	}
	if _, present := generic["login"]; present {
		t.Error("empty login should be omitted")
	}
}

func TestTimeRoundtrip(t *testing.T) {
	type stamped struct {
		Start  time.Time     `cbor:"start"`
		Offset time.Duration `cbor:"offset"`
	}
	original := stamped{
		Start:  time.Date(2026, 4, 1, 8, 0, 0, 500, time.UTC),
		Offset: 90 * time.Second,
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded stamped
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !decoded.Start.Equal(original.Start) {
		t.Errorf("Start = %v, want %v", decoded.Start, original.Start)
	}
	if decoded.Offset != original.Offset {
		t.Errorf("Offset = %v, want %v", decoded.Offset, original.Offset)
	}

	notation, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !strings.Contains(notation, "2026-04-01T08:00:00.0000005Z") {
		t.Errorf("time should be encoded as RFC 3339 text, got %s", notation)
	}
}

func TestUnmarshalAnyUsesStringKeys(t *testing.T) {
	data, err := Marshal(map[string]any{"data": map[string]any{"users": 2}})
	if err != nil {
		t.Fatal(err)
	}

	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	outer, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded type = %T, want map[string]any", decoded)
	}
	if _, ok := outer["data"].(map[string]any); !ok {
		t.Errorf("nested type = %T, want map[string]any", outer["data"])
	}
}

func TestUnmarshalInvalidCBOR(t *testing.T) {
	var request controlRequest
	if err := Unmarshal([]byte{0xFF, 0xFE, 0xFD}, &request); err == nil {
		t.Error("Unmarshal should reject invalid CBOR")
	}
}

func TestRawMessageDefersDecoding(t *testing.T) {
	type envelope struct {
		OK   bool       `cbor:"ok"`
		Data RawMessage `cbor:"data"`
	}

	inner, err := Marshal(userSummary{Login: "dave", Sessions: 1})
	if err != nil {
		t.Fatal(err)
	}
	data, err := Marshal(envelope{OK: true, Data: inner})
	if err != nil {
		t.Fatal(err)
	}

	var decoded envelope
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal envelope: %v", err)
	}
	if !bytes.Equal(decoded.Data, inner) {
		t.Fatalf("raw data = %x, want %x", decoded.Data, inner)
	}

	var summary userSummary
	if err := Unmarshal(decoded.Data, &summary); err != nil {
		t.Fatalf("Unmarshal data: %v", err)
	}
	if summary.Login != "dave" {
		t.Errorf("login = %q, want dave", summary.Login)
	}
}

func TestDiagnose(t *testing.T) {
	data, err := Marshal(map[string]any{"action": "status"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	notation, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	for _, want := range []string{`"action"`, `"status"`} {
		if !strings.Contains(notation, want) {
			t.Errorf("notation %q does not contain %s", notation, want)
		}
	}
}

func BenchmarkMarshal(b *testing.B) {
	request := controlRequest{Action: "users", Login: "alice", Limit: 5}

	b.ReportAllocs()
	for b.Loop() {
		Marshal(request)
	}
}

func BenchmarkUnmarshal(b *testing.B) {
	data, err := Marshal(controlRequest{Action: "users", Login: "alice", Limit: 5})
	if err != nil {
		b.Fatal(err)
	}

	b.SetBytes(int64(len(data)))
	b.ReportAllocs()
	for b.Loop() {
		var decoded controlRequest
		Unmarshal(data, &decoded)
	}
}
