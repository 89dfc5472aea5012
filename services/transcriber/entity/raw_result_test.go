package entity

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xilidan/transcriber/pkg/vtt"
)

func TestRawResult_RoundTrip(t *testing.T) {
	tokens := []vtt.Token{
		{Text: "Hi", StartMs: 0, EndMs: 90, Confidence: 0.9},
		{Text: " there", StartMs: 100, EndMs: 300},
	}

	b, err := EncodeRawResult(ProviderSoniox, tokens)
	if err != nil {
		t.Fatalf("EncodeRawResult: %v", err)
	}

	raw, err := DecodeRawResult(b)
	if err != nil {
		t.Fatalf("DecodeRawResult: %v", err)
	}
	if raw.Version != RawResultVersion || raw.Provider != ProviderSoniox {
		t.Errorf("unexpected envelope: %+v", raw)
	}
	if diff := cmp.Diff(tokens, raw.Tokens); diff != "" {
		t.Errorf("tokens mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeRawResult_LegacyProviderPayload(t *testing.T) {
	legacy := []byte(`{"id":"abc","text":"Hi","tokens":[{"text":"Hi","start_ms":10,"end_ms":20,"confidence":0.5}]}`)

	raw, err := DecodeRawResult(legacy)
	if err != nil {
		t.Fatalf("DecodeRawResult: %v", err)
	}
	if raw.Provider != ProviderSoniox || len(raw.Tokens) != 1 || raw.Tokens[0].StartMs != 10 {
		t.Errorf("unexpected result: %+v", raw)
	}
}

func TestDecodeRawResult_Errors(t *testing.T) {
	if _, err := DecodeRawResult(nil); !errors.Is(err, ErrNoRawResult) {
		t.Errorf("empty payload: err = %v", err)
	}
	if _, err := DecodeRawResult([]byte(`{"version":9,"provider":"soniox"}`)); err == nil {
		t.Error("expected error for unknown version")
	}
	if _, err := DecodeRawResult([]byte(`{"version":1,"provider":"other"}`)); err == nil {
		t.Error("expected error for unknown provider")
	}
	if _, err := DecodeRawResult([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed payload")
	}
}
