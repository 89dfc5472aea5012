package entity

import (
	"encoding/json"
	"fmt"

	"github.com/xilidan/transcriber/pkg/vtt"
)

const (
	RawResultVersion = 1
	ProviderSoniox   = "soniox"
)

// RawResult is the stored recognizer output that text and subtitles are
// regenerated from. Version 0 is a bare provider transcript that predates the
// envelope; it is read as Soniox tokens.
type RawResult struct {
	Version  int         `json:"version"`
	Provider string      `json:"provider"`
	Tokens   []vtt.Token `json:"tokens"`
}

func EncodeRawResult(provider string, tokens []vtt.Token) ([]byte, error) {
	if tokens == nil {
		tokens = []vtt.Token{}
	}

	b, err := json.Marshal(RawResult{
		Version:  RawResultVersion,
		Provider: provider,
		Tokens:   tokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode raw result: %w", err)
	}
	return b, nil
}

func DecodeRawResult(b []byte) (*RawResult, error) {
	if len(b) == 0 {
		return nil, ErrNoRawResult
	}

	var raw RawResult
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode raw result: %w", err)
	}

	switch raw.Version {
	case 0:
		raw.Version = RawResultVersion
		raw.Provider = ProviderSoniox
	case RawResultVersion:
	default:
		return nil, fmt.Errorf("unsupported raw result version %d", raw.Version)
	}

	if raw.Provider != ProviderSoniox {
		return nil, fmt.Errorf("unsupported raw result provider %q", raw.Provider)
	}

	return &raw, nil
}
