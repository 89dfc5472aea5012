package main

import (
	"context"
	"strings"
	"testing"

	config "github.com/xilidan/transcriber/config/transcriber"
	"github.com/xilidan/transcriber/pkg/logger"
	"github.com/xilidan/transcriber/pkg/vtt"
	"github.com/xilidan/transcriber/services/transcriber/entity"
)

func TestRender(t *testing.T) {
	res := &entity.TranscriptResult{
		Text: "Hello there world",
		Tokens: []vtt.Token{
			{Text: "Hello", StartMs: 0, EndMs: 400},
			{Text: " there", StartMs: 450, EndMs: 800},
			{Text: " world", StartMs: 900, EndMs: 1500},
		},
	}

	tests := []struct {
		name string
		opts options
		want string
	}{
		{
			name: "text",
			opts: options{format: formatText},
			want: "Hello there world\n",
		},
		{
			name: "vtt",
			opts: options{format: formatVTT, wordsPerCue: 2},
			want: "WEBVTT\n\n" +
				"00:00:00.000 --> 00:00:00.800\nHello there\n\n" +
				"00:00:00.900 --> 00:00:01.500\nworld\n\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := render(context.Background(), &config.Config{}, logger.Discard(), res, tt.opts)
			if err != nil {
				t.Fatalf("render() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("render() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRender_FallsBackToText(t *testing.T) {
	res := &entity.TranscriptResult{Text: "only text"}

	got, err := render(context.Background(), &config.Config{}, logger.Discard(), res, options{format: formatText})
	if err != nil {
		t.Fatalf("render() error = %v", err)
	}
	if got != "only text\n" {
		t.Errorf("render() = %q", got)
	}
}

func TestCommand_RejectsUnknownFormat(t *testing.T) {
	cmd := newCommand()
	cmd.SetArgs([]string{"https://example.com/a.mp3", "--format", "srt"})
	cmd.SetErr(&strings.Builder{})

	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "unsupported format") {
		t.Fatalf("Execute() error = %v, want unsupported format", err)
	}
}

func TestCommand_RequiresURL(t *testing.T) {
	cmd := newCommand()
	cmd.SetArgs(nil)
	cmd.SetErr(&strings.Builder{})

	if err := cmd.Execute(); err == nil {
		t.Fatal("Execute() without arguments succeeded")
	}
}
