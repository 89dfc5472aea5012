package soniox

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xilidan/transcriber/pkg/logger"
	"github.com/xilidan/transcriber/pkg/vtt"
	"github.com/xilidan/transcriber/services/transcriber/entity"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New("test-key", logger.Discard(), WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
}

func TestClient_Start(t *testing.T) {
	var got createTranscriptionRequest
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/transcriptions", func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"job-1"}`))
	})

	c := newTestClient(t, mux)
	id, err := c.Start(context.Background(), "https://example.com/a.mp3", "en")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if id != "job-1" {
		t.Errorf("id = %q, want job-1", id)
	}

	want := createTranscriptionRequest{
		AudioURL:      "https://example.com/a.mp3",
		Model:         DefaultModel,
		LanguageHints: []string{"en"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("request mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_Status(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		want     entity.Status
		wantErrM string
	}{
		{name: "queued", body: `{"status":"queued"}`, want: entity.StatusPending},
		{name: "processing", body: `{"status":"processing"}`, want: entity.StatusPending},
		{name: "completed", body: `{"status":"completed"}`, want: entity.StatusCompleted},
		{name: "error with message", body: `{"status":"error","error_message":"bad audio"}`, want: entity.StatusError, wantErrM: "bad audio"},
		{name: "error without message", body: `{"status":"error"}`, want: entity.StatusError, wantErrM: "Unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v1/transcriptions/job-1" {
					t.Errorf("path = %q", r.URL.Path)
				}
				_, _ = w.Write([]byte(tt.body))
			}))

			st, err := c.Status(context.Background(), "job-1")
			if err != nil {
				t.Fatalf("Status: %v", err)
			}
			if st.Status != tt.want {
				t.Errorf("status = %q, want %q", st.Status, tt.want)
			}
			if tt.wantErrM != "" && (st.ErrorMessage == nil || *st.ErrorMessage != tt.wantErrM) {
				t.Errorf("error message = %v, want %q", st.ErrorMessage, tt.wantErrM)
			}
		})
	}
}

func TestClient_Result(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/transcriptions/job-1/transcript" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"id":"job-1","text":"Hello world","tokens":[
			{"text":"Hel","start_ms":0,"end_ms":100,"confidence":0.9},
			{"text":"lo","start_ms":100,"end_ms":200,"confidence":0.9},
			{"text":" world","start_ms":250,"end_ms":500,"confidence":0.8}]}`))
	}))

	res, err := c.Result(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if res.Text != "Hello world" {
		t.Errorf("text = %q", res.Text)
	}

	want := []vtt.Token{
		{Text: "Hel", StartMs: 0, EndMs: 100, Confidence: 0.9},
		{Text: "lo", StartMs: 100, EndMs: 200, Confidence: 0.9},
		{Text: " world", StartMs: 250, EndMs: 500, Confidence: 0.8},
	}
	if diff := cmp.Diff(want, res.Tokens); diff != "" {
		t.Errorf("tokens mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantMsg    string
	}{
		{name: "not found", status: http.StatusNotFound, body: `{"message":"transcription not found"}`, wantStatus: 404, wantMsg: "transcription not found"},
		{name: "unauthorized plain", status: http.StatusUnauthorized, body: `invalid key`, wantStatus: 401, wantMsg: "invalid key"},
		{name: "malformed body", status: http.StatusOK, body: `{"status":`, wantStatus: 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))

			_, err := c.Status(context.Background(), "job-1")
			var upErr *entity.UpstreamError
			if !errors.As(err, &upErr) {
				t.Fatalf("err = %v, want *entity.UpstreamError", err)
			}
			if upErr.Service != "soniox" || upErr.StatusCode != tt.wantStatus {
				t.Errorf("unexpected error: %+v", upErr)
			}
			if tt.wantMsg != "" && upErr.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", upErr.Message, tt.wantMsg)
			}
		})
	}
}

func TestClient_Delete(t *testing.T) {
	deleted := false
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /v1/transcriptions/job-1", func(w http.ResponseWriter, r *http.Request) {
		deleted = true
		w.WriteHeader(http.StatusNoContent)
	})

	c := newTestClient(t, mux)
	if err := c.Delete(context.Background(), "job-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !deleted {
		t.Error("delete endpoint was not called")
	}
}
