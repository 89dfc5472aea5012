package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	config "github.com/xilidan/transcriber/config/transcriber"
	"github.com/xilidan/transcriber/pkg/logger"
	"github.com/xilidan/transcriber/services/transcriber/clients/soniox"
	"github.com/xilidan/transcriber/services/transcriber/entity"
	"github.com/xilidan/transcriber/services/transcriber/storage"
	"github.com/xilidan/transcriber/services/transcriber/usecase"
)

// fakeSoniox reports a job as processing for the first status call and
// completed afterwards.
type fakeSoniox struct {
	mu          sync.Mutex
	statusCalls int
}

func (f *fakeSoniox) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v1/transcriptions":
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id":"job-1"}`)
	case r.Method == http.MethodGet && r.URL.Path == "/v1/transcriptions/job-1":
		f.mu.Lock()
		f.statusCalls++
		status := "completed"
		if f.statusCalls == 1 {
			status = "processing"
		}
		f.mu.Unlock()
		fmt.Fprintf(w, `{"id":"job-1","status":%q}`, status)
	case r.Method == http.MethodGet && r.URL.Path == "/v1/transcriptions/job-1/transcript":
		io.WriteString(w, `{"id":"job-1","text":"Good morning everyone","tokens":[
			{"text":"Good","start_ms":0,"end_ms":300},
			{"text":" mor","start_ms":350,"end_ms":500},
			{"text":"ning","start_ms":500,"end_ms":700},
			{"text":" every","start_ms":800,"end_ms":1000},
			{"text":"one","start_ms":1000,"end_ms":1200}]}`)
	case r.Method == http.MethodDelete:
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"message":"transcription not found"}`)
	}
}

type recordingTracker struct {
	jobs []string
}

func (r *recordingTracker) Track(jobID, dbID string) {
	r.jobs = append(r.jobs, jobID+"/"+dbID)
}

func newTestServer(t *testing.T) (*httptest.Server, *recordingTracker) {
	t.Helper()

	upstream := httptest.NewServer(&fakeSoniox{})
	t.Cleanup(upstream.Close)

	stg, err := storage.Open(context.Background(), storage.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { stg.Close() })

	log := logger.Discard()
	cfg := &config.Config{VTTWordsPerCue: 6, PollInterval: time.Millisecond}
	stt := soniox.New("test-key", log, soniox.WithBaseURL(upstream.URL))
	usc := usecase.New(cfg, stg, stt, nil)

	tracker := &recordingTracker{}
	srv := httptest.NewServer(New(cfg, usc, log).WithTracker(tracker).Routes())
	t.Cleanup(srv.Close)

	return srv, tracker
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, b
}

func decode[T any](t *testing.T, b []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
	return v
}

func TestTranscriptionFlow(t *testing.T) {
	srv, tracker := newTestServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/transcribe", `{"audio_url":"https://example.com/standup.mp3","language":"en"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /transcribe = %d: %s", resp.StatusCode, body)
	}
	started := decode[StartTranscriptionResponse](t, body)
	if started.TranscriptionID != "job-1" || started.DBID == "" {
		t.Fatalf("unexpected start response: %+v", started)
	}
	if len(tracker.jobs) != 1 || tracker.jobs[0] != "job-1/"+started.DBID {
		t.Errorf("tracked jobs = %v", tracker.jobs)
	}

	statusURL := fmt.Sprintf("%s/transcribe/%s/status?db_id=%s", srv.URL, started.TranscriptionID, started.DBID)
	_, body = do(t, http.MethodGet, statusURL, "")
	if st := decode[StatusResponse](t, body); st.Status != entity.StatusPending {
		t.Fatalf("first status = %q, want pending", st.Status)
	}
	_, body = do(t, http.MethodGet, statusURL, "")
	if st := decode[StatusResponse](t, body); st.Status != entity.StatusCompleted {
		t.Fatalf("second status = %q, want completed", st.Status)
	}

	resp, body = do(t, http.MethodGet, fmt.Sprintf("%s/transcribe/job-1/transcript?db_id=%s", srv.URL, started.DBID), "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET transcript = %d: %s", resp.StatusCode, body)
	}
	if text := decode[TranscriptResponse](t, body).Text; text != "Good morning everyone" {
		t.Errorf("text = %q", text)
	}

	resp, body = do(t, http.MethodGet, fmt.Sprintf("%s/transcribe/job-1/vtt?db_id=%s", srv.URL, started.DBID), "")
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/vtt") {
		t.Errorf("Content-Type = %q", ct)
	}
	want := "WEBVTT\n\n00:00:00.000 --> 00:00:01.200\nGood morning everyone\n\n"
	if string(body) != want {
		t.Errorf("vtt = %q, want %q", body, want)
	}

	_, body = do(t, http.MethodGet, srv.URL+"/transcriptions", "")
	list := decode[ListTranscriptionsResponse](t, body)
	if len(list.Transcriptions) != 1 || list.Transcriptions[0].Title != "standup.mp3" {
		t.Errorf("list = %+v", list)
	}

	resp, body = do(t, http.MethodPost, srv.URL+"/transcriptions/"+started.DBID+"/regenerate-vtt", "")
	if resp.StatusCode != http.StatusOK || decode[RegenerateVTTResponse](t, body).VTTContent != want {
		t.Errorf("regenerate-vtt = %d: %s", resp.StatusCode, body)
	}

	resp, body = do(t, http.MethodGet, srv.URL+"/transcriptions/"+started.DBID+"/vtt", "")
	if resp.StatusCode != http.StatusOK || string(body) != want {
		t.Errorf("stored vtt = %d: %q", resp.StatusCode, body)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "attachment") {
		t.Errorf("Content-Disposition = %q", cd)
	}
}

func TestUnknownJob(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := do(t, http.MethodGet, srv.URL+"/transcribe/does-not-exist/status", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404: %s", resp.StatusCode, body)
	}
	if msg := decode[map[string]string](t, body)["error"]; msg == "" {
		t.Errorf("missing error message in %s", body)
	}

	resp, _ = do(t, http.MethodGet, srv.URL+"/transcriptions/does-not-exist", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /transcriptions/{id} = %d, want 404", resp.StatusCode)
	}
}

func TestStartValidation(t *testing.T) {
	srv, tracker := newTestServer(t)

	for _, body := range []string{``, `{`, `{"audio_url":""}`, `{"audio_url":"file:///etc/passwd"}`} {
		resp, b := do(t, http.MethodPost, srv.URL+"/transcribe", body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400 (%s)", body, resp.StatusCode, b)
		}
	}
	if len(tracker.jobs) != 0 {
		t.Errorf("rejected requests were tracked: %v", tracker.jobs)
	}
}

func TestTranslations(t *testing.T) {
	srv, _ := newTestServer(t)

	_, body := do(t, http.MethodPost, srv.URL+"/transcribe", `{"audio_url":"https://example.com/a.mp3","title":"Standup"}`)
	started := decode[StartTranscriptionResponse](t, body)
	base := srv.URL + "/transcriptions/" + started.DBID

	resp, body := do(t, http.MethodPost, base+"/translations", `{"target_language":"de","translated_text":""}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty translation: status = %d, want 400 (%s)", resp.StatusCode, body)
	}

	resp, body = do(t, http.MethodPost, base+"/translations", `{"target_language":"de","auto_translate":true}`)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("auto translation without provider: status = %d, want 503 (%s)", resp.StatusCode, body)
	}

	resp, body = do(t, http.MethodPost, srv.URL+"/transcriptions/missing/translations", `{"target_language":"de","translated_text":"Hallo"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing transcription: status = %d, want 404 (%s)", resp.StatusCode, body)
	}

	resp, body = do(t, http.MethodPost, base+"/translations",
		`{"target_language":"de","translated_text":"Guten Morgen","translated_vtt":"WEBVTT\n\n00:00:00.000 --> 00:00:01.000\nGuten Morgen\n"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("manual translation: status = %d (%s)", resp.StatusCode, body)
	}
	created := decode[AddTranslationResponse](t, body)

	_, body = do(t, http.MethodGet, base, "")
	details := decode[GetTranscriptionResponse](t, body)
	if details.Transcription.Title != "Standup" || len(details.Translations) != 1 {
		t.Fatalf("details = %+v", details)
	}
	if tr := details.Translations[0]; tr.ID != created.Translation.ID || tr.TranslatedText != "Guten Morgen" {
		t.Errorf("translation = %+v", tr)
	}

	resp, body = do(t, http.MethodGet, srv.URL+"/translations/"+created.Translation.ID+"/vtt", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "Guten Morgen") {
		t.Errorf("translation vtt = %d: %q", resp.StatusCode, body)
	}

	resp, _ = do(t, http.MethodPost, base+"/regenerate-text", "")
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("regenerate before completion: status = %d, want 409", resp.StatusCode)
	}
}

func TestHealthAndIndex(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := do(t, http.MethodGet, srv.URL+"/health", "")
	if resp.StatusCode != http.StatusOK || !decode[map[string]bool](t, body)["status"] {
		t.Errorf("health = %d: %s", resp.StatusCode, body)
	}

	resp, body = do(t, http.MethodGet, srv.URL+"/", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "<form id=\"start\">") {
		t.Errorf("index = %d", resp.StatusCode)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{entity.Invalid("audio_url", "is required"), http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", entity.ErrNotFound), http.StatusNotFound},
		{entity.ErrNotReady, http.StatusConflict},
		{fmt.Errorf("row: %w", entity.ErrNoRawResult), http.StatusConflict},
		{entity.ErrNotConfigured, http.StatusServiceUnavailable},
		{&entity.UpstreamError{Service: "soniox", StatusCode: 404}, http.StatusNotFound},
		{&entity.UpstreamError{Service: "soniox", StatusCode: 500}, http.StatusBadGateway},
		{&entity.UpstreamError{Service: "openai"}, http.StatusBadGateway},
		{errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
