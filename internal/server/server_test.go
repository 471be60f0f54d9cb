package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/scribehq/scribe/internal/config"
	"github.com/scribehq/scribe/internal/job"
	"github.com/scribehq/scribe/internal/logging"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Server.UploadDir = t.TempDir()
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *job.Registry) {
	t.Helper()
	jobs := job.NewRegistry(1, nil, logging.New())
	return NewServer(cfg, jobs, logging.New()), jobs
}

func multipartUpload(t *testing.T, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	fw, err := w.CreateFormFile("file", "meeting.mp3")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte("fake audio")); err != nil {
		t.Fatal(err)
	}
	for k, v := range fields {
		w.WriteField(k, v)
	}
	w.Close()
	return &body, w.FormDataContentType()
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, testConfig(t))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestAuthMiddleware(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.APIKey = "secret"
	s, _ := newTestServer(t, cfg)

	// Health stays open.
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d; want 200 without key", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/models", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d; want 401 without key", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/models", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d; want 200 with key", rec.Code)
	}
}

func TestCreateTranscription(t *testing.T) {
	s, jobs := newTestServer(t, testConfig(t))

	body, contentType := multipartUpload(t, map[string]string{
		"model":   "nova-2",
		"diarize": "true",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/transcriptions", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}

	j := jobs.Get(resp.Data.ID)
	if j == nil {
		t.Fatal("job not registered")
	}
	if !j.Options.Diarize || j.Options.Model != "nova-2" {
		t.Errorf("Options = %+v", j.Options)
	}
	if j.Filename != "meeting.mp3" {
		t.Errorf("Filename = %q", j.Filename)
	}
}

func TestCreateRejectsUnknownModel(t *testing.T) {
	s, _ := newTestServer(t, testConfig(t))

	body, contentType := multipartUpload(t, map[string]string{"model": "made-up"})
	req := httptest.NewRequest(http.MethodPost, "/api/transcriptions", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d; want 400", rec.Code)
	}
}

func TestCreateRequiresFile(t *testing.T) {
	s, _ := newTestServer(t, testConfig(t))

	req := httptest.NewRequest(http.MethodPost, "/api/transcriptions", strings.NewReader("model=nova-2"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d; want 400", rec.Code)
	}
}

func TestCreateRejectsBadBudget(t *testing.T) {
	s, _ := newTestServer(t, testConfig(t))

	body, contentType := multipartUpload(t, map[string]string{
		"model":             "nova-2",
		"segment_budget_mb": "-3",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/transcriptions", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d; want 400", rec.Code)
	}
}

func TestGetUnknownJob(t *testing.T) {
	s, _ := newTestServer(t, testConfig(t))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/transcriptions/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d; want 404", rec.Code)
	}
}

func TestCancel(t *testing.T) {
	s, jobs := newTestServer(t, testConfig(t))

	j, err := jobs.Add("/tmp/in.mp4", "in.mp4", job.Options{Model: "nova-2"})
	if err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/transcriptions/"+j.ID+"/cancel", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if j.Context().Err() == nil {
		t.Error("cancel endpoint must signal the job context")
	}

	// Cancelling again still acknowledges.
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/transcriptions/"+j.ID+"/cancel", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("second cancel status = %d; want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/transcriptions/missing/cancel", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown job cancel status = %d; want 404", rec.Code)
	}
}

func TestEventsStream(t *testing.T) {
	cfg := testConfig(t)
	jobs := job.NewRegistry(1, nil, logging.New())
	jobs.Start(func(ctx context.Context, j *job.Job, events *job.Channel) {
		events.Publish(job.Event{JobID: j.ID, Type: job.EventStatus, State: job.StateDurationCheck})
		events.Publish(job.Event{JobID: j.ID, Type: job.EventDone, State: job.StateDone})
		events.CloseAfter(0)
	})
	defer jobs.Stop()

	s := NewServer(cfg, jobs, logging.New())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	j, err := jobs.Add("/tmp/in.mp4", "in.mp4", job.Options{Model: "nova-2"})
	if err != nil {
		t.Fatal(err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(srv.URL + "/api/transcriptions/" + j.ID + "/events")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Content-Type = %q", ct)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	body := string(data)
	if !strings.Contains(body, "event:status") && !strings.Contains(body, "event: status") {
		t.Errorf("stream missing status event:\n%s", body)
	}
	if !strings.Contains(body, "done") {
		t.Errorf("stream missing terminal event:\n%s", body)
	}
}
