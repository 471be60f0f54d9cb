package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/scribehq/scribe/internal/logging"
)

func writeTempAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "unit.mp3")
	if err := os.WriteFile(path, []byte("fake audio bytes"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBatchTranscribePlain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/listen" {
			t.Errorf("path = %q; want /v1/listen", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Token test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if r.URL.Query().Get("diarize") != "" {
			t.Error("diarize should not be set when not requested")
		}
		w.Write([]byte(`{"results":{"channels":[{"alternatives":[{"transcript":"hello world"}]}]}}`))
	}))
	defer srv.Close()

	b := NewBatch(srv.URL, "test-key", logging.New())
	res, err := b.Transcribe(context.Background(), writeTempAudio(t), Options{Model: "nova-2"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if res.PlainText != "hello world" {
		t.Errorf("PlainText = %q; want %q", res.PlainText, "hello world")
	}
	if res.FormattedText != "hello world" {
		t.Errorf("FormattedText = %q; want plain transcript", res.FormattedText)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("Warnings = %v; want none", res.Warnings)
	}
}

func TestBatchTranscribeDiarized(t *testing.T) {
	body := `{"results":{"channels":[{"alternatives":[{
		"transcript":"hi there. fine thanks.",
		"paragraphs":{"paragraphs":[
			{"speaker":0,"sentences":[{"text":"Hi there."},{"text":"How are you?"}]},
			{"speaker":1,"sentences":[{"text":"Fine, thanks."}]}
		]}
	}]}]}}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("diarize") != "true" || r.URL.Query().Get("paragraphs") != "true" {
			t.Error("expected diarize and paragraphs query options")
		}
		w.Write([]byte(body))
	}))
	defer srv.Close()

	b := NewBatch(srv.URL, "test-key", logging.New())
	res, err := b.Transcribe(context.Background(), writeTempAudio(t), Options{Model: "nova-2", Diarize: true})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	want := "Speaker 0: Hi there. How are you?\n\nSpeaker 1: Fine, thanks.\n\n"
	if res.FormattedText != want {
		t.Errorf("FormattedText = %q; want %q", res.FormattedText, want)
	}
	if res.PlainText != "hi there. fine thanks." {
		t.Errorf("PlainText = %q", res.PlainText)
	}
}

func TestBatchDiarizationFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":{"channels":[{"alternatives":[{"transcript":"no speakers here"}]}]}}`))
	}))
	defer srv.Close()

	b := NewBatch(srv.URL, "test-key", logging.New())
	res, err := b.Transcribe(context.Background(), writeTempAudio(t), Options{Model: "nova-2", Diarize: true})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	// Never fail the unit solely for missing diarization structure.
	if res.FormattedText != "no speakers here" {
		t.Errorf("FormattedText = %q; want plain fallback", res.FormattedText)
	}
	if len(res.Warnings) != 1 {
		t.Errorf("Warnings = %v; want one diarization warning", res.Warnings)
	}
}

func TestBatchClientErrorIsPermanent(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, `{"err_msg":"bad key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	b := NewBatch(srv.URL, "bad-key", logging.New())
	if _, err := b.Transcribe(context.Background(), writeTempAudio(t), Options{Model: "nova-2"}); err == nil {
		t.Fatal("expected error for 401 response")
	}
	if calls != 1 {
		t.Errorf("calls = %d; want 1 (4xx must not be retried)", calls)
	}
}

func TestBatchRetriesServerError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "oops", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"results":{"channels":[{"alternatives":[{"transcript":"recovered"}]}]}}`))
	}))
	defer srv.Close()

	b := NewBatch(srv.URL, "test-key", logging.New())
	res, err := b.Transcribe(context.Background(), writeTempAudio(t), Options{Model: "nova-2"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.PlainText != "recovered" {
		t.Errorf("PlainText = %q; want %q", res.PlainText, "recovered")
	}
	if calls < 2 {
		t.Errorf("calls = %d; want retry after 500", calls)
	}
}
