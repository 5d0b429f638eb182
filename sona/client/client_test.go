package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kbukum/sonago/errors"
	"github.com/kbukum/sonago/sonatest"
	"github.com/kbukum/sonago/transcription"
)

func newClient(t *testing.T, fake *sonatest.Server) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: fake.URL()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func audioFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.wav")
	if err := os.WriteFile(path, []byte("RIFF....WAVEfmt "), 0o600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return path
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{}); !errors.IsCode(err, errors.ErrCodeMissingField) {
		t.Errorf("expected MISSING_FIELD, got %v", err)
	}
	if _, err := New(Config{BaseURL: "ftp://example"}); !errors.IsCode(err, errors.ErrCodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT, got %v", err)
	}
	if _, err := New(Config{BaseURL: "http://127.0.0.1:1", Timeout: -time.Second}); err == nil {
		t.Error("expected negative timeout to be rejected")
	}
}

func TestClient_ModelEndpoints(t *testing.T) {
	fake := sonatest.NewServer(t)
	c := newClient(t, fake)
	ctx := context.Background()

	health, err := c.Health(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if health.Status != "ok" || health.Raw["status"] != "ok" {
		t.Errorf("unexpected health %+v", health)
	}

	_, err = c.Ready(ctx)
	status, body, ok := errors.ProtocolStatus(err)
	if !ok || status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 protocol error, got %v", err)
	}
	if len(body) == 0 {
		t.Error("expected protocol error to carry the body")
	}

	loaded, err := c.LoadModel(ctx, "/models/ggml-tiny.bin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded.Status != "loaded" || loaded.Model != "ggml-tiny" {
		t.Errorf("unexpected load status %+v", loaded)
	}

	ready, err := c.Ready(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ready.Model != "ggml-tiny" {
		t.Errorf("expected ready model ggml-tiny, got %q", ready.Model)
	}

	models, err := c.ListModels(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ids := models.IDs(); len(ids) != 1 || ids[0] != "ggml-tiny" {
		t.Errorf("unexpected models %v", ids)
	}

	unloaded, err := c.UnloadModel(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if unloaded.Status != "unloaded" {
		t.Errorf("unexpected unload status %+v", unloaded)
	}
}

func TestClient_LoadModelRequiresPath(t *testing.T) {
	fake := sonatest.NewServer(t)
	c := newClient(t, fake)
	if _, err := c.LoadModel(context.Background(), ""); !errors.IsCode(err, errors.ErrCodeMissingField) {
		t.Errorf("expected MISSING_FIELD, got %v", err)
	}
	if fake.TotalHits() != 0 {
		t.Errorf("expected no requests, got %d", fake.TotalHits())
	}
}

func TestClient_SendsRequestHeaders(t *testing.T) {
	fake := sonatest.NewServer(t)
	c := newClient(t, fake)

	for range 2 {
		if _, err := c.Health(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	ids := fake.RequestIDs()
	if len(ids) != 2 || ids[0] == "" || ids[0] == ids[1] {
		t.Errorf("expected two distinct request ids, got %v", ids)
	}
}

func TestClient_Transcribe_ResultVariants(t *testing.T) {
	fake := sonatest.NewServer(t, sonatest.WithModel("base"))
	c := newClient(t, fake)
	audio := audioFile(t)

	tests := []struct {
		name   string
		format transcription.Format
		stream bool
		kind   transcription.Kind
	}{
		{"default", "", false, transcription.KindTranscript},
		{"json", transcription.FormatJSON, false, transcription.KindTranscript},
		{"verbose_json", transcription.FormatVerboseJSON, false, transcription.KindTranscript},
		{"text", transcription.FormatText, false, transcription.KindText},
		{"srt", transcription.FormatSRT, false, transcription.KindText},
		{"vtt", transcription.FormatVTT, false, transcription.KindText},
		{"stream", transcription.FormatVerboseJSON, true, transcription.KindStream},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := c.Transcribe(context.Background(), transcription.Request{
				AudioPath: audio,
				Format:    tc.format,
				Stream:    tc.stream,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Kind() != tc.kind {
				t.Errorf("expected %s, got %s", tc.kind, res.Kind())
			}
			if s, ok := res.(*transcription.Stream); ok {
				if _, err := s.Collect(context.Background()); err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
			}
		})
	}
}

func TestClient_Transcribe_FormFields(t *testing.T) {
	fake := sonatest.NewServer(t, sonatest.WithModel("base"))
	c := newClient(t, fake)

	_, err := c.Transcribe(context.Background(), transcription.Request{
		AudioPath:    audioFile(t),
		Format:       transcription.FormatVerboseJSON,
		Language:     "en",
		DiarizeModel: "pyannote",
		Temperature:  0.2,
		BeamSize:     5,
		Threads:      4,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	form := fake.LastForm()
	want := map[string]string{
		"response_format":   "verbose_json",
		"language":          "en",
		"diarize_model":     "pyannote",
		"temperature":       "0.2",
		"sampling_strategy": "beam_search",
		"beam_size":         "5",
		"n_threads":         "4",
	}
	for k, v := range want {
		if form[k] != v {
			t.Errorf("field %s = %q, want %q", k, form[k], v)
		}
	}
	for _, absent := range []string{"stream", "prompt", "translate", "best_of"} {
		if _, ok := form[absent]; ok {
			t.Errorf("expected %s to be omitted", absent)
		}
	}
}

func TestClient_Transcribe_UnknownFormatPassesThrough(t *testing.T) {
	fake := sonatest.NewServer(t, sonatest.WithModel("base"))
	c := newClient(t, fake)

	res, err := c.Transcribe(context.Background(), transcription.Request{
		AudioPath: audioFile(t),
		Format:    "tsv",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := fake.LastForm()["response_format"]; got != "tsv" {
		t.Errorf("expected response_format tsv, got %q", got)
	}
	tr, ok := res.(*transcription.Transcript)
	if !ok {
		t.Fatalf("expected *Transcript, got %T", res)
	}
	if tr.Text == "" {
		t.Error("expected transcript text")
	}
}

func TestClient_UndecodableSuccessBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>oops</html>"))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer c.Close()
	ctx := context.Background()

	calls := map[string]func() error{
		"health": func() error { _, err := c.Health(ctx); return err },
		"transcribe_json": func() error {
			_, err := c.TranscribeJSON(ctx, transcription.Request{AudioPath: audioFile(t)})
			return err
		},
	}
	for name, call := range calls {
		err := call()
		if !errors.IsCode(err, errors.ErrCodeDecodeFailed) {
			t.Errorf("%s: expected DECODE_FAILED, got %v", name, err)
			continue
		}
		if _, _, ok := errors.ProtocolStatus(err); ok {
			t.Errorf("%s: decode failure should not report a protocol status", name)
		}
	}
}

func TestClient_Transcribe_MissingAudio(t *testing.T) {
	fake := sonatest.NewServer(t, sonatest.WithModel("base"))
	c := newClient(t, fake)

	_, err := c.Transcribe(context.Background(), transcription.Request{
		AudioPath: filepath.Join(t.TempDir(), "missing.wav"),
	})
	if !errors.IsCode(err, errors.ErrCodeAudioNotFound) {
		t.Fatalf("expected AUDIO_NOT_FOUND, got %v", err)
	}
	if fake.TotalHits() != 0 {
		t.Errorf("expected no requests to reach the server, got %d", fake.TotalHits())
	}
}

func TestClient_Transcribe_NoModel(t *testing.T) {
	fake := sonatest.NewServer(t)
	c := newClient(t, fake)

	_, err := c.Transcribe(context.Background(), transcription.Request{AudioPath: audioFile(t)})
	status, _, ok := errors.ProtocolStatus(err)
	if !ok || status != http.StatusServiceUnavailable {
		t.Errorf("expected 503 protocol error, got %v", err)
	}
}

func TestClient_TranscribeStream_MatchesVerboseJSON(t *testing.T) {
	fake := sonatest.NewServer(t, sonatest.WithModel("base"))
	c := newClient(t, fake)
	ctx := context.Background()
	audio := audioFile(t)

	full, err := c.TranscribeJSON(ctx, transcription.Request{AudioPath: audio, Format: transcription.FormatVerboseJSON})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stream, err := c.TranscribeStream(ctx, transcription.Request{AudioPath: audio, Format: transcription.FormatVerboseJSON})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var segs []transcription.Segment
	for ev, err := range stream.All(ctx) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ev.Type == transcription.EventSegment {
			segs = append(segs, ev.Segment())
		}
	}

	if len(segs) == 0 || len(segs) != len(full.Segments) {
		t.Fatalf("expected %d streamed segments, got %d", len(full.Segments), len(segs))
	}
	for i := range segs {
		if segs[i].Start != full.Segments[i].Start || segs[i].End != full.Segments[i].End || segs[i].Text != full.Segments[i].Text {
			t.Errorf("segment %d: streamed %+v, full %+v", i, segs[i], full.Segments[i])
		}
	}
}

func TestClient_TranscribeStream_ServerError(t *testing.T) {
	fake := sonatest.NewServer(t, sonatest.WithModel("base"), sonatest.WithStreamError("out of memory"))
	c := newClient(t, fake)

	stream, err := c.TranscribeStream(context.Background(), transcription.Request{AudioPath: audioFile(t)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tr, err := stream.Collect(context.Background())
	if !errors.IsCode(err, errors.ErrCodeTranscriptionFailed) {
		t.Fatalf("expected TRANSCRIPTION_FAILED, got %v", err)
	}
	if len(tr.Segments) != 1 {
		t.Errorf("expected the segment before the error, got %d", len(tr.Segments))
	}
}

func TestClient_TypedConveniences(t *testing.T) {
	fake := sonatest.NewServer(t, sonatest.WithModel("base"))
	c := newClient(t, fake)
	ctx := context.Background()
	audio := audioFile(t)

	text, err := c.TranscribeText(ctx, transcription.Request{AudioPath: audio})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text.String() != "Hello from the fake server. This is the second segment." {
		t.Errorf("unexpected text %q", text)
	}

	if _, err := c.TranscribeText(ctx, transcription.Request{AudioPath: audio, Format: transcription.FormatJSON}); !errors.IsCode(err, errors.ErrCodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT for json via TranscribeText, got %v", err)
	}
	if _, err := c.TranscribeJSON(ctx, transcription.Request{AudioPath: audio, Format: transcription.FormatSRT}); !errors.IsCode(err, errors.ErrCodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT for srt via TranscribeJSON, got %v", err)
	}
}

func TestClient_ConnectionFailed(t *testing.T) {
	fake := sonatest.NewServer(t)
	url := fake.URL()
	_ = fake.Stop(context.Background())

	c, err := New(Config{BaseURL: url})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer c.Close()

	if _, err := c.Health(context.Background()); !errors.IsCode(err, errors.ErrCodeConnectionFailed) {
		t.Errorf("expected CONNECTION_FAILED, got %v", err)
	}
}

func TestClient_Timeout(t *testing.T) {
	fake := sonatest.NewServer(t)
	c := newClient(t, fake)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Health(ctx); !errors.IsCode(err, errors.ErrCodeTimeout) {
		t.Errorf("expected TIMEOUT, got %v", err)
	}
}

func TestClient_Close(t *testing.T) {
	fake := sonatest.NewServer(t, sonatest.WithModel("base"), sonatest.WithStreamDelay(200*time.Millisecond))
	c := newClient(t, fake)
	ctx := context.Background()

	stream, err := c.TranscribeStream(ctx, transcription.Request{AudioPath: audioFile(t)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok, err := stream.Next(ctx); !ok || err != nil {
		t.Fatalf("expected first event, got ok=%v err=%v", ok, err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if !c.Closed() {
		t.Error("expected client to report closed")
	}

	if _, _, err := stream.Next(ctx); !errors.IsCode(err, errors.ErrCodeSessionClosed) {
		t.Errorf("expected open stream to fail with SESSION_CLOSED, got %v", err)
	}

	hits := fake.TotalHits()
	calls := map[string]func() error{
		"health":     func() error { _, err := c.Health(ctx); return err },
		"ready":      func() error { _, err := c.Ready(ctx); return err },
		"load":       func() error { _, err := c.LoadModel(ctx, "/m.bin"); return err },
		"unload":     func() error { _, err := c.UnloadModel(ctx); return err },
		"list":       func() error { _, err := c.ListModels(ctx); return err },
		"transcribe": func() error { _, err := c.Transcribe(ctx, transcription.Request{AudioPath: "x.wav"}); return err },
	}
	for name, call := range calls {
		if err := call(); !errors.IsCode(err, errors.ErrCodeSessionClosed) {
			t.Errorf("%s: expected SESSION_CLOSED, got %v", name, err)
		}
	}
	if fake.TotalHits() != hits {
		t.Error("expected no requests after close")
	}
}

func TestClient_Close_BufferedStream(t *testing.T) {
	fake := sonatest.NewServer(t, sonatest.WithModel("base"))
	c := newClient(t, fake)
	ctx := context.Background()

	stream, err := c.TranscribeStream(ctx, transcription.Request{
		AudioPath: audioFile(t),
		Format:    transcription.FormatVerboseJSON,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok, err := stream.Next(ctx); !ok || err != nil {
		t.Fatalf("expected first event, got ok=%v err=%v", ok, err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev, ok, err := stream.Next(ctx); ok || !errors.IsCode(err, errors.ErrCodeSessionClosed) {
		t.Fatalf("expected SESSION_CLOSED, got event=%+v ok=%v err=%v", ev, ok, err)
	}
	if _, ok, err := stream.Next(ctx); ok || err != nil {
		t.Errorf("expected stream to stay ended, got ok=%v err=%v", ok, err)
	}
}
