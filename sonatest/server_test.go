package sonatest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kbukum/sonago/transcription"
)

func multipartRequest(t *testing.T, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	part, err := w.CreateFormFile("file", "a.wav")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, _ = part.Write([]byte("RIFF"))
	_ = w.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/audio/transcriptions", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_ModelLifecycle(t *testing.T) {
	s := New()

	if rec := serve(s, httptest.NewRequest(http.MethodGet, "/ready", nil)); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before load, got %d", rec.Code)
	}

	rec := serve(s, httptest.NewRequest(http.MethodPost, "/v1/models/load", strings.NewReader(`{"path":"/models/ggml-base.en.bin"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if s.Model() != "ggml-base.en" {
		t.Errorf("expected model ggml-base.en, got %q", s.Model())
	}

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	var list struct {
		Object string `json:"object"`
		Data   []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if list.Object != "list" || len(list.Data) != 1 || list.Data[0].ID != "ggml-base.en" {
		t.Errorf("unexpected model list %+v", list)
	}

	serve(s, httptest.NewRequest(http.MethodDelete, "/v1/models", nil))
	if s.Model() != "" {
		t.Error("expected model to be unloaded")
	}
	if s.Hits("/ready") != 1 || s.TotalHits() != 4 {
		t.Errorf("unexpected hit counts: ready=%d total=%d", s.Hits("/ready"), s.TotalHits())
	}
}

func TestServer_LoadRequiresPath(t *testing.T) {
	rec := serve(New(), httptest.NewRequest(http.MethodPost, "/v1/models/load", strings.NewReader(`{}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestServer_TranscribeWithoutModel(t *testing.T) {
	rec := serve(New(), multipartRequest(t, map[string]string{"response_format": "json"}))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestServer_SpeakerOnlyWhenDiarized(t *testing.T) {
	s := New(WithModel("base"))

	tests := []struct {
		name    string
		fields  map[string]string
		speaker bool
	}{
		{"plain", map[string]string{"response_format": "verbose_json"}, false},
		{"diarized", map[string]string{"response_format": "verbose_json", "diarize_model": "pyannote"}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(s, multipartRequest(t, tc.fields))
			var tr transcription.Transcript
			if err := json.Unmarshal(rec.Body.Bytes(), &tr); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(tr.Segments) != len(DefaultSegments) {
				t.Fatalf("expected %d segments, got %d", len(DefaultSegments), len(tr.Segments))
			}
			for _, seg := range tr.Segments {
				if (seg.Speaker != nil) != tc.speaker {
					t.Errorf("speaker presence = %v, want %v", seg.Speaker != nil, tc.speaker)
				}
			}
			if s.LastForm()["response_format"] != "verbose_json" {
				t.Errorf("expected recorded form, got %v", s.LastForm())
			}
		})
	}
}

func TestServer_Stream(t *testing.T) {
	s := New(WithModel("base"))
	rec := serve(s, multipartRequest(t, map[string]string{"response_format": "verbose_json", "stream": "true"}))

	if ct := rec.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("expected ndjson content type, got %q", ct)
	}

	var types []string
	sc := bufio.NewScanner(rec.Body)
	for sc.Scan() {
		var ev struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		types = append(types, ev.Type)
	}
	want := []string{"progress", "segment", "progress", "segment", "progress", "result"}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Errorf("expected events %v, got %v", want, types)
	}
}

func TestRenderSRTAndVTT(t *testing.T) {
	segs := []transcription.Segment{{Start: 61.5, End: 3725.042, Text: " Hi."}}

	srt := RenderSRT(segs)
	if srt != "1\n00:01:01,500 --> 01:02:05,042\nHi.\n\n" {
		t.Errorf("unexpected srt %q", srt)
	}
	vtt := RenderVTT(segs)
	if !strings.HasPrefix(vtt, "WEBVTT\n\n00:01:01.500 --> 01:02:05.042\n") {
		t.Errorf("unexpected vtt %q", vtt)
	}
}
