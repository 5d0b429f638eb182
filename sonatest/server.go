package sonatest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/sonago/component"
	"github.com/kbukum/sonago/transcription"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// DefaultSegments are returned by transcriptions unless WithSegments is used.
var DefaultSegments = []transcription.Segment{
	{Start: 0, End: 2.5, Text: " Hello from the fake server."},
	{Start: 2.5, End: 4.75, Text: " This is the second segment."},
}

// Server is a fake Sona server. It implements component.Component.
type Server struct {
	engine *gin.Engine

	segments     []transcription.Segment
	streamErr    string
	streamDelay  time.Duration
	healthStatus int

	mu        sync.Mutex
	ts        *httptest.Server
	model     string
	loadedAt  time.Time
	hits      map[string]int
	lastForm  map[string]string
	requestID []string

	busy atomic.Bool
}

var _ component.Component = (*Server)(nil)

// Option configures a Server.
type Option func(*Server)

// WithModel starts the server with a loaded model.
func WithModel(name string) Option {
	return func(s *Server) {
		s.model = name
		s.loadedAt = time.Now()
	}
}

// WithSegments replaces DefaultSegments.
func WithSegments(segs []transcription.Segment) Option {
	return func(s *Server) { s.segments = segs }
}

// WithStreamError makes streaming transcriptions emit an error event with
// message after the first segment.
func WithStreamError(message string) Option {
	return func(s *Server) { s.streamErr = message }
}

// WithStreamDelay pauses between streamed events.
func WithStreamDelay(d time.Duration) Option {
	return func(s *Server) { s.streamDelay = d }
}

// WithHealthStatus makes /health answer status instead of 200.
func WithHealthStatus(status int) Option {
	return func(s *Server) { s.healthStatus = status }
}

// New creates a fake server. Call Start, or use Handler directly.
func New(opts ...Option) *Server {
	s := &Server{
		segments:     DefaultSegments,
		healthStatus: http.StatusOK,
		hits:         make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), s.record())
	s.engine.GET("/health", s.health)
	s.engine.GET("/ready", s.ready)
	s.engine.POST("/v1/models/load", s.load)
	s.engine.DELETE("/v1/models", s.unload)
	s.engine.GET("/v1/models", s.models)
	s.engine.POST("/v1/audio/transcriptions", s.transcribe)
	return s
}

// NewServer starts a fake server that is closed when t ends.
func NewServer(t testing.TB, opts ...Option) *Server {
	t.Helper()
	s := New(opts...)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start fake sona server: %v", err)
	}
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// URL returns the base URL, or "" when not started.
func (s *Server) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ts == nil {
		return ""
	}
	return s.ts.URL
}

// Hits returns how many requests reached path.
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// TotalHits returns the number of requests received.
func (s *Server) TotalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.hits {
		n += v
	}
	return n
}

// LastForm returns the text fields of the last transcription request.
func (s *Server) LastForm() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.lastForm))
	for k, v := range s.lastForm {
		out[k] = v
	}
	return out
}

// RequestIDs returns the X-Request-ID headers received, in order.
func (s *Server) RequestIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requestID...)
}

// Model returns the loaded model name, or "".
func (s *Server) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// --- component.Component ---

func (s *Server) Name() string { return "sona-fake" }

func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ts != nil {
		return fmt.Errorf("fake sona server already started")
	}
	s.ts = httptest.NewServer(s.engine)
	return nil
}

func (s *Server) Stop(_ context.Context) error {
	s.mu.Lock()
	ts := s.ts
	s.ts = nil
	s.mu.Unlock()
	if ts != nil {
		ts.CloseClientConnections()
		ts.Close()
	}
	return nil
}

func (s *Server) Health(_ context.Context) component.Health {
	if s.URL() == "" {
		return component.Health{Name: s.Name(), Status: component.StatusUnhealthy, Message: "not started"}
	}
	return component.Health{Name: s.Name(), Status: component.StatusHealthy}
}

// --- handlers ---

func (s *Server) record() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.Lock()
		s.hits[c.Request.URL.Path]++
		if id := c.GetHeader("X-Request-ID"); id != "" {
			s.requestID = append(s.requestID, id)
			c.Header("X-Request-ID", id)
		}
		s.mu.Unlock()
		c.Next()
	}
}

func errorBody(message, kind string) gin.H {
	return gin.H{"error": gin.H{"message": message, "type": kind}}
}

func (s *Server) health(c *gin.Context) {
	if s.healthStatus != http.StatusOK {
		c.JSON(s.healthStatus, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) ready(c *gin.Context) {
	model := s.Model()
	if model == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "message": "no model loaded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "model": model})
}

func (s *Server) load(c *gin.Context) {
	var body struct {
		Path string `json:"path" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("path is required", "invalid_request_error"))
		return
	}
	name := strings.TrimSuffix(filepath.Base(body.Path), filepath.Ext(body.Path))

	s.mu.Lock()
	s.model = name
	s.loadedAt = time.Now()
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"status": "loaded", "model": name})
}

func (s *Server) unload(c *gin.Context) {
	s.mu.Lock()
	s.model = ""
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"status": "unloaded"})
}

func (s *Server) models(c *gin.Context) {
	s.mu.Lock()
	model, created := s.model, s.loadedAt.Unix()
	s.mu.Unlock()

	data := []gin.H{}
	if model != "" {
		data = append(data, gin.H{"id": model, "object": "model", "created": created, "owned_by": "local"})
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": data})
}

func (s *Server) transcribe(c *gin.Context) {
	if !s.busy.CompareAndSwap(false, true) {
		c.JSON(http.StatusTooManyRequests, errorBody("server is busy", "server_error"))
		return
	}
	defer s.busy.Store(false)

	if s.Model() == "" {
		c.JSON(http.StatusServiceUnavailable, errorBody("no model loaded", "server_error"))
		return
	}
	if _, err := c.FormFile("file"); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("file is required", "invalid_request_error"))
		return
	}

	form := make(map[string]string)
	for k, v := range c.Request.MultipartForm.Value {
		if len(v) > 0 {
			form[k] = v[0]
		}
	}
	s.mu.Lock()
	s.lastForm = form
	s.mu.Unlock()

	segs := s.segmentsFor(form["diarize_model"] != "")
	text := joinText(segs)

	if form["stream"] == "true" {
		s.stream(c, segs, text)
		return
	}

	switch form["response_format"] {
	case "text":
		c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(text))
	case "srt":
		c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(RenderSRT(segs)))
	case "vtt":
		c.Data(http.StatusOK, "text/vtt; charset=utf-8", []byte(RenderVTT(segs)))
	case "verbose_json":
		c.JSON(http.StatusOK, gin.H{"text": text, "segments": segs})
	default:
		c.JSON(http.StatusOK, gin.H{"text": text})
	}
}

// segmentsFor copies the configured segments, assigning alternating
// speakers when diarized.
func (s *Server) segmentsFor(diarize bool) []transcription.Segment {
	out := make([]transcription.Segment, len(s.segments))
	for i, seg := range s.segments {
		seg.Speaker = nil
		if diarize {
			speaker := i % 2
			seg.Speaker = &speaker
		}
		out[i] = seg
	}
	return out
}

func (s *Server) stream(c *gin.Context, segs []transcription.Segment, text string) {
	c.Header("Content-Type", "application/x-ndjson")
	c.Status(http.StatusOK)

	ctx := c.Request.Context()
	emit := func(ev gin.H) bool {
		line, _ := json.Marshal(ev)
		if _, err := c.Writer.Write(append(line, '\n')); err != nil {
			return false
		}
		c.Writer.Flush()
		if s.streamDelay <= 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(s.streamDelay):
			return true
		}
	}

	if !emit(gin.H{"type": "progress", "progress": 0}) {
		return
	}
	for i, seg := range segs {
		if s.streamErr != "" && i == 1 {
			emit(gin.H{"type": "error", "message": s.streamErr})
			return
		}
		ev := gin.H{"type": "segment", "start": seg.Start, "end": seg.End, "text": seg.Text}
		if seg.Speaker != nil {
			ev["speaker"] = *seg.Speaker
		}
		if !emit(ev) {
			return
		}
		if !emit(gin.H{"type": "progress", "progress": (i + 1) * 100 / len(segs)}) {
			return
		}
	}
	emit(gin.H{"type": "result", "text": text})
}

func joinText(segs []transcription.Segment) string {
	var b strings.Builder
	for _, seg := range segs {
		b.WriteString(seg.Text)
	}
	return strings.TrimSpace(b.String())
}
