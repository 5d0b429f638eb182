package transcription

import (
	"github.com/kbukum/sonago/validation"
)

// Format is a response_format value. Values other than the constants are
// passed to the server unchanged and their responses parsed as JSON.
type Format string

const (
	FormatJSON        Format = "json"
	FormatVerboseJSON Format = "verbose_json"
	FormatText        Format = "text"
	FormatSRT         Format = "srt"
	FormatVTT         Format = "vtt"
)

// OrDefault returns f, or FormatJSON when f is empty.
func (f Format) OrDefault() Format {
	if f == "" {
		return FormatJSON
	}
	return f
}

// IsPlain reports whether the server answers f with a plain text body.
func (f Format) IsPlain() bool {
	switch f {
	case FormatText, FormatSRT, FormatVTT:
		return true
	}
	return false
}

// Request holds the parameters of one transcription call. Zero values are
// not sent.
type Request struct {
	// AudioPath must name an existing file when the call is made.
	AudioPath    string
	Format       Format
	Language     string
	Stream       bool
	DiarizeModel string

	Prompt         string
	Translate      bool
	DetectLanguage bool
	EnhanceAudio   bool
	WordTimestamps bool
	Threads        int
	Temperature    float64
	MaxSegmentLen  int
	// BeamSize > 0 selects beam search.
	BeamSize int
	BestOf   int
}

// Validate checks the numeric options. The audio file itself is checked by
// the client at call time.
func (r Request) Validate() error {
	v := validation.New().
		Required("audio_path", r.AudioPath).
		Min("n_threads", r.Threads, 0).
		Min("max_segment_len", r.MaxSegmentLen, 0).
		Min("beam_size", r.BeamSize, 0).
		Min("best_of", r.BestOf, 0).
		FloatRange("temperature", r.Temperature, 0, 1)
	if err := v.Validate(); err != nil {
		return err
	}
	return nil
}

// ResultKind returns the Result variant this request produces.
func (r Request) ResultKind() Kind {
	switch {
	case r.Stream:
		return KindStream
	case r.Format.IsPlain():
		return KindText
	default:
		return KindTranscript
	}
}

// Segment is a time-aligned piece of a transcript. Speaker is set only when
// diarization ran and found an overlapping speaker.
type Segment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker *int    `json:"speaker,omitempty"`
}
