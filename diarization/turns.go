package diarization

import (
	"fmt"
	"slices"

	"github.com/kbukum/sonago/transcription"
)

// Unknown labels segments without a speaker.
const Unknown = "UNKNOWN"

// Turn is a run of consecutive segments attributed to one speaker.
type Turn struct {
	Speaker  *int
	Start    float64
	End      float64
	Text     string
	Segments []transcription.Segment
}

// Label returns the display label of the turn's speaker.
func (t Turn) Label() string { return SpeakerLabel(t.Speaker) }

// Duration returns End - Start in seconds.
func (t Turn) Duration() float64 { return t.End - t.Start }

// SpeakerLabel renders "Speaker N", or Unknown for a nil speaker.
func SpeakerLabel(speaker *int) string {
	if speaker == nil {
		return Unknown
	}
	return fmt.Sprintf("Speaker %d", *speaker)
}

// Turns merges consecutive segments with the same speaker. Consecutive
// segments without a speaker merge into one Unknown turn.
func Turns(segments []transcription.Segment) []Turn {
	var turns []Turn
	for _, seg := range segments {
		if n := len(turns); n > 0 && sameSpeaker(turns[n-1].Speaker, seg.Speaker) {
			last := &turns[n-1]
			last.End = seg.End
			last.Text += seg.Text
			last.Segments = append(last.Segments, seg)
			continue
		}
		turns = append(turns, Turn{
			Speaker:  seg.Speaker,
			Start:    seg.Start,
			End:      seg.End,
			Text:     seg.Text,
			Segments: []transcription.Segment{seg},
		})
	}
	return turns
}

// Speakers returns the distinct speaker indices in ascending order.
func Speakers(segments []transcription.Segment) []int {
	var out []int
	for _, seg := range segments {
		if seg.Speaker != nil && !slices.Contains(out, *seg.Speaker) {
			out = append(out, *seg.Speaker)
		}
	}
	slices.Sort(out)
	return out
}

// Diarized reports whether any segment carries a speaker.
func Diarized(segments []transcription.Segment) bool {
	return slices.ContainsFunc(segments, func(s transcription.Segment) bool { return s.Speaker != nil })
}

func sameSpeaker(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
