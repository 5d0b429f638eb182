package sonatest

import (
	"fmt"
	"strings"

	"github.com/kbukum/sonago/transcription"
)

// RenderSRT renders segments as SubRip.
func RenderSRT(segs []transcription.Segment) string {
	var b strings.Builder
	for i, seg := range segs {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1,
			timestamp(seg.Start, ","), timestamp(seg.End, ","), strings.TrimSpace(seg.Text))
	}
	return b.String()
}

// RenderVTT renders segments as WebVTT.
func RenderVTT(segs []transcription.Segment) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for _, seg := range segs {
		fmt.Fprintf(&b, "%s --> %s\n%s\n\n",
			timestamp(seg.Start, "."), timestamp(seg.End, "."), strings.TrimSpace(seg.Text))
	}
	return b.String()
}

func timestamp(seconds float64, sep string) string {
	ms := int64(seconds*1000 + 0.5)
	h := ms / 3_600_000
	m := ms / 60_000 % 60
	s := ms / 1000 % 60
	return fmt.Sprintf("%02d:%02d:%02d%s%03d", h, m, s, sep, ms%1000)
}
