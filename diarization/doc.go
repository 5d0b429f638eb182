// Package diarization groups diarized transcript segments by speaker.
//
// The server attaches a speaker index to segments when a diarize model is
// supplied. Turns merges consecutive segments of one speaker into a single
// turn, and SpeakerLabel renders an index the way transcripts display it.
//
//	for _, turn := range diarization.Turns(transcript.Segments) {
//		fmt.Printf("%s: %s\n", turn.Label(), turn.Text)
//	}
package diarization
