// Package sona runs a local Sona transcription server and talks to it.
//
// Open launches the server binary through a supervisor, waits until it
// answers, and binds a protocol client to the discovered port. A Session
// forwards every call to that client and owns the server's shutdown:
//
//	err := sona.With(ctx, func(s *sona.Session) error {
//		if _, err := s.LoadModel(ctx, "models/ggml-base.en.bin"); err != nil {
//			return err
//		}
//		text, err := s.TranscribeText(ctx, transcription.Request{AudioPath: "talk.wav"})
//		if err != nil {
//			return err
//		}
//		fmt.Println(text)
//		return nil
//	})
//
// A Session that becomes unreachable without Close still stops its server
// through a runtime cleanup, but callers should always Close.
package sona
