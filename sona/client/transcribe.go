package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/kbukum/sonago/errors"
	"github.com/kbukum/sonago/httpclient"
	"github.com/kbukum/sonago/httpclient/ndjson"
	"github.com/kbukum/sonago/observability"
	"github.com/kbukum/sonago/transcription"
)

// Transcribe uploads req.AudioPath and returns the result variant selected
// by req.Format and req.Stream. A missing audio file fails with
// AUDIO_NOT_FOUND before any request is sent.
func (c *Client) Transcribe(ctx context.Context, req transcription.Request) (transcription.Result, error) {
	if c.closed.Load() {
		return nil, errors.SessionClosed()
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	file, err := openAudio(req.AudioPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	var result transcription.Result
	err = c.call(ctx, "transcribe", func(ctx context.Context, headers map[string]string) error {
		observability.SetSpanAttribute(ctx, observability.AttrFormat, string(req.Format.OrDefault()))
		httpReq := httpclient.Request{
			Method:  http.MethodPost,
			Path:    pathTranscriptions,
			Headers: headers,
			Body:    transcriptionForm(req, file),
		}
		if req.Stream {
			sr, err := c.http.DoStream(ctx, httpReq)
			if err != nil {
				return err
			}
			result = c.newStream(ctx, sr)
			return nil
		}

		resp, err := c.http.Do(ctx, httpReq)
		if err != nil {
			return err
		}
		result, err = decodeResult(req.Format.OrDefault(), resp)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// TranscribeJSON transcribes without streaming and returns the decoded
// transcript. Format defaults to json; plain formats are rejected.
func (c *Client) TranscribeJSON(ctx context.Context, req transcription.Request) (*transcription.Transcript, error) {
	req.Stream = false
	if req.Format.IsPlain() {
		return nil, errors.InvalidInput("response_format", "must be a JSON format")
	}
	res, err := c.Transcribe(ctx, req)
	if err != nil {
		return nil, err
	}
	return res.(*transcription.Transcript), nil
}

// TranscribeText transcribes without streaming and returns the body verbatim.
// Format defaults to text and must be text, srt or vtt.
func (c *Client) TranscribeText(ctx context.Context, req transcription.Request) (transcription.Text, error) {
	req.Stream = false
	if req.Format == "" {
		req.Format = transcription.FormatText
	}
	if !req.Format.IsPlain() {
		return "", errors.InvalidInput("response_format", "must be text, srt or vtt")
	}
	res, err := c.Transcribe(ctx, req)
	if err != nil {
		return "", err
	}
	return res.(transcription.Text), nil
}

// TranscribeStream transcribes in streaming mode. The caller must Close the
// returned stream or drain it to the end.
func (c *Client) TranscribeStream(ctx context.Context, req transcription.Request) (*transcription.Stream, error) {
	req.Stream = true
	res, err := c.Transcribe(ctx, req)
	if err != nil {
		return nil, err
	}
	return res.(*transcription.Stream), nil
}

func openAudio(path string) (*os.File, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.AudioNotFound(path).WithCause(err)
		}
		return nil, errors.InvalidInput("audio_path", err.Error()).WithCause(err)
	}
	info, err := file.Stat()
	if err != nil || info.IsDir() {
		_ = file.Close()
		return nil, errors.AudioNotFound(path)
	}
	return file, nil
}

// transcriptionForm builds the multipart body. Unset options are omitted.
func transcriptionForm(req transcription.Request, audio io.Reader) *httpclient.MultipartBody {
	body := &httpclient.MultipartBody{}
	body.Add("response_format", string(req.Format.OrDefault()))
	if req.Language != "" {
		body.Add("language", req.Language)
	}
	if req.Stream {
		body.Add("stream", "true")
	}
	if req.DiarizeModel != "" {
		body.Add("diarize_model", req.DiarizeModel)
	}
	if req.Prompt != "" {
		body.Add("prompt", req.Prompt)
	}
	if req.Translate {
		body.Add("translate", "true")
	}
	if req.DetectLanguage {
		body.Add("detect_language", "true")
	}
	if req.EnhanceAudio {
		body.Add("enhance_audio", "true")
	}
	if req.WordTimestamps {
		body.Add("word_timestamps", "true")
	}
	if req.Threads > 0 {
		body.Add("n_threads", strconv.Itoa(req.Threads))
	}
	if req.Temperature > 0 {
		body.Add("temperature", strconv.FormatFloat(req.Temperature, 'f', -1, 64))
	}
	if req.MaxSegmentLen > 0 {
		body.Add("max_segment_len", strconv.Itoa(req.MaxSegmentLen))
	}
	if req.BeamSize > 0 {
		body.Add("sampling_strategy", "beam_search")
		body.Add("beam_size", strconv.Itoa(req.BeamSize))
	}
	if req.BestOf > 0 {
		body.Add("best_of", strconv.Itoa(req.BestOf))
	}

	body.Files = []httpclient.FileField{{
		FieldName:   "file",
		FileName:    filepath.Base(req.AudioPath),
		ContentType: "application/octet-stream",
		Reader:      audio,
	}}
	return body
}

func decodeResult(format transcription.Format, resp *httpclient.Response) (transcription.Result, error) {
	if format.IsPlain() {
		return transcription.Text(resp.Body), nil
	}
	var t transcription.Transcript
	if err := json.Unmarshal(resp.Body, &t); err != nil {
		return nil, errors.DecodeFailed(resp.StatusCode, resp.Body, err)
	}
	return &t, nil
}

func (c *Client) newStream(ctx context.Context, sr *httpclient.StreamResponse) *transcription.Stream {
	// The stream outlives the call span; metrics are recorded without it.
	ctx = context.WithoutCancel(ctx)
	reader := sessionReader{Reader: ndjson.NewReader(sr), closed: &c.closed}
	var opts []transcription.StreamOption
	if c.metrics != nil {
		opts = append(opts, transcription.WithEventObserver(func(ev transcription.Event) {
			c.metrics.RecordStreamEvent(ctx, string(ev.Type))
		}))
	}
	return transcription.NewStream(reader, opts...)
}
