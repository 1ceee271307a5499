package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/stream"
)

// turnOptions are the chat payload fields replyctl can set
type turnOptions struct {
	SessionID string
	Voice     string
	NoTTS     bool
	Summarize string
	Stream    bool
}

func buildPayload(text string, opts turnOptions) ([]byte, error) {
	body := map[string]interface{}{"text": text}
	if opts.SessionID != "" {
		body["sessionId"] = opts.SessionID
	}
	if opts.Voice != "" {
		body["voice"] = opts.Voice
	}
	if opts.NoTTS {
		body["enableTTS"] = false
	}
	if opts.Summarize != "" {
		body["summaryLength"] = opts.Summarize
	}
	if opts.Stream {
		body["stream"] = true
	}
	return sonic.Marshal(body)
}

// turn accumulates one reply, from either a single-shot object or a stream
// of events
type turn struct {
	SessionID  string
	Text       strings.Builder
	Audio      string
	MimeType   string
	SkipReason string
	Streamed   bool
	done       bool
}

type frameHeader struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// apply folds one frame into t and reports whether the reply is complete
func (t *turn) apply(frame []byte) (bool, error) {
	var header frameHeader
	if err := sonic.Unmarshal(frame, &header); err != nil {
		return false, fmt.Errorf("invalid frame: %w", err)
	}

	switch header.Type {
	case "ready":
		return false, nil
	case "error":
		return true, errors.New(header.Error)
	case stream.EventBegin, stream.EventContent, stream.EventEnd:
		var ev stream.Event
		if err := sonic.Unmarshal(frame, &ev); err != nil {
			return false, fmt.Errorf("invalid event: %w", err)
		}
		t.Streamed = true
		t.SessionID = ev.SessionID
		t.Text.WriteString(ev.Content)
		if ev.Type == stream.EventEnd {
			t.Audio = ev.AudioBase64
			t.MimeType = ev.AudioMimeType
			t.SkipReason = ev.TTSSkipReason
			t.done = true
		}
		return t.done, nil
	case "":
		var resp stream.LegacyResponse
		if err := sonic.Unmarshal(frame, &resp); err != nil {
			return false, fmt.Errorf("invalid response: %w", err)
		}
		if !resp.Success {
			return true, errors.New("gateway reported failure")
		}
		t.SessionID = resp.SessionID
		t.Text.WriteString(resp.Response)
		t.Audio = resp.AudioBase64
		t.MimeType = resp.AudioMimeType
		t.SkipReason = resp.TTSSkipReason
		t.done = true
		return true, nil
	}
	return false, fmt.Errorf("unknown frame type %q", header.Type)
}

func (t *turn) summary() string {
	audio := "no audio"
	switch {
	case t.Audio != "":
		audio = fmt.Sprintf("audio %s, %d base64 chars", t.MimeType, len(t.Audio))
	case t.SkipReason != "":
		audio = "audio skipped: " + t.SkipReason
	}
	return fmt.Sprintf("[session %s, %s]", t.SessionID, audio)
}

func (t *turn) saveAudio(path string) error {
	if t.Audio == "" {
		return fmt.Errorf("reply carried no audio (%s)", t.SkipReason)
	}
	data, err := base64.StdEncoding.DecodeString(t.Audio)
	if err != nil {
		return fmt.Errorf("decode audio: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
