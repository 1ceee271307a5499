package stream

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/bytedance/sonic"

	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/reply"
)

type recordingSink struct {
	frames [][]byte
	err    error
}

func (s *recordingSink) Send(frame []byte) error {
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, append([]byte(nil), frame...))
	return nil
}

func (s *recordingSink) events(t *testing.T) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, frame := range s.frames {
		var m map[string]interface{}
		if err := sonic.Unmarshal(frame, &m); err != nil {
			t.Fatalf("Frame is not JSON: %s", frame)
		}
		out = append(out, m)
	}
	return out
}

func sampleReply(display string) reply.CanonicalReply {
	return reply.CanonicalReply{
		SessionID:   "session_1",
		DisplayText: display,
		SpeechText:  display,
		Audio:       reply.Audio{Data: strings.Repeat("QUJD", 40), MimeType: "audio/mpeg"},
		Voice:       reply.Voice{Enabled: true, VoiceID: "EXAVITQu4vr4xnSDxMaL", VoiceName: "Rachel", SummaryLength: "short"},
		Timestamp:   time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC),
	}
}

func disabledReply(display string) reply.CanonicalReply {
	r := sampleReply(display)
	r.Voice.Enabled = false
	r.Audio = reply.Audio{MimeType: "audio/mpeg", SkipReason: "disabled"}
	return r
}

func TestChunk_Lossless(t *testing.T) {
	texts := []string{
		"",
		"short",
		strings.Repeat("abcdefghij", 25),
		strings.Repeat("héllo wörld 😀 ", 40),
		"<b>bold</b> and " + strings.Repeat("日本語", 70),
	}

	for _, text := range texts {
		for _, size := range []int{1, 7, 100, 500} {
			chunks := Chunk(text, size)
			if got := strings.Join(chunks, ""); got != text {
				t.Errorf("Expected lossless chunking for size %d", size)
			}
			for _, c := range chunks {
				if n := len([]rune(c)); n > size || n == 0 {
					t.Errorf("Chunk of %d runes with size %d", n, size)
				}
				if !utf8.ValidString(c) {
					t.Errorf("Chunk split a UTF-8 sequence: %q", c)
				}
			}
		}
	}
}

func TestStream_EventOrder(t *testing.T) {
	sink := &recordingSink{}
	text := strings.Repeat("The quick brown fox jumps. ", 10)
	enc := NewEncoder(sink, 100)

	if err := enc.Stream(sampleReply(text)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if enc.State() != Ended {
		t.Errorf("Expected ended, got %s", enc.State())
	}

	events := sink.events(t)
	if events[0]["type"] != "begin" || events[len(events)-1]["type"] != "end" {
		t.Fatalf("Expected begin first and end last, got %v ... %v", events[0]["type"], events[len(events)-1]["type"])
	}

	var rebuilt strings.Builder
	for i, ev := range events {
		if int(ev["seq"].(float64)) != i {
			t.Errorf("Expected seq %d, got %v", i, ev["seq"])
		}
		if ev["type"] == "content" {
			rebuilt.WriteString(ev["content"].(string))
		}
	}
	if rebuilt.String() != text {
		t.Error("Expected content events to rebuild the display text")
	}
	if len(events) != 2+3 {
		t.Errorf("Expected 3 content events for 270 characters, got %d events", len(events))
	}
}

func TestStream_EndCarriesAudioTwice(t *testing.T) {
	sink := &recordingSink{}
	if err := NewEncoder(sink, 100).Stream(sampleReply("Hello there.")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	end := sink.events(t)[len(sink.frames)-1]
	meta := end["metadata"].(map[string]interface{})

	if end["audioBase64"] == nil || end["audioBase64"] != meta["audioBase64"] {
		t.Error("Expected audioBase64 at top level and in metadata")
	}
	if url, _ := end["audioUrl"].(string); !strings.HasPrefix(url, "data:audio/mpeg;base64,") {
		t.Errorf("Expected data URL, got %q", url)
	}
	if meta["audioUrl"] != end["audioUrl"] || end["audioGenerated"] != true {
		t.Error("Expected audio URL and flag mirrored")
	}
	if meta["length"].(float64) != 12 {
		t.Errorf("Expected length 12, got %v", meta["length"])
	}
}

func TestStream_DisabledHasNoAudioValues(t *testing.T) {
	sink := &recordingSink{}
	if err := NewEncoder(sink, 100).Stream(disabledReply("Hello there.")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	single := &recordingSink{}
	if err := NewEncoder(single, 100).WriteSingleShot(disabledReply("Hello there.")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	for _, frame := range append(sink.frames, single.frames...) {
		for _, field := range []string{"audioBase64", "audioData", "audioUrl", "audioGenerated", "audioMimeType"} {
			if bytes.Contains(frame, []byte(`"`+field+`"`)) {
				t.Errorf("Expected no %s field when disabled: %s", field, frame)
			}
		}
	}
	if !bytes.Contains(single.frames[0], []byte(`"ttsSkipReason":"disabled"`)) {
		t.Errorf("Expected disabled skip reason, got %s", single.frames[0])
	}
}

func TestStream_EmptyDisplay(t *testing.T) {
	sink := &recordingSink{}
	if err := NewEncoder(sink, 100).Stream(sampleReply("")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(sink.frames) != 2 {
		t.Errorf("Expected begin and end only, got %d frames", len(sink.frames))
	}
}

func TestEncoder_InvalidTransitions(t *testing.T) {
	r := sampleReply("Hello")

	tests := []struct {
		name string
		run  func(e *Encoder) error
	}{
		{"content before begin", func(e *Encoder) error { return e.Content("x") }},
		{"end before begin", func(e *Encoder) error { return e.End() }},
		{"begin twice", func(e *Encoder) error {
			if err := e.Begin(r); err != nil {
				return err
			}
			return e.Begin(r)
		}},
		{"content after end", func(e *Encoder) error {
			if err := e.Stream(r); err != nil {
				return err
			}
			return e.Content("x")
		}},
		{"end twice", func(e *Encoder) error {
			if err := e.Stream(r); err != nil {
				return err
			}
			return e.End()
		}},
		{"single-shot after begin", func(e *Encoder) error {
			if err := e.Begin(r); err != nil {
				return err
			}
			return e.WriteSingleShot(r)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run(NewEncoder(&recordingSink{}, 10))
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("Expected ErrInvalidTransition, got %v", err)
			}
		})
	}
}

func TestEncoder_SinkFailure(t *testing.T) {
	sink := &recordingSink{err: errors.New("broken pipe")}
	enc := NewEncoder(sink, 10)

	if err := enc.Stream(sampleReply("Hello")); err == nil {
		t.Fatal("Expected sink error")
	}
	if enc.State() != NotStarted {
		t.Errorf("Expected state unchanged after failed begin, got %s", enc.State())
	}
}

func TestEncoder_OnEvent(t *testing.T) {
	var seen []string
	enc := NewEncoder(&recordingSink{}, 5)
	enc.OnEvent(func(eventType string) { seen = append(seen, eventType) })

	if err := enc.Stream(sampleReply("Hello world")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	expected := []string{"begin", "content", "content", "content", "end"}
	if strings.Join(seen, ",") != strings.Join(expected, ",") {
		t.Errorf("Expected %v, got %v", expected, seen)
	}
}

func TestWriteSingleShot_LegacyFields(t *testing.T) {
	sink := &recordingSink{}
	r := sampleReply("<b>Hi</b> there")
	r.HasMarkup = true

	if err := NewEncoder(sink, 100).Encode(r, SingleShot); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(sink.frames) != 1 {
		t.Fatalf("Expected one frame, got %d", len(sink.frames))
	}

	got := sink.events(t)[0]
	checks := map[string]interface{}{
		"response":       "<b>Hi</b> there",
		"text":           "<b>Hi</b> there",
		"sessionId":      "session_1",
		"enableTTS":      true,
		"ttsEnabled":     true,
		"hasHtml":        true,
		"voice":          "Rachel",
		"voiceId":        "EXAVITQu4vr4xnSDxMaL",
		"voiceName":      "Rachel",
		"timestamp":      "2024-03-01T12:30:00.000Z",
		"success":        true,
		"audioGenerated": true,
	}
	for key, want := range checks {
		if got[key] != want {
			t.Errorf("Expected %s=%v, got %v", key, want, got[key])
		}
	}
	if got["audioBase64"] != got["audioData"] {
		t.Error("Expected audioBase64 and audioData to match")
	}
	if _, ok := got["ttsSkipReason"]; ok {
		t.Error("Expected no skip reason when audio exists")
	}
}

func TestLineSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLineSink(&buf)
	if sink.Written() {
		t.Error("Expected nothing written yet")
	}
	if err := NewEncoder(sink, 100).Stream(sampleReply("Hello")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var types []string
	err := ReadFrames(&buf, func(frame []byte) error {
		var ev Event
		if err := sonic.Unmarshal(frame, &ev); err != nil {
			return err
		}
		types = append(types, ev.Type)
		return nil
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if strings.Join(types, ",") != "begin,content,end" {
		t.Errorf("Expected begin,content,end, got %v", types)
	}
	if !sink.Written() {
		t.Error("Expected sink to report written")
	}
}
