package pipeline

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"

	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/compose"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/convlog"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/reply"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/request"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/stream"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/tts"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/voice"
)

type fakeProvider struct {
	audio []byte
	err   error
	block bool
	calls int
	text  string
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Synthesize(ctx context.Context, req tts.SynthesisRequest) ([]byte, error) {
	f.calls++
	f.text = req.Text
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.audio, f.err
}

type fakeRecorder struct {
	entries []convlog.Entry
	err     error
}

func (f *fakeRecorder) Record(ctx context.Context, e convlog.Entry) error {
	f.entries = append(f.entries, e)
	return f.err
}

type frameSink struct {
	frames [][]byte
}

func (s *frameSink) Send(frame []byte) error {
	s.frames = append(s.frames, append([]byte(nil), frame...))
	return nil
}

var audioBytes = bytes.Repeat([]byte{0xFF, 0xFB, 0x90, 0x64}, 64)

func newTestPipeline(backend compose.Backend, provider tts.Provider, recorder Recorder) *Pipeline {
	defaults := voice.Defaults{Enabled: true, VoiceID: "EXAVITQu4vr4xnSDxMaL", VoiceName: "Rachel"}
	logger := zerolog.Nop()

	stages := Stages{
		Normalizer:  request.NewNormalizer(),
		Resolver:    voice.NewResolver(nil, defaults),
		Composer:    compose.NewComposer(backend, compose.Options{SummaryThreshold: 400, Timeout: time.Second}, logger),
		Synthesizer: tts.NewSynthesizer(provider, nil, tts.Options{Timeout: 200 * time.Millisecond}, logger),
		Assembler:   reply.NewAssembler(defaults),
		Selector:    stream.NewSelector(stream.DefaultBlockTags),
		ChunkSize:   10,
	}
	if recorder != nil {
		stages.Recorder = recorder
	}
	return New(stages)
}

func answer(text string) compose.Backend {
	return compose.BackendFunc(func(ctx context.Context, req compose.BackendRequest) (string, error) {
		return text, nil
	})
}

func TestRun_MalformedInput(t *testing.T) {
	p := newTestPipeline(answer("unused"), &fakeProvider{}, nil)

	for _, raw := range []string{"", "not json", "[1,2]", `"text"`} {
		if _, err := p.Run(context.Background(), []byte(raw)); !errors.Is(err, request.ErrMalformedInput) {
			t.Errorf("Expected ErrMalformedInput for %q, got %v", raw, err)
		}
	}
}

func TestRun_FullTurn(t *testing.T) {
	provider := &fakeProvider{audio: audioBytes}
	recorder := &fakeRecorder{}
	p := newTestPipeline(answer("The office opens at <b>9am</b>. Parking is free."), provider, recorder)

	res, err := p.Run(context.Background(), []byte(`{"message":"When do you open?","sessionId":"abc","voice":"sarah"}`))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	r := res.Reply
	if r.SessionID != "abc" {
		t.Errorf("Expected session abc, got %s", r.SessionID)
	}
	if r.DisplayText != "The office opens at <b>9am</b>. Parking is free." {
		t.Errorf("Expected display text preserved, got %q", r.DisplayText)
	}
	if provider.text != "The office opens at 9am. Parking is free." {
		t.Errorf("Expected markup-free speech sent to provider, got %q", provider.text)
	}
	if !r.Audio.Present() || r.Voice.VoiceID != "EXAVITQu4vr4xnSDxMaL" || r.Voice.VoiceName != "Sarah" {
		t.Errorf("Expected audio with Sarah's voice, got %+v %+v", r.Audio.SkipReason, r.Voice)
	}

	sink := &frameSink{}
	mode := p.Mode(res, false)
	if err := p.Deliver(res, sink, mode); err != nil {
		t.Fatalf("Unexpected delivery error: %v", err)
	}
	if mode != stream.SingleShot || len(sink.frames) != 1 {
		t.Fatalf("Expected one single-shot frame, got %s with %d frames", mode, len(sink.frames))
	}
	var legacy stream.LegacyResponse
	if err := sonic.Unmarshal(sink.frames[0], &legacy); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if !legacy.AudioGenerated || !strings.HasPrefix(legacy.AudioURL, "data:audio/mpeg;base64,") {
		t.Errorf("Expected audio in legacy response, got %+v", legacy)
	}

	p.Record(context.Background(), res)
	if len(recorder.entries) != 1 {
		t.Fatalf("Expected one recorded entry, got %d", len(recorder.entries))
	}
	entry := recorder.entries[0]
	if entry.SessionID != "abc" || entry.UserText != "When do you open?" || !entry.AudioGenerated {
		t.Errorf("Unexpected entry: %+v", entry)
	}
}

func TestRun_ExplicitOptOut(t *testing.T) {
	provider := &fakeProvider{audio: audioBytes}
	p := newTestPipeline(answer("Here is your answer."), provider, nil)

	res, err := p.Run(context.Background(), []byte(`{"text":"hi","enableTTS":true,"voiceSettings":{"enabled":"false"}}`))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if res.Voice.Enabled || res.Reply.Audio.SkipReason != "disabled" {
		t.Errorf("Expected disabled voice, got %+v", res.Reply.Audio)
	}
	if provider.calls != 0 {
		t.Error("Expected provider not called")
	}
	if !strings.HasPrefix(res.Reply.SessionID, "session_") || !res.Request.SessionGenerated {
		t.Errorf("Expected generated session, got %s", res.Reply.SessionID)
	}
}

func TestRun_BackendFailureStillReplies(t *testing.T) {
	backend := compose.BackendFunc(func(ctx context.Context, req compose.BackendRequest) (string, error) {
		return "", errors.New("upstream unavailable")
	})
	p := newTestPipeline(backend, &fakeProvider{audio: audioBytes}, nil)

	res, err := p.Run(context.Background(), []byte(`{"text":"hello"}`))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if res.Reply.DisplayText != compose.ApologyText || !res.Reply.BackendFailed {
		t.Errorf("Expected apology, got %q", res.Reply.DisplayText)
	}
	if !res.Reply.Audio.Present() {
		t.Error("Expected the apology to be spoken")
	}
}

func TestRun_QuotaExceeded(t *testing.T) {
	provider := &fakeProvider{err: &tts.ProviderError{Provider: "fake", StatusCode: 429, Body: "Too Many Requests"}}
	p := newTestPipeline(answer("A perfectly fine answer."), provider, nil)

	res, err := p.Run(context.Background(), []byte(`{"text":"hello"}`))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if res.Reply.Audio.SkipReason != "quota_exceeded" || res.Reply.Audio.Present() {
		t.Errorf("Expected quota_exceeded, got %+v", res.Reply.Audio)
	}
	if res.Reply.DisplayText != "A perfectly fine answer." {
		t.Error("Expected text delivered despite TTS failure")
	}
}

func TestRun_DeadlineDuringSynthesis(t *testing.T) {
	p := newTestPipeline(answer("A perfectly fine answer."), &fakeProvider{block: true}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res, err := p.Run(ctx, []byte(`{"text":"hello"}`))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if res.Reply.Audio.SkipReason != "api_error" {
		t.Errorf("Expected api_error, got %q", res.Reply.Audio.SkipReason)
	}
}

func TestDeliver_Streaming(t *testing.T) {
	display := "Streaming works with plain text and <b>inline</b> markup."
	p := newTestPipeline(answer(display), &fakeProvider{audio: audioBytes}, nil)

	res, err := p.Run(context.Background(), []byte(`{"text":"hello","stream":true}`))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	mode := p.Mode(res, res.Request.WantsStream)
	if mode != stream.Streaming {
		t.Fatalf("Expected streaming, got %s", mode)
	}

	sink := &frameSink{}
	if err := p.Deliver(res, sink, mode); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var rebuilt strings.Builder
	var last stream.Event
	for _, frame := range sink.frames {
		var ev stream.Event
		if err := sonic.Unmarshal(frame, &ev); err != nil {
			t.Fatalf("Failed to decode frame: %v", err)
		}
		if ev.Type == stream.EventContent {
			rebuilt.WriteString(ev.Content)
		}
		last = ev
	}
	if rebuilt.String() != display {
		t.Errorf("Expected %q, got %q", display, rebuilt.String())
	}
	if last.Type != stream.EventEnd || !last.AudioGenerated || last.Metadata == nil || last.Metadata.AudioBase64 == "" {
		t.Errorf("Expected end event with audio at both levels, got %+v", last)
	}
}

func TestDeliver_BlockMarkupIsSingleShot(t *testing.T) {
	p := newTestPipeline(answer("<div>Report</div>"), &fakeProvider{audio: audioBytes}, nil)

	res, err := p.Run(context.Background(), []byte(`{"text":"report please"}`))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !res.Reply.HasMarkup {
		t.Error("Expected hasMarkup")
	}
	if mode := p.Mode(res, true); mode != stream.SingleShot {
		t.Errorf("Expected single-shot for block markup, got %s", mode)
	}
}

func TestRecord_FailureIsSwallowed(t *testing.T) {
	recorder := &fakeRecorder{err: errors.New("database is locked")}
	p := newTestPipeline(answer("ok then."), &fakeProvider{audio: audioBytes}, recorder)

	res, err := p.Run(context.Background(), []byte(`{"text":"hello"}`))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	p.Record(context.Background(), res)
	if len(recorder.entries) != 1 {
		t.Error("Expected a record attempt")
	}
}
