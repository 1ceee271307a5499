package pipeline

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/rs/zerolog"

	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/compose"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/convlog"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/observability"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/reply"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/request"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/stream"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/tts"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/voice"
)

// Recorder persists finished turns
type Recorder interface {
	Record(ctx context.Context, e convlog.Entry) error
}

// Stages are the collaborators of a pipeline. Recorder may be nil.
type Stages struct {
	Normalizer  *request.Normalizer
	Resolver    *voice.Resolver
	Composer    *compose.Composer
	Synthesizer *tts.Synthesizer
	Assembler   *reply.Assembler
	Selector    *stream.Selector
	ChunkSize   int
	Recorder    Recorder
}

// Pipeline runs one chat turn from raw payload to canonical reply
type Pipeline struct {
	stages Stages
}

// Result carries every stage output of a turn
type Result struct {
	Request  request.ChatRequest
	Voice    voice.VoiceConfig
	Composed compose.ComposedReply
	Audio    tts.AudioArtifact
	Reply    reply.CanonicalReply

	metrics *observability.Metrics
	logger  zerolog.Logger
}

// Logger returns the turn's session logger
func (r Result) Logger() zerolog.Logger {
	if r.metrics == nil {
		return observability.GetLogger()
	}
	return r.logger
}

// New creates a pipeline
func New(stages Stages) *Pipeline {
	if stages.Selector == nil {
		stages.Selector = stream.NewSelector(stream.DefaultBlockTags)
	}
	if stages.ChunkSize <= 0 {
		stages.ChunkSize = stream.DefaultChunkSize
	}
	return &Pipeline{stages: stages}
}

// Run executes the stages in order. The only error is
// request.ErrMalformedInput; every later failure degrades a field of the
// reply instead.
func (p *Pipeline) Run(ctx context.Context, raw []byte) (Result, error) {
	correlationID := observability.CorrelationIDFromContext(ctx)
	logger := observability.LoggerFromContext(ctx)
	metrics := observability.NewRequestMetrics(correlationID)
	metrics.RecordRequestStart()

	req, err := p.stages.Normalizer.Normalize(raw)
	if err != nil {
		metrics.RecordError("malformed_input", "normalizer")
		metrics.RecordRequestEnd("rejected")
		logger.Warn().Err(err).Int("bytes", len(raw)).Msg("Rejected chat payload")
		return Result{}, err
	}

	logger = observability.WithSession(logger, req.SessionID)
	ctx = observability.ContextWithLogger(ctx, logger)

	v := p.stages.Resolver.Resolve(req.VoiceFields)
	req = req.WithVoice(v)

	composeStart := time.Now()
	metrics.RecordBackendStart()
	composed := p.stages.Composer.Compose(ctx, req, v)
	if composed.Source == compose.SourceBackend || composed.Source == compose.SourceApology {
		metrics.RecordBackendEnd(!composed.BackendFailed)
	}
	if composed.BackendFailed {
		metrics.RecordError("backend_unavailable", "composer")
	}
	composeElapsed := time.Since(composeStart)

	ttsStart := time.Now()
	metrics.RecordTTSStart()
	audio := p.stages.Synthesizer.Synthesize(ctx, composed.SpeechText, v)
	metrics.RecordTTSEnd(string(audio.SkipReason))
	if audio.SkipReason == tts.SkipQuotaExceeded || audio.SkipReason == tts.SkipAPIError {
		metrics.RecordError("tts_"+string(audio.SkipReason), "synthesizer")
	}
	ttsElapsed := time.Since(ttsStart)

	canonical := p.stages.Assembler.Assemble(req, composed, v, audio)

	logger.Info().
		Bool("session_generated", req.SessionGenerated).
		Bool("preview", req.PreviewMode).
		Int("attachments", len(req.Attachments)).
		Str("source", string(composed.Source)).
		Bool("summarized", composed.Summarized).
		Bool("tts_enabled", v.Enabled).
		Str("voice_id", v.VoiceID).
		Str("tts_skip_reason", canonical.Audio.SkipReason).
		Dur("compose_ms", composeElapsed).
		Dur("tts_ms", ttsElapsed).
		Msg("Reply assembled")

	return Result{
		Request:  req,
		Voice:    v,
		Composed: composed,
		Audio:    audio,
		Reply:    canonical,
		metrics:  metrics,
		logger:   logger,
	}, nil
}

// Mode picks the delivery mode for a result
func (p *Pipeline) Mode(res Result, clientStreams bool) stream.Mode {
	return p.stages.Selector.SelectMode(res.Reply, clientStreams)
}

// Deliver encodes the reply to sink and closes the turn's metrics. It must be
// called once per successful Run.
func (p *Pipeline) Deliver(res Result, sink stream.EventSink, mode stream.Mode) error {
	metrics := res.metrics
	if metrics == nil {
		metrics = observability.NewRequestMetrics(observability.NewCorrelationID())
		metrics.RecordRequestStart()
	}

	enc := stream.NewEncoder(sink, p.stages.ChunkSize)
	enc.OnEvent(metrics.RecordStreamEvent)

	err := enc.Encode(res.Reply, mode)
	if err != nil {
		metrics.RecordError("encoder", "stream")
		logger := res.Logger()
		logger.Error().Err(err).Str("mode", mode.String()).Msg("Failed to encode reply")
	} else if res.Reply.Audio.Present() {
		metrics.RecordAudioBytes(int64(base64.StdEncoding.DecodedLen(len(res.Reply.Audio.Data))))
	}

	metrics.RecordRequestEnd(mode.String())
	return err
}

// Record writes the turn to the conversation log. Failures are logged and
// never returned.
func (p *Pipeline) Record(ctx context.Context, res Result) {
	if p.stages.Recorder == nil {
		return
	}
	err := p.stages.Recorder.Record(ctx, NewEntry(res))
	observability.RecordConversationWrite(err == nil)
	if err != nil {
		logger := res.Logger()
		logger.Warn().Err(err).Msg("Failed to record conversation turn")
	}
}

// NewEntry builds the conversation log entry for a turn
func NewEntry(res Result) convlog.Entry {
	r := res.Reply
	return convlog.Entry{
		SessionID:       r.SessionID,
		UserText:        res.Request.Text,
		DisplayText:     r.DisplayText,
		SpeechText:      r.SpeechText,
		VoiceID:         r.Voice.VoiceID,
		VoiceName:       r.Voice.VoiceName,
		TTSEnabled:      r.Voice.Enabled,
		AudioGenerated:  r.Audio.Present(),
		SkipReason:      r.Audio.SkipReason,
		AttachmentCount: len(res.Request.Attachments),
		CreatedAt:       r.Timestamp,
	}
}
