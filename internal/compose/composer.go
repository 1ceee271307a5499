package compose

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/request"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/voice"
)

// Options tune composition
type Options struct {
	SummaryThreshold int           // characters of speech text before summarizing
	Timeout          time.Duration // bound on one backend call, zero for none
}

// Composer produces the answer for a chat turn. Backend failures never
// escape: they become the apology text.
type Composer struct {
	backend Backend
	opts    Options
	logger  zerolog.Logger
}

// NewComposer creates a composer around backend
func NewComposer(backend Backend, opts Options, logger zerolog.Logger) *Composer {
	if opts.SummaryThreshold <= 0 {
		opts.SummaryThreshold = 400
	}
	return &Composer{
		backend: backend,
		opts:    opts,
		logger:  logger.With().Str("component", "composer").Logger(),
	}
}

// Compose answers req and derives the speech text for v
func (c *Composer) Compose(ctx context.Context, req request.ChatRequest, v voice.VoiceConfig) ComposedReply {
	var display string
	var source Source

	switch {
	case req.PreviewMode:
		display, source = previewGreeting(req.FirstName()), SourcePreview
	case req.Empty:
		display, source = EmptyPromptText, SourcePrompt
	default:
		display, source = c.answer(ctx, req)
	}

	reply := ComposedReply{
		DisplayText:   display,
		SpeechText:    SpeechText(display),
		HasMarkup:     HasMarkup(display),
		BackendFailed: source == SourceApology,
		Source:        source,
	}

	if v.Enabled && v.Summarize && utf8.RuneCountInString(reply.SpeechText) > c.opts.SummaryThreshold {
		reply.SpeechText, reply.Summarized = Summarize(reply.SpeechText, v.SummaryLength)
	}

	return reply
}

func (c *Composer) answer(ctx context.Context, req request.ChatRequest) (string, Source) {
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	out, err := c.backend.Answer(ctx, BackendRequest{
		Text:        req.Text,
		SessionID:   req.SessionID,
		Context:     backendContext(req),
		Attachments: req.Attachments,
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("session_id", req.SessionID).Msg("Backend call failed, using apology text")
		return ApologyText, SourceApology
	}
	if strings.TrimSpace(out) == "" {
		c.logger.Warn().Str("session_id", req.SessionID).Msg("Backend returned empty output, using apology text")
		return ApologyText, SourceApology
	}
	return out, SourceBackend
}

func backendContext(req request.ChatRequest) map[string]string {
	ctx := map[string]string{}
	if req.UserName != "" {
		ctx["userName"] = req.UserName
	}
	if n := len(req.Attachments); n > 0 {
		ctx["attachmentCount"] = fmt.Sprint(n)
	}
	return ctx
}

func previewGreeting(firstName string) string {
	if firstName != "" {
		return fmt.Sprintf("Hello %s! I'm ready to help. What can I do for you today?", firstName)
	}
	return "Hello! I'm ready to assist you. What can I do for you today?"
}
