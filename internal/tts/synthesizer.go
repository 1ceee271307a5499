package tts

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"

	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/observability"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/resilience"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/voice"
)

// Error text markers that identify provider quota or rate limiting. Only
// matched against text a provider produced, never against request URLs.
var quotaMarkers = []string{
	"quota", "insufficient", "toomanyrequests", "too many requests", "throttl",
	"rate limit", "rate exceeded", "character limit", "limit exceeded", "limit reached",
}

// AWS error codes that mean throttling or an exhausted quota
var quotaErrorCodes = map[string]bool{
	"TooManyRequestsException":      true,
	"ThrottlingException":           true,
	"Throttling":                    true,
	"LimitExceededException":        true,
	"ServiceQuotaExceededException": true,
}

// Options bound a synthesis call
type Options struct {
	Timeout          time.Duration
	MaxChars         int // hard ceiling on characters sent to the provider
	MinChars         int // shorter text is not worth speaking
	MinEncodedLength int // shorter base64 output is treated as corrupt
}

// DefaultOptions returns the production limits
func DefaultOptions() Options {
	return Options{
		Timeout:          10 * time.Second,
		MaxChars:         2500,
		MinChars:         5,
		MinEncodedLength: 100,
	}
}

// Synthesizer turns speech text into an AudioArtifact. Failures are recorded
// as skip reasons and never returned as errors.
type Synthesizer struct {
	provider Provider
	breaker  *resilience.CircuitBreaker
	opts     Options
	logger   zerolog.Logger
}

// NewSynthesizer creates a synthesizer. breaker may be nil.
func NewSynthesizer(provider Provider, breaker *resilience.CircuitBreaker, opts Options, logger zerolog.Logger) *Synthesizer {
	defaults := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = defaults.MaxChars
	}
	if opts.MinChars <= 0 {
		opts.MinChars = defaults.MinChars
	}
	if opts.MinEncodedLength <= 0 {
		opts.MinEncodedLength = defaults.MinEncodedLength
	}
	return &Synthesizer{
		provider: provider,
		breaker:  breaker,
		opts:     opts,
		logger:   logger.With().Str("component", "tts").Str("provider", provider.Name()).Logger(),
	}
}

// Synthesize applies the skip rules in order and calls the provider when
// none match
func (s *Synthesizer) Synthesize(ctx context.Context, text string, v voice.VoiceConfig) AudioArtifact {
	if !v.Enabled {
		return Skipped(SkipDisabled, "")
	}

	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < s.opts.MinChars {
		return Skipped(SkipEmptyText, "")
	}

	text, truncated := Truncate(text, s.opts.MaxChars)
	length := utf8.RuneCountInString(text)

	artifact := s.call(ctx, text, v)
	artifact.TextLength = length
	artifact.Truncated = truncated
	return artifact
}

func (s *Synthesizer) call(ctx context.Context, text string, v voice.VoiceConfig) AudioArtifact {
	if s.breaker != nil && !s.breaker.Allow() {
		return Skipped(SkipAPIError, resilience.ErrCircuitOpen.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	audio, err := s.provider.Synthesize(ctx, SynthesisRequest{
		Text:      text,
		VoiceID:   v.VoiceID,
		VoiceName: v.VoiceName,
	})

	var artifact AudioArtifact
	if err == nil {
		encoded := base64.StdEncoding.EncodeToString(audio)
		if len(encoded) < s.opts.MinEncodedLength {
			err = fmt.Errorf("audio payload too small: %d base64 characters", len(encoded))
		} else {
			artifact = AudioArtifact{EncodedAudio: encoded, MimeType: MimeTypeMP3}
		}
	}

	if s.breaker != nil {
		s.breaker.RecordResult(err == nil)
		if err != nil {
			observability.IncrementCircuitBreakerFailures(s.breaker.Name())
		}
	}

	if err != nil {
		reason := ClassifyError(err)
		s.logger.Warn().
			Err(err).
			Str("skip_reason", string(reason)).
			Str("voice_id", v.VoiceID).
			Msg("Speech synthesis failed, continuing without audio")
		return Skipped(reason, err.Error())
	}

	return artifact
}

// ClassifyError maps a provider failure to a skip reason. Status codes and
// AWS error codes decide first; text markers are only consulted for what
// remains. Anything not recognisable as quota or rate limiting, timeouts
// included, is an api_error.
func ClassifyError(err error) SkipReason {
	if err == nil {
		return SkipNone
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		if providerErr.StatusCode == http.StatusTooManyRequests || providerErr.StatusCode == http.StatusPaymentRequired {
			return SkipQuotaExceeded
		}
		return classifyText(providerErr.Body)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if quotaErrorCodes[apiErr.ErrorCode()] {
			return SkipQuotaExceeded
		}
		return SkipAPIError
	}

	// Transport errors embed the request URL, which carries the voice ID
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return classifyText(urlErr.Err.Error())
	}
	return classifyText(err.Error())
}

func classifyText(text string) SkipReason {
	text = strings.ToLower(text)
	for _, marker := range quotaMarkers {
		if strings.Contains(text, marker) {
			return SkipQuotaExceeded
		}
	}
	return SkipAPIError
}

// Truncate cuts text to at most max characters. When a cut is needed it ends
// at the last sentence terminator, provided that terminator lies beyond 80%
// of max; otherwise the hard cut stands.
func Truncate(text string, max int) (string, bool) {
	if utf8.RuneCountInString(text) <= max {
		return text, false
	}

	runes := []rune(text)[:max]
	for i := len(runes) - 1; i > max*4/5; i-- {
		if runes[i] == '.' || runes[i] == '?' || runes[i] == '!' {
			return string(runes[:i+1]), true
		}
	}
	return string(runes), true
}
