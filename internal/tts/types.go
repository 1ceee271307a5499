package tts

import (
	"context"
	"fmt"
)

// SkipReason records why a turn carries no audio. The zero value means
// audio was produced.
type SkipReason string

const (
	SkipNone          SkipReason = ""
	SkipDisabled      SkipReason = "disabled"
	SkipEmptyText     SkipReason = "empty_text"
	SkipQuotaExceeded SkipReason = "quota_exceeded"
	SkipAPIError      SkipReason = "api_error"
)

// MimeTypeMP3 is the format requested from every provider
const MimeTypeMP3 = "audio/mpeg"

// AudioArtifact is the outcome of speech synthesis for one turn. Exactly one
// of EncodedAudio and SkipReason is set.
type AudioArtifact struct {
	EncodedAudio string // base64 audio, empty when skipped
	MimeType     string
	SkipReason   SkipReason
	Detail       string // diagnostic text for failures
	TextLength   int    // characters sent to the provider
	Truncated    bool
}

// HasAudio reports whether the artifact carries audio
func (a AudioArtifact) HasAudio() bool {
	return a.EncodedAudio != ""
}

// Skipped builds an artifact carrying only a skip reason
func Skipped(reason SkipReason, detail string) AudioArtifact {
	return AudioArtifact{MimeType: MimeTypeMP3, SkipReason: reason, Detail: detail}
}

// SynthesisRequest is what a provider receives
type SynthesisRequest struct {
	Text      string
	VoiceID   string
	VoiceName string
}

// Provider converts text to MP3 audio bytes
type Provider interface {
	Synthesize(ctx context.Context, req SynthesisRequest) ([]byte, error)
	Name() string
}

// ProviderError is a non-success HTTP response from a speech provider
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s API returned status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s API returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}
