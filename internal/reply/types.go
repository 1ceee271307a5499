package reply

import (
	"time"

	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/tts"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/voice"
)

// Audio is the audio section of a canonical reply. It always carries either
// Data or SkipReason.
type Audio struct {
	Data       string `json:"data,omitempty"` // base64
	MimeType   string `json:"mimeType"`
	SkipReason string `json:"skipReason,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Truncated  bool   `json:"truncated,omitempty"`
}

// Present reports whether the reply carries audio
func (a Audio) Present() bool {
	return a.Data != ""
}

// DataURL returns the audio as a data URI, or "" when there is none
func (a Audio) DataURL() string {
	if !a.Present() {
		return ""
	}
	return "data:" + a.MimeType + ";base64," + a.Data
}

// Voice is the voice section of a canonical reply
type Voice struct {
	Enabled       bool   `json:"enabled"`
	VoiceID       string `json:"voiceId"`
	VoiceName     string `json:"voiceName"`
	Summarize     bool   `json:"summarize"`
	SummaryLength string `json:"summaryLength"`
}

// CanonicalReply is the complete representation of one chat turn. Every
// encoder reads from it and nothing else.
type CanonicalReply struct {
	SessionID     string    `json:"sessionId"`
	DisplayText   string    `json:"displayText"`
	SpeechText    string    `json:"speechText"`
	HasMarkup     bool      `json:"hasMarkup"`
	Summarized    bool      `json:"summarized"`
	BackendFailed bool      `json:"backendFailed"`
	Audio         Audio     `json:"audio"`
	Voice         Voice     `json:"voice"`
	Timestamp     time.Time `json:"timestamp"`
}

// SkipReason returns the audio skip reason as its typed value
func (r CanonicalReply) SkipReason() tts.SkipReason {
	return tts.SkipReason(r.Audio.SkipReason)
}

// VoiceConfig returns the voice section in its pipeline form
func (r CanonicalReply) VoiceConfig() voice.VoiceConfig {
	return voice.VoiceConfig{
		Enabled:       r.Voice.Enabled,
		VoiceID:       r.Voice.VoiceID,
		VoiceName:     r.Voice.VoiceName,
		Summarize:     r.Voice.Summarize,
		SummaryLength: voice.SummaryLength(r.Voice.SummaryLength),
	}
}
