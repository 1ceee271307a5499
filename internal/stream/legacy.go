package stream

import (
	"time"

	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/reply"
)

// LegacyResponse is the single-shot wire object. Field names are the ones
// existing chat front-ends read; audio fields are omitted when there is no
// audio.
type LegacyResponse struct {
	Response       string `json:"response"`
	Text           string `json:"text"`
	SessionID      string `json:"sessionId"`
	EnableTTS      bool   `json:"enableTTS"`
	TTSEnabled     bool   `json:"ttsEnabled"`
	HasHTML        bool   `json:"hasHtml"`
	Voice          string `json:"voice"`
	VoiceID        string `json:"voiceId"`
	VoiceName      string `json:"voiceName"`
	Timestamp      string `json:"timestamp"`
	Success        bool   `json:"success"`
	Summarized     bool   `json:"summarized,omitempty"`
	AudioBase64    string `json:"audioBase64,omitempty"`
	AudioData      string `json:"audioData,omitempty"`
	AudioURL       string `json:"audioUrl,omitempty"`
	AudioGenerated bool   `json:"audioGenerated,omitempty"`
	AudioMimeType  string `json:"audioMimeType,omitempty"`
	TTSSkipReason  string `json:"ttsSkipReason,omitempty"`
}

// NewLegacyResponse adapts a canonical reply to the single-shot object
func NewLegacyResponse(r reply.CanonicalReply) LegacyResponse {
	out := LegacyResponse{
		Response:      r.DisplayText,
		Text:          r.DisplayText,
		SessionID:     r.SessionID,
		EnableTTS:     r.Voice.Enabled,
		TTSEnabled:    r.Voice.Enabled,
		HasHTML:       r.HasMarkup,
		Voice:         r.Voice.VoiceName,
		VoiceID:       r.Voice.VoiceID,
		VoiceName:     r.Voice.VoiceName,
		Timestamp:     formatTimestamp(r.Timestamp),
		Success:       true,
		Summarized:    r.Summarized,
		TTSSkipReason: r.Audio.SkipReason,
	}
	if r.Audio.Present() {
		out.AudioBase64 = r.Audio.Data
		out.AudioData = r.Audio.Data
		out.AudioURL = r.Audio.DataURL()
		out.AudioGenerated = true
		out.AudioMimeType = r.Audio.MimeType
	}
	return out
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
