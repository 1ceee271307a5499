package stream

import (
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/reply"
)

// Event types of the streaming protocol
const (
	EventBegin   = "begin"
	EventContent = "content"
	EventEnd     = "end"
)

// Event is one NDJSON line. Seq increases by one per event of a reply.
type Event struct {
	Type      string         `json:"type"`
	Seq       int            `json:"seq"`
	SessionID string         `json:"sessionId"`
	Timestamp string         `json:"timestamp,omitempty"`
	Content   string         `json:"content,omitempty"`
	AudioFields
	Metadata *EventMetadata `json:"metadata,omitempty"`
}

// AudioFields are carried by the end event both at top level and inside
// metadata, since clients read audio from either place
type AudioFields struct {
	AudioBase64    string `json:"audioBase64,omitempty"`
	AudioURL       string `json:"audioUrl,omitempty"`
	AudioMimeType  string `json:"audioMimeType,omitempty"`
	AudioGenerated bool   `json:"audioGenerated,omitempty"`
	TTSSkipReason  string `json:"ttsSkipReason,omitempty"`
}

// EventMetadata describes the turn on begin and end events
type EventMetadata struct {
	EnableTTS  bool   `json:"enableTTS"`
	TTSEnabled bool   `json:"ttsEnabled"`
	VoiceID    string `json:"voiceId"`
	VoiceName  string `json:"voiceName"`
	HasHTML    bool   `json:"hasHtml"`
	Summarized bool   `json:"summarized,omitempty"`
	Length     int    `json:"length,omitempty"` // characters of display text, set on end
	AudioFields
}

func audioFields(r reply.CanonicalReply) AudioFields {
	fields := AudioFields{TTSSkipReason: r.Audio.SkipReason}
	if r.Audio.Present() {
		fields.AudioBase64 = r.Audio.Data
		fields.AudioURL = r.Audio.DataURL()
		fields.AudioMimeType = r.Audio.MimeType
		fields.AudioGenerated = true
	}
	return fields
}

func metadata(r reply.CanonicalReply) *EventMetadata {
	return &EventMetadata{
		EnableTTS:  r.Voice.Enabled,
		TTSEnabled: r.Voice.Enabled,
		VoiceID:    r.Voice.VoiceID,
		VoiceName:  r.Voice.VoiceName,
		HasHTML:    r.HasMarkup,
		Summarized: r.Summarized,
	}
}
