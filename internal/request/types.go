package request

import (
	"errors"
	"time"

	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/voice"
)

// ErrMalformedInput is returned when the inbound payload is not a JSON object
var ErrMalformedInput = errors.New("malformed input: payload must be a JSON object")

// AttachmentRef is a file or screenshot sent along with a chat message
type AttachmentRef struct {
	Name         string
	MimeType     string
	SizeBytes    int64
	Payload      []byte // nil when absent or undecodable
	IsScreenshot bool
}

// ChatRequest is the canonical form of one inbound chat turn
type ChatRequest struct {
	SessionID        string
	SessionGenerated bool
	Text             string
	Empty            bool // no text field carried a non-empty string
	Attachments      []AttachmentRef
	PreviewMode      bool
	UserName         string
	WantsStream      bool
	ReceivedAt       time.Time
	Canonical        bool // payload validated against the canonical schema

	// VoiceFields holds the raw voice inputs; VoicePreference is empty until
	// WithVoice is applied.
	VoiceFields     voice.Fields
	VoicePreference voice.VoiceConfig
}

// WithVoice returns a copy of r carrying the resolved voice configuration
func (r ChatRequest) WithVoice(cfg voice.VoiceConfig) ChatRequest {
	r.VoicePreference = cfg
	return r
}

// FirstName returns the first word of the user's display name
func (r ChatRequest) FirstName() string {
	for i, c := range r.UserName {
		if c == ' ' {
			return r.UserName[:i]
		}
	}
	return r.UserName
}
