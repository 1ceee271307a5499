package compose

import (
	"context"

	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/request"
)

// Fixed texts used when the backend is not consulted or fails
const (
	ApologyText        = "I apologize, but I was unable to generate a proper response. Please try again."
	EmptyPromptText    = "I didn't receive a message. Please type your question and I'll be glad to help."
	ContinuationNotice = "More information is available on screen."
)

// Source records where the display text came from
type Source string

const (
	SourceBackend Source = "backend"
	SourcePreview Source = "preview"
	SourcePrompt  Source = "prompt"
	SourceApology Source = "apology"
)

// ComposedReply is the answer text of one turn plus its spoken projection
type ComposedReply struct {
	DisplayText   string // backend output, byte-for-byte
	SpeechText    string // markup-free projection of DisplayText
	HasMarkup     bool
	Summarized    bool
	BackendFailed bool
	Source        Source
}

// BackendRequest is what the language backend receives
type BackendRequest struct {
	Text        string
	SessionID   string
	Context     map[string]string
	Attachments []request.AttachmentRef
}

// Backend generates the answer text for a chat turn
type Backend interface {
	Answer(ctx context.Context, req BackendRequest) (string, error)
}

// BackendFunc adapts a function to Backend
type BackendFunc func(ctx context.Context, req BackendRequest) (string, error)

func (f BackendFunc) Answer(ctx context.Context, req BackendRequest) (string, error) {
	return f(ctx, req)
}
