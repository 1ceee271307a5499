package voice

import "github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/payload"

// SummaryLength selects how much of a long reply is spoken
type SummaryLength string

const (
	SummaryShort SummaryLength = "short" // first sentence
	SummaryLong  SummaryLength = "long"  // first two sentences
)

// VoiceConfig is the effective speech configuration of one chat turn. It is
// resolved once per request and passed by value afterwards.
type VoiceConfig struct {
	Enabled       bool
	VoiceID       string
	VoiceName     string
	Summarize     bool
	SummaryLength SummaryLength
}

// Fields carries the raw voice-related objects of an inbound payload in the
// shapes clients have historically used
type Fields struct {
	Root     payload.Object // flat fields at the payload root
	Body     payload.Object // flat fields under a nested "body" object
	Settings []payload.Object // every nested "voiceSettings", root first
	Memory   []payload.Object // every nested "memory", "session" and "sessionData"
}

// flat returns the flat-field sources in lookup order
func (f Fields) flat() []payload.Object {
	return []payload.Object{f.Root, f.Body}
}

// nested returns the nested-object sources in lookup order
func (f Fields) nested() []payload.Object {
	nested := make([]payload.Object, 0, len(f.Settings)+len(f.Memory))
	nested = append(nested, f.Settings...)
	return append(nested, f.Memory...)
}

// all returns every source in lookup order
func (f Fields) all() []payload.Object {
	return append(f.flat(), f.nested()...)
}
