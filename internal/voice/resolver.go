package voice

import (
	"strings"

	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/payload"
)

var (
	flatEnabledKeys   = []string{"enableTTS", "ttsEnabled"}
	nestedEnabledKeys = []string{"enableTTS", "ttsEnabled", "enabled"}
	voiceIDKeys       = []string{"voiceId", "voice", "selectedVoice"}
	voiceNameKeys     = []string{"voiceName"}
	summarizeKeys     = []string{"summarize", "ttsSummarize", "ttsSummary"}
	summaryLengthKeys = []string{"ttsSummaryLength", "summaryLength"}
)

// Defaults are the values used when a request carries no voice signal
type Defaults struct {
	Enabled   bool
	VoiceID   string
	VoiceName string
}

// Resolver turns raw voice fields into one VoiceConfig
type Resolver struct {
	catalog  *Catalog
	defaults Defaults
}

// NewResolver creates a resolver. A nil catalog uses the built-in list.
func NewResolver(catalog *Catalog, defaults Defaults) *Resolver {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Resolver{catalog: catalog, defaults: defaults}
}

// Catalog returns the voice catalog used for name and ID mapping
func (r *Resolver) Catalog() *Catalog {
	return r.catalog
}

// Defaults returns the configured default identity and enabled flag
func (r *Resolver) Defaults() Defaults {
	return r.defaults
}

// Resolve produces the effective VoiceConfig. An explicit false for any
// enabled flag in any source disables speech, whatever else says true.
func (r *Resolver) Resolve(f Fields) VoiceConfig {
	cfg := VoiceConfig{
		Enabled:       r.resolveEnabled(f),
		SummaryLength: SummaryShort,
	}
	cfg.VoiceID, cfg.VoiceName = r.resolveIdentity(f)
	cfg.Summarize, cfg.SummaryLength = resolveSummary(f)
	return cfg
}

func (r *Resolver) resolveEnabled(f Fields) bool {
	sawTrue := false
	check := func(o payload.Object, keys []string) bool {
		for _, key := range keys {
			value, set := o.Bool(key)
			if !set {
				continue
			}
			if !value {
				return false
			}
			sawTrue = true
		}
		return true
	}

	for _, o := range f.flat() {
		if !check(o, flatEnabledKeys) {
			return false
		}
	}
	for _, o := range f.nested() {
		if !check(o, nestedEnabledKeys) {
			return false
		}
	}

	if sawTrue {
		return true
	}
	return r.defaults.Enabled
}

func (r *Resolver) resolveIdentity(f Fields) (id, name string) {
	var rawID, rawName string
	for _, o := range f.all() {
		if rawID == "" {
			rawID = o.FirstString(voiceIDKeys...)
		}
		if rawName == "" {
			rawName = o.FirstString(voiceNameKeys...)
		}
	}

	if rawID != "" {
		// Clients send either a provider ID or a friendly name ("sarah")
		if v, ok := r.catalog.ByName(rawID); ok {
			return v.ID, firstNonEmpty(rawName, v.Name)
		}
		if v, ok := r.catalog.ByID(rawID); ok {
			return v.ID, firstNonEmpty(rawName, v.Name)
		}
		return rawID, firstNonEmpty(rawName, rawID)
	}

	if rawName != "" {
		if v, ok := r.catalog.ByName(rawName); ok {
			return v.ID, v.Name
		}
	}

	return r.defaults.VoiceID, r.defaults.VoiceName
}

func resolveSummary(f Fields) (bool, SummaryLength) {
	summarize, summarizeSet := false, false
	var length string

	for _, o := range f.all() {
		for _, key := range summarizeKeys {
			value, set := o.Bool(key)
			if !set {
				continue
			}
			if !summarizeSet || !value {
				summarize = value
			}
			summarizeSet = true
		}
		if length == "" {
			length = strings.ToLower(o.FirstString(summaryLengthKeys...))
		}
	}

	explicitOff := summarizeSet && !summarize

	switch length {
	case "short":
		return !explicitOff, SummaryShort
	case "long":
		return !explicitOff, SummaryLong
	case "normal", "full":
		return false, SummaryShort
	}
	return summarize, SummaryShort
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
