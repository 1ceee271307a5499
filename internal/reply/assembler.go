package reply

import (
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/compose"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/request"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/tts"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/voice"
)

// Assembler merges the stage outputs of one turn into a CanonicalReply
type Assembler struct {
	defaults voice.Defaults
}

// NewAssembler creates an assembler that fills missing voice identity from
// defaults
func NewAssembler(defaults voice.Defaults) *Assembler {
	return &Assembler{defaults: defaults}
}

// Assemble builds the canonical reply. It performs no I/O and depends only on
// its arguments, so the same inputs always give the same reply.
func (a *Assembler) Assemble(req request.ChatRequest, composed compose.ComposedReply, v voice.VoiceConfig, artifact tts.AudioArtifact) CanonicalReply {
	timestamp := req.ReceivedAt.UTC()

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = fmt.Sprintf("session_%d", timestamp.UnixMilli())
	}

	return CanonicalReply{
		SessionID:     sessionID,
		DisplayText:   composed.DisplayText,
		SpeechText:    composed.SpeechText,
		HasMarkup:     composed.HasMarkup,
		Summarized:    composed.Summarized,
		BackendFailed: composed.BackendFailed,
		Audio:         assembleAudio(artifact, v.Enabled),
		Voice:         a.assembleVoice(v),
		Timestamp:     timestamp,
	}
}

func (a *Assembler) assembleVoice(v voice.VoiceConfig) Voice {
	out := Voice{
		Enabled:       v.Enabled,
		VoiceID:       v.VoiceID,
		VoiceName:     v.VoiceName,
		Summarize:     v.Summarize,
		SummaryLength: string(v.SummaryLength),
	}
	if out.VoiceID == "" {
		out.VoiceID = a.defaults.VoiceID
		if out.VoiceName == "" {
			out.VoiceName = a.defaults.VoiceName
		}
	}
	if out.VoiceName == "" {
		out.VoiceName = out.VoiceID
	}
	if out.SummaryLength == "" {
		out.SummaryLength = string(voice.SummaryShort)
	}
	return out
}

func assembleAudio(artifact tts.AudioArtifact, enabled bool) Audio {
	out := Audio{
		Data:       artifact.EncodedAudio,
		MimeType:   artifact.MimeType,
		SkipReason: string(artifact.SkipReason),
		Detail:     artifact.Detail,
		Truncated:  artifact.Truncated,
	}
	if out.MimeType == "" {
		out.MimeType = tts.MimeTypeMP3
	}

	switch {
	case !enabled:
		// Opt-out wins over anything a provider produced
		out.Data = ""
		out.SkipReason = string(tts.SkipDisabled)
		out.Detail = ""
		out.Truncated = false
	case out.Data != "":
		out.SkipReason = ""
		out.Detail = ""
	case out.SkipReason == "":
		out.SkipReason = string(tts.SkipAPIError)
		if out.Detail == "" {
			out.Detail = "no audio produced"
		}
	}
	return out
}

// Marshal encodes the reply in its canonical JSON form
func Marshal(r CanonicalReply) ([]byte, error) {
	data, err := sonic.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reply: %w", err)
	}
	return data, nil
}
