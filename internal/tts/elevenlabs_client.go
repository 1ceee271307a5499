package tts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/config"
)

// Upper bound on error bodies kept for diagnostics
const maxErrorBody = 512

// ElevenLabsClient implements Provider using the ElevenLabs streaming TTS API
type ElevenLabsClient struct {
	apiKey     string
	baseURL    string
	modelID    string
	httpClient *http.Client
}

// ElevenLabsRequest represents the request payload for the ElevenLabs TTS API
type ElevenLabsRequest struct {
	Text          string                  `json:"text"`
	ModelID       string                  `json:"model_id"`
	VoiceSettings ElevenLabsVoiceSettings `json:"voice_settings"`
}

// ElevenLabsVoiceSettings tunes the generated voice
type ElevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// NewElevenLabsClient creates a new ElevenLabs TTS client. Timeouts come from
// the caller's context.
func NewElevenLabsClient(cfg *config.Config) *ElevenLabsClient {
	return &ElevenLabsClient{
		apiKey:     cfg.ElevenLabsAPIKey,
		baseURL:    strings.TrimRight(cfg.ElevenLabsBaseURL, "/"),
		modelID:    cfg.ElevenLabsModelID,
		httpClient: &http.Client{},
	}
}

// Name implements Provider
func (c *ElevenLabsClient) Name() string {
	return "elevenlabs"
}

// Synthesize converts text to MP3 audio
func (c *ElevenLabsClient) Synthesize(ctx context.Context, req SynthesisRequest) ([]byte, error) {
	reqBody := ElevenLabsRequest{
		Text:    req.Text,
		ModelID: c.modelID,
		VoiceSettings: ElevenLabsVoiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
			Style:           0.3,
			UseSpeakerBoost: false,
		},
	}

	jsonData, err := sonic.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/stream", c.baseURL, req.VoiceID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", MimeTypeMP3)
	httpReq.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &ProviderError{
			Provider:   c.Name(),
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio response: %w", err)
	}
	return audioData, nil
}

// HealthCheck validates configuration without spending synthesis credits
func (c *ElevenLabsClient) HealthCheck(ctx context.Context) (bool, error) {
	if c.apiKey == "" {
		return false, fmt.Errorf("elevenlabs API key is not configured")
	}
	return true, nil
}
