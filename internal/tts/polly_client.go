package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"

	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/config"
)

type pollySynthClient interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// PollyClient implements Provider using Amazon Polly. Credentials come from
// the default AWS chain and are loaded on first use.
type PollyClient struct {
	region       string
	defaultVoice string
	engine       pollytypes.Engine

	mu     sync.Mutex
	client pollySynthClient
}

// NewPollyClient creates a Polly provider from configuration
func NewPollyClient(cfg *config.Config) *PollyClient {
	return newPollyClient(cfg, nil)
}

func newPollyClient(cfg *config.Config, client pollySynthClient) *PollyClient {
	engine := pollytypes.EngineStandard
	if strings.EqualFold(cfg.PollyEngine, "neural") {
		engine = pollytypes.EngineNeural
	}
	voice := cfg.PollyVoice
	if voice == "" {
		voice = "Joanna"
	}
	return &PollyClient{
		region:       cfg.PollyRegion,
		defaultVoice: voice,
		engine:       engine,
		client:       client,
	}
}

// Name implements Provider
func (c *PollyClient) Name() string {
	return "polly"
}

// Synthesize converts text to MP3 audio. ElevenLabs voice IDs mean nothing to
// Polly, so the voice name is used when it names a Polly voice.
func (c *PollyClient) Synthesize(ctx context.Context, req SynthesisRequest) ([]byte, error) {
	client, err := c.resolveClient(ctx)
	if err != nil {
		return nil, err
	}

	text := req.Text
	output, err := client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Engine:       c.engine,
		OutputFormat: pollytypes.OutputFormatMp3,
		Text:         &text,
		TextType:     pollytypes.TextTypeText,
		VoiceId:      c.voiceFor(req.VoiceName),
	})
	if err != nil {
		return nil, describePollyError(err)
	}
	if output == nil || output.AudioStream == nil {
		return nil, errors.New("polly returned no audio stream")
	}
	defer output.AudioStream.Close()

	audioData, err := io.ReadAll(output.AudioStream)
	if err != nil {
		return nil, fmt.Errorf("failed to read polly audio: %w", err)
	}
	return audioData, nil
}

// HealthCheck confirms AWS configuration can be loaded
func (c *PollyClient) HealthCheck(ctx context.Context) (bool, error) {
	if _, err := c.resolveClient(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (c *PollyClient) voiceFor(name string) pollytypes.VoiceId {
	for _, v := range pollytypes.VoiceId("").Values() {
		if strings.EqualFold(string(v), name) {
			return v
		}
	}
	return pollytypes.VoiceId(c.defaultVoice)
}

func (c *PollyClient) resolveClient(ctx context.Context) (pollySynthClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(c.region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	c.client = polly.NewFromConfig(awsCfg)
	return c.client, nil
}

// describePollyError prefixes API errors with their code so that throttling
// ("TooManyRequestsException") is recognisable downstream
func describePollyError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("polly %s: %w", apiErr.ErrorCode(), err)
	}
	return fmt.Errorf("polly request failed: %w", err)
}
