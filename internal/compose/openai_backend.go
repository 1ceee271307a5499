package compose

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/config"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/request"
)

// OpenAIBackend answers chat turns with the OpenAI chat completions API.
// Image attachments with a payload are sent as image_url parts.
type OpenAIBackend struct {
	client       *openai.Client
	model        string
	systemPrompt string
}

// NewOpenAIBackend creates a backend from configuration
func NewOpenAIBackend(cfg *config.Config) *OpenAIBackend {
	clientConfig := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		clientConfig.BaseURL = cfg.OpenAIBaseURL
	}

	return &OpenAIBackend{
		client:       openai.NewClientWithConfig(clientConfig),
		model:        cfg.OpenAIModel,
		systemPrompt: cfg.OpenAISystemPrompt,
	}
}

// Answer implements Backend
func (b *OpenAIBackend) Answer(ctx context.Context, req BackendRequest) (string, error) {
	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    b.model,
		Messages: b.buildMessages(req),
		User:     req.SessionID,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion failed: %w", describeOpenAIError(err))
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// HealthCheck lists models to confirm the API key and endpoint work
func (b *OpenAIBackend) HealthCheck(ctx context.Context) (bool, error) {
	if _, err := b.client.ListModels(ctx); err != nil {
		return false, describeOpenAIError(err)
	}
	return true, nil
}

func (b *OpenAIBackend) buildMessages(req BackendRequest) []openai.ChatCompletionMessage {
	system := b.systemPrompt
	if name := req.Context["userName"]; name != "" {
		system += fmt.Sprintf("\nThe user's name is %s.", name)
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
	}

	text := req.Text
	var images []openai.ChatMessagePart
	for _, a := range req.Attachments {
		if strings.HasPrefix(a.MimeType, "image/") && a.Payload != nil {
			images = append(images, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    "data:" + a.MimeType + ";base64," + base64.StdEncoding.EncodeToString(a.Payload),
					Detail: openai.ImageURLDetailAuto,
				},
			})
			continue
		}
		text += "\n" + describeAttachment(a)
	}

	if len(images) == 0 {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text})
		return messages
	}

	parts := append([]openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: text}}, images...)
	return append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, MultiContent: parts})
}

func describeAttachment(a request.AttachmentRef) string {
	kind := "file"
	if a.IsScreenshot {
		kind = "screenshot"
	}
	desc := fmt.Sprintf("[Attached %s: %s", kind, a.Name)
	if a.MimeType != "" {
		desc += ", " + a.MimeType
	}
	if a.SizeBytes > 0 {
		desc += fmt.Sprintf(", %d bytes", a.SizeBytes)
	}
	return desc + "]"
}

func describeOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("status %d: %w", apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("status %d: %w", reqErr.HTTPStatusCode, err)
	}
	return err
}
