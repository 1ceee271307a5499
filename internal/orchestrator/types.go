package orchestrator

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// Fully qualified names on the orchestrator side
const (
	ServiceName  = "lexiq.orchestrator.v1.CognitiveOrchestrator"
	AnswerMethod = "/" + ServiceName + "/Answer"
)

// AnswerRequest is sent to the Orchestrator for one chat turn
type AnswerRequest struct {
	ConversationID string
	Text           string
	Context        map[string]string
	Attachments    []Attachment
	IncludeRAG     bool
}

// Attachment describes a file sent with the turn. Payloads are not forwarded.
type Attachment struct {
	Name         string
	MimeType     string
	SizeBytes    int64
	IsScreenshot bool
}

// AnswerResponse represents a response from the Orchestrator
type AnswerResponse struct {
	Text           string
	ConversationID string
	TotalTokens    int32
	Error          *Error
}

// Error represents an error reported by the Orchestrator in its response
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("orchestrator error %s: %s", e.Code, e.Message)
}

func (r AnswerRequest) toStruct() (*structpb.Struct, error) {
	ctx := make(map[string]interface{}, len(r.Context))
	for k, v := range r.Context {
		ctx[k] = v
	}

	attachments := make([]interface{}, 0, len(r.Attachments))
	for _, a := range r.Attachments {
		attachments = append(attachments, map[string]interface{}{
			"name":          a.Name,
			"mime_type":     a.MimeType,
			"size_bytes":    float64(a.SizeBytes),
			"is_screenshot": a.IsScreenshot,
		})
	}

	return structpb.NewStruct(map[string]interface{}{
		"conversation_id": r.ConversationID,
		"text":            r.Text,
		"context":         ctx,
		"attachments":     attachments,
		"include_rag":     r.IncludeRAG,
	})
}

func responseFromStruct(s *structpb.Struct) AnswerResponse {
	fields := s.GetFields()
	resp := AnswerResponse{
		Text:           stringField(fields, "text"),
		ConversationID: stringField(fields, "conversation_id"),
		TotalTokens:    int32(fields["total_tokens"].GetNumberValue()),
	}
	if resp.Text == "" {
		resp.Text = stringField(fields, "response")
	}
	if errStruct := fields["error"].GetStructValue(); errStruct != nil {
		errFields := errStruct.GetFields()
		resp.Error = &Error{
			Code:    stringField(errFields, "code"),
			Message: stringField(errFields, "message"),
		}
	}
	return resp
}

func stringField(fields map[string]*structpb.Value, key string) string {
	return fields[key].GetStringValue()
}
