package request

import "github.com/santhosh-tekuri/jsonschema/v5"

const canonicalSchemaURL = "https://schemas.saxtech.local/chat-request/v1.json"

// canonicalSchemaJSON describes the versioned request contract. Payloads
// that do not match it are still accepted through the tolerant path.
const canonicalSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["sessionId", "text"],
  "additionalProperties": false,
  "properties": {
    "sessionId": {"type": "string", "minLength": 1},
    "text": {"type": "string"},
    "userName": {"type": "string"},
    "preview": {"type": "boolean"},
    "stream": {"type": "boolean"},
    "attachments": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name"],
        "additionalProperties": false,
        "properties": {
          "name": {"type": "string"},
          "mimeType": {"type": "string"},
          "sizeBytes": {"type": "integer", "minimum": 0},
          "payload": {"type": "string"},
          "isScreenshot": {"type": "boolean"}
        }
      }
    },
    "voice": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "enabled": {"type": "boolean"},
        "voiceId": {"type": "string"},
        "voiceName": {"type": "string"},
        "summarize": {"type": "boolean"},
        "summaryLength": {"enum": ["short", "long", "normal", "full"]}
      }
    }
  }
}`

var canonicalSchema = jsonschema.MustCompileString(canonicalSchemaURL, canonicalSchemaJSON)

type canonicalAttachment struct {
	Name         string `json:"name"`
	MimeType     string `json:"mimeType"`
	SizeBytes    int64  `json:"sizeBytes"`
	Payload      string `json:"payload"`
	IsScreenshot bool   `json:"isScreenshot"`
}

type canonicalRequest struct {
	SessionID   string                 `json:"sessionId"`
	Text        string                 `json:"text"`
	UserName    string                 `json:"userName"`
	Preview     bool                   `json:"preview"`
	Stream      bool                   `json:"stream"`
	Attachments []canonicalAttachment  `json:"attachments"`
	Voice       map[string]interface{} `json:"voice"`
}
