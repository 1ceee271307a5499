package request

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/payload"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/voice"
)

// Field names clients have used for the message text, in priority order
var textKeys = []string{
	"text", "message", "chatInput", "userMessage", "query", "input", "prompt", "MESSAGE_SENT",
}

var sessionKeys = []string{"sessionId", "session_id"}

// Normalizer turns inbound payloads into ChatRequests. It is safe for
// concurrent use.
type Normalizer struct {
	now func() time.Time

	mu         sync.Mutex
	lastMillis int64
	seq        int
}

// NewNormalizer creates a normalizer using the wall clock
func NewNormalizer() *Normalizer {
	return &Normalizer{now: time.Now}
}

// Normalize parses raw into a ChatRequest. The only error is
// ErrMalformedInput, returned when raw is not a JSON object; every other
// defect degrades to a default.
func (n *Normalizer) Normalize(raw []byte) (ChatRequest, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ChatRequest{}, ErrMalformedInput
	}

	var decoded interface{}
	if err := sonic.Unmarshal(raw, &decoded); err != nil {
		return ChatRequest{}, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	root, ok := payload.AsObject(decoded)
	if !ok {
		return ChatRequest{}, ErrMalformedInput
	}

	receivedAt := n.now()

	var req ChatRequest
	if canonicalSchema.Validate(decoded) == nil {
		req = n.fromCanonical(raw, root)
	} else {
		req = fromLegacy(root)
	}

	req.ReceivedAt = receivedAt
	if req.SessionID == "" {
		req.SessionID = n.generateSessionID(receivedAt)
		req.SessionGenerated = true
	}
	req.Empty = req.Text == ""

	return req, nil
}

func (n *Normalizer) fromCanonical(raw []byte, root payload.Object) ChatRequest {
	var c canonicalRequest
	if err := sonic.Unmarshal(raw, &c); err != nil {
		// Schema-valid payloads always decode; fall back to be safe
		return fromLegacy(root)
	}

	req := ChatRequest{
		SessionID:   sessionOrEmpty(c.SessionID),
		Text:        strings.TrimSpace(c.Text),
		UserName:    strings.TrimSpace(c.UserName),
		PreviewMode: c.Preview,
		WantsStream: c.Stream,
		Canonical:   true,
	}
	if c.Voice != nil {
		req.VoiceFields.Settings = []payload.Object{payload.Object(c.Voice)}
	}

	for _, a := range c.Attachments {
		mime, data := decodePayload(a.Payload)
		ref := AttachmentRef{
			Name:         a.Name,
			MimeType:     firstNonEmpty(a.MimeType, mime),
			SizeBytes:    a.SizeBytes,
			Payload:      data,
			IsScreenshot: a.IsScreenshot,
		}
		if ref.SizeBytes == 0 && data != nil {
			ref.SizeBytes = int64(len(data))
		}
		req.Attachments = append(req.Attachments, ref)
	}
	return req
}

// fromLegacy extracts a request from the historical, unversioned shapes
func fromLegacy(root payload.Object) ChatRequest {
	body := root.Object("body")

	req := ChatRequest{
		Text:        firstNonEmpty(root.FirstString(textKeys...), body.FirstString(textKeys...)),
		SessionID:   legacySessionID(root, body),
		Attachments: legacyAttachments(root, body),
		PreviewMode: anyTrue([]payload.Object{root, body}, "preview", "previewMode"),
		WantsStream: anyTrue([]payload.Object{root, body}, "stream"),
		UserName:    firstNonEmpty(userName(root), userName(body)),
	}

	req.VoiceFields = voice.Fields{
		Root:     root,
		Body:     body,
		Settings: allObjects([]payload.Object{root, body}, "voiceSettings"),
		Memory:   allObjects([]payload.Object{root, body}, "memory", "session", "sessionData"),
	}
	return req
}

func legacySessionID(root, body payload.Object) string {
	sources := []payload.Object{
		root,
		body,
		root.Object("query"),
		root.Object("metadata"),
		body.Object("metadata"),
	}
	for _, o := range sources {
		for _, key := range sessionKeys {
			if id := sessionOrEmpty(o.Identifier(key)); id != "" {
				return id
			}
		}
	}
	return sessionOrEmpty(root.Object("MESSAGE_METADATA").Identifier("sessionId"))
}

func legacyAttachments(root, body payload.Object) []AttachmentRef {
	items := root.Array("attachments")
	if items == nil {
		items = body.Array("attachments")
	}

	var refs []AttachmentRef
	for _, item := range items {
		o, ok := payload.AsObject(item)
		if !ok {
			continue
		}

		mime, data := decodePayload(o.FirstString("data", "payload"))
		ref := AttachmentRef{
			Name:     o.String("name"),
			MimeType: firstNonEmpty(o.FirstString("type", "mimeType"), mime),
			Payload:  data,
		}
		ref.IsScreenshot, _ = o.Bool("isScreenshot")
		if size, ok := o.Int("size"); ok {
			ref.SizeBytes = size
		} else if size, ok := o.Int("sizeBytes"); ok {
			ref.SizeBytes = size
		} else if data != nil {
			ref.SizeBytes = int64(len(data))
		}
		refs = append(refs, ref)
	}
	return refs
}

// decodePayload decodes base64 content with an optional data-URL prefix.
// Undecodable content yields a nil payload.
func decodePayload(s string) (mime string, data []byte) {
	if s == "" {
		return "", nil
	}

	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 {
			return "", nil
		}
		header := s[len("data:"):comma]
		if semi := strings.IndexByte(header, ';'); semi >= 0 {
			mime = header[:semi]
		} else {
			mime = header
		}
		s = s[comma+1:]
	}

	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if decoded, err := enc.DecodeString(s); err == nil && len(decoded) > 0 {
			return mime, decoded
		}
	}
	return mime, nil
}

func userName(o payload.Object) string {
	profile := o.Object("userProfile")
	if given := profile.String("givenName"); given != "" {
		return given
	}
	if fields := strings.Fields(profile.String("name")); len(fields) > 0 {
		return fields[0]
	}
	return o.String("userName")
}

func (n *Normalizer) generateSessionID(at time.Time) string {
	millis := at.UnixMilli()

	n.mu.Lock()
	defer n.mu.Unlock()

	if millis <= n.lastMillis {
		n.seq++
		return fmt.Sprintf("session_%d-%d", n.lastMillis, n.seq)
	}
	n.lastMillis = millis
	n.seq = 0
	return fmt.Sprintf("session_%d", millis)
}

// sessionOrEmpty treats the placeholder "default" as no session
func sessionOrEmpty(id string) string {
	id = strings.TrimSpace(id)
	if id == "default" {
		return ""
	}
	return id
}

func anyTrue(sources []payload.Object, keys ...string) bool {
	for _, o := range sources {
		for _, key := range keys {
			if v, set := o.Bool(key); set && v {
				return true
			}
		}
	}
	return false
}

// allObjects collects the nested objects under keys from every source, in
// source order
func allObjects(sources []payload.Object, keys ...string) []payload.Object {
	var out []payload.Object
	for _, o := range sources {
		for _, key := range keys {
			if nested := o.Object(key); nested != nil {
				out = append(out, nested)
			}
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
