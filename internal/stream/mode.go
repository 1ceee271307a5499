package stream

import (
	"regexp"
	"strings"

	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/reply"
)

// Mode is how a reply is delivered to the client
type Mode int

const (
	SingleShot Mode = iota // one JSON object
	Streaming              // NDJSON begin/content/end events
)

func (m Mode) String() string {
	if m == Streaming {
		return "streaming"
	}
	return "single_shot"
}

// DefaultBlockTags are the elements whose presence forces single-shot delivery
var DefaultBlockTags = []string{
	"div", "button", "table", "ul", "ol", "section", "article", "form",
	"p", "h1", "h2", "h3", "h4", "h5", "h6", "iframe",
}

// Selector picks the delivery mode for a reply. Chunking can split block
// markup mid-tag, so replies carrying block elements go out whole.
type Selector struct {
	blockPattern *regexp.Regexp
}

// NewSelector creates a selector for the given block tag names. An empty
// list never forces single-shot delivery.
func NewSelector(tags []string) *Selector {
	var names []string
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			names = append(names, regexp.QuoteMeta(tag))
		}
	}
	if len(names) == 0 {
		return &Selector{}
	}
	return &Selector{
		blockPattern: regexp.MustCompile(`(?i)<(?:` + strings.Join(names, "|") + `)(?:[\s/>])`),
	}
}

// HasBlockMarkup reports whether text contains a block-level opening tag
func (s *Selector) HasBlockMarkup(text string) bool {
	return s.blockPattern != nil && s.blockPattern.MatchString(text)
}

// SelectMode returns Streaming only when the client can stream and the reply
// has no block markup
func (s *Selector) SelectMode(r reply.CanonicalReply, clientStreams bool) Mode {
	if !clientStreams {
		return SingleShot
	}
	if r.HasMarkup && s.HasBlockMarkup(r.DisplayText) {
		return SingleShot
	}
	return Streaming
}
