package compose

import (
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/voice"
)

var (
	tagPattern        = regexp.MustCompile(`<(/?)([a-zA-Z][a-zA-Z0-9-]*)(?:\s[^<>]*)?/?>`)
	hiddenPattern     = regexp.MustCompile(`(?is)<(script|style)\b[^>]*>.*?</(script|style)\s*>`)
	commentPattern    = regexp.MustCompile(`(?s)<!--.*?-->`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Tags after which a rendered page would break the line; removing them must
// not glue neighbouring words together
var breakingTags = map[string]bool{
	"br": true, "p": true, "div": true, "li": true, "ul": true, "ol": true,
	"tr": true, "td": true, "th": true, "table": true, "section": true, "article": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"button": true, "form": true, "iframe": true, "hr": true, "blockquote": true,
}

// HasMarkup reports whether text contains a tag-like substring
func HasMarkup(text string) bool {
	return tagPattern.MatchString(text)
}

// SpeechText projects display text onto plain speakable text: unescape
// entities, strip tags, collapse whitespace, trim. Unescaping runs first and
// repeats so that escaped markup cannot survive as real tags.
func SpeechText(display string) string {
	text := display
	for i := 0; i < maxUnescapeRounds; i++ {
		next := stripMarkup(html.UnescapeString(text))
		if next == text {
			break
		}
		text = next
	}
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Bound on nested escaping, e.g. &amp;lt;div&amp;gt;
const maxUnescapeRounds = 3

func stripMarkup(text string) string {
	text = commentPattern.ReplaceAllString(text, " ")
	text = hiddenPattern.ReplaceAllString(text, " ")
	return tagPattern.ReplaceAllStringFunc(text, func(tag string) string {
		m := tagPattern.FindStringSubmatch(tag)
		if breakingTags[strings.ToLower(m[2])] {
			return " "
		}
		return ""
	})
}

// Summarize keeps the first sentence (short) or two (long) of text and
// appends ContinuationNotice when anything was dropped
func Summarize(text string, length voice.SummaryLength) (string, bool) {
	keep := 1
	if length == voice.SummaryLong {
		keep = 2
	}

	ends := sentenceEnds(text)
	if len(ends) <= keep {
		return text, false
	}

	head := strings.TrimSpace(text[:ends[keep-1]])
	return head + " " + ContinuationNotice, true
}

// sentenceEnds returns the byte offsets just past each sentence. A sentence
// ends at a run of '.', '?' or '!' followed by whitespace, or at the end of
// the text.
func sentenceEnds(text string) []int {
	var ends []int
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size
		if !isTerminator(r) {
			continue
		}
		for i < len(text) && isTerminator(rune(text[i])) {
			i++
		}
		if i == len(text) {
			break
		}
		next, _ := utf8.DecodeRuneInString(text[i:])
		if unicode.IsSpace(next) {
			ends = append(ends, i)
		}
	}
	if len(ends) == 0 || strings.TrimSpace(text[ends[len(ends)-1]:]) != "" {
		ends = append(ends, len(text))
	}
	return ends
}

func isTerminator(r rune) bool {
	return r == '.' || r == '?' || r == '!'
}
