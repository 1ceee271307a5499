package stream

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/bytedance/sonic"

	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/reply"
)

// ErrInvalidTransition is returned when encoder calls arrive out of order
var ErrInvalidTransition = errors.New("stream encoder: invalid state transition")

// DefaultChunkSize is the number of characters per content event
const DefaultChunkSize = 100

// State of a streaming encoder
type State int

const (
	NotStarted State = iota
	Began
	StateStreaming
	Ended
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Began:
		return "began"
	case StateStreaming:
		return "streaming"
	case Ended:
		return "ended"
	default:
		return "unknown"
	}
}

// EventSink receives encoded frames: one JSON document per call
type EventSink interface {
	Send(frame []byte) error
}

// Encoder writes one canonical reply to a sink. A streaming encoder moves
// NotStarted -> Began -> Streaming -> Ended and is single use.
type Encoder struct {
	sink      EventSink
	chunkSize int
	state     State
	seq       int
	reply     reply.CanonicalReply
	onEvent   func(eventType string)
}

// NewEncoder creates an encoder. chunkSize <= 0 uses DefaultChunkSize.
func NewEncoder(sink EventSink, chunkSize int) *Encoder {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Encoder{sink: sink, chunkSize: chunkSize}
}

// OnEvent registers a callback invoked after each frame is sent
func (e *Encoder) OnEvent(fn func(eventType string)) {
	e.onEvent = fn
}

// State returns the current state
func (e *Encoder) State() State {
	return e.state
}

// Encode writes r in the given mode
func (e *Encoder) Encode(r reply.CanonicalReply, mode Mode) error {
	if mode == SingleShot {
		return e.WriteSingleShot(r)
	}
	return e.Stream(r)
}

// WriteSingleShot writes r as one legacy JSON object
func (e *Encoder) WriteSingleShot(r reply.CanonicalReply) error {
	if e.state != NotStarted {
		return fmt.Errorf("%w: single-shot write in state %s", ErrInvalidTransition, e.state)
	}
	if err := e.send("single", NewLegacyResponse(r)); err != nil {
		return err
	}
	e.state = Ended
	return nil
}

// Stream writes begin, the display text in chunks, and end
func (e *Encoder) Stream(r reply.CanonicalReply) error {
	if err := e.Begin(r); err != nil {
		return err
	}
	for _, chunk := range Chunk(r.DisplayText, e.chunkSize) {
		if err := e.Content(chunk); err != nil {
			return err
		}
	}
	return e.End()
}

// Begin emits the begin event for r
func (e *Encoder) Begin(r reply.CanonicalReply) error {
	if e.state != NotStarted {
		return fmt.Errorf("%w: begin in state %s", ErrInvalidTransition, e.state)
	}
	e.reply = r
	err := e.send(EventBegin, Event{
		Type:      EventBegin,
		Seq:       e.seq,
		SessionID: r.SessionID,
		Timestamp: formatTimestamp(r.Timestamp),
		Metadata:  metadata(r),
	})
	if err != nil {
		return err
	}
	e.state = Began
	return nil
}

// Content emits one slice of display text
func (e *Encoder) Content(text string) error {
	if e.state != Began && e.state != StateStreaming {
		return fmt.Errorf("%w: content in state %s", ErrInvalidTransition, e.state)
	}
	err := e.send(EventContent, Event{
		Type:      EventContent,
		Seq:       e.seq,
		SessionID: e.reply.SessionID,
		Content:   text,
	})
	if err != nil {
		return err
	}
	e.state = StateStreaming
	return nil
}

// End emits the terminal event carrying the audio. Called straight after
// Begin it passes through Streaming with zero content events.
func (e *Encoder) End() error {
	if e.state != Began && e.state != StateStreaming {
		return fmt.Errorf("%w: end in state %s", ErrInvalidTransition, e.state)
	}
	e.state = StateStreaming

	audio := audioFields(e.reply)
	meta := metadata(e.reply)
	meta.Length = utf8.RuneCountInString(e.reply.DisplayText)
	meta.AudioFields = audio

	err := e.send(EventEnd, Event{
		Type:        EventEnd,
		Seq:         e.seq,
		SessionID:   e.reply.SessionID,
		Timestamp:   formatTimestamp(e.reply.Timestamp),
		AudioFields: audio,
		Metadata:    meta,
	})
	if err != nil {
		return err
	}
	e.state = Ended
	return nil
}

func (e *Encoder) send(eventType string, v interface{}) error {
	frame, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", eventType, err)
	}
	if err := e.sink.Send(frame); err != nil {
		return fmt.Errorf("failed to send %s event: %w", eventType, err)
	}
	e.seq++
	if e.onEvent != nil {
		e.onEvent(eventType)
	}
	return nil
}

// Chunk splits text into slices of at most size characters without breaking
// a UTF-8 sequence. Joining the slices gives back text exactly.
func Chunk(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var chunks []string
	for len(text) > 0 {
		end, count := 0, 0
		for end < len(text) && count < size {
			_, width := utf8.DecodeRuneInString(text[end:])
			end += width
			count++
		}
		chunks = append(chunks, text[:end])
		text = text[end:]
	}
	return chunks
}
