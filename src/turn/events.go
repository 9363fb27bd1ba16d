package turn

// EventType represents the type of a run stream event.
type EventType string

const (
	// EventToken carries an incremental text delta from the model.
	EventToken EventType = "token"
	// EventSnapshot marks a durable checkpoint write; the transport layer
	// enriches it with the full thread snapshot.
	EventSnapshot EventType = "snapshot"
	// EventInterrupt carries a pending-approval payload.
	EventInterrupt EventType = "interrupt"
	// EventError terminates the stream with a fatal turn failure.
	EventError EventType = "error"
)

// Event is one element of a run's event stream.
type Event struct {
	Type      EventType `json:"type"`
	MessageID string    `json:"message_id,omitempty"`
	Text      string    `json:"text,omitempty"`
	Error     string    `json:"error,omitempty"`
	Payload   any       `json:"payload,omitempty"`
}

// EventSink receives run events in emission order.
type EventSink interface {
	Emit(Event)
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(Event)

// Emit implements EventSink.
func (f EventSinkFunc) Emit(e Event) { f(e) }

// NopSink discards all events.
var NopSink EventSink = EventSinkFunc(func(Event) {})

// ChannelEventSink forwards events to a buffered channel, dropping nothing;
// Emit blocks when the consumer falls behind.
type ChannelEventSink struct {
	ch chan Event
}

// NewChannelEventSink creates a channel-backed sink.
func NewChannelEventSink(buffer int) *ChannelEventSink {
	return &ChannelEventSink{ch: make(chan Event, buffer)}
}

// Emit implements EventSink.
func (s *ChannelEventSink) Emit(e Event) { s.ch <- e }

// Events returns the receive side of the sink.
func (s *ChannelEventSink) Events() <-chan Event { return s.ch }

// Close closes the channel; call only after the producer has finished.
func (s *ChannelEventSink) Close() { close(s.ch) }
