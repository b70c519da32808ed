package domain

// DefaultHistoryCapacity bounds a session's message buffer when no explicit
// capacity is configured.
const DefaultHistoryCapacity = 40

// History is an ordered, capacity-bounded buffer of conversation messages.
// Appending beyond capacity evicts the oldest entries first. It is not safe
// for concurrent use; each session serializes access to its own History.
type History struct {
	capacity int
	messages []Message
}

// NewHistory returns an empty history holding at most capacity messages.
// Non-positive capacities fall back to DefaultHistoryCapacity.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &History{capacity: capacity}
}

// Append adds msg at the end of the buffer, then trims from the front until
// the buffer fits its capacity again.
func (h *History) Append(msg Message) {
	h.messages = append(h.messages, msg)
	if overflow := len(h.messages) - h.capacity; overflow > 0 {
		h.messages = append(h.messages[:0], h.messages[overflow:]...)
	}
}

// Snapshot returns a copy of the buffered messages, oldest first.
func (h *History) Snapshot() []Message {
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Reset discards every buffered message. Capacity is unchanged.
func (h *History) Reset() {
	h.messages = h.messages[:0]
}

func (h *History) Len() int {
	return len(h.messages)
}

func (h *History) Capacity() int {
	return h.capacity
}
