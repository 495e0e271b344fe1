package stream

import "iter"

// Event is one provider event after adapter translation. Part is nil when the
// adapter has no canonical translation for the event; Native keeps the
// provider value so it can be surfaced as a raw part on request.
type Event struct {
	Part   Part
	Native any
}

// EventSource is the lazily evaluated event sequence returned by a provider
// adapter. A non-nil error terminates the sequence.
type EventSource = iter.Seq2[Event, error]

// FromParts returns an EventSource that yields the given parts in order.
func FromParts(parts ...Part) EventSource {
	return func(yield func(Event, error) bool) {
		for _, p := range parts {
			if !yield(Event{Part: p}, nil) {
				return
			}
		}
	}
}

// FromEvents returns an EventSource that yields the given events, followed by err
// if it is non-nil.
func FromEvents(events []Event, err error) EventSource {
	return func(yield func(Event, error) bool) {
		for _, ev := range events {
			if !yield(ev, nil) {
				return
			}
		}

		if err != nil {
			yield(Event{}, err)
		}
	}
}

// Collect drains a part sequence into a slice.
func Collect(seq iter.Seq[Part]) []Part {
	var parts []Part
	for p := range seq {
		parts = append(parts, p)
	}

	return parts
}
