package flight

// Transition is the direction of a status bit edge.
type Transition uint8

const (
	Entered Transition = iota + 1
	Cleared
)

func (t Transition) String() string {
	switch t {
	case Entered:
		return "entered"
	case Cleared:
		return "cleared"
	default:
		return "unknown"
	}
}

type Event struct {
	Flag       Flag
	Transition Transition
}

func (e Event) String() string {
	return e.Flag.String() + " " + e.Transition.String()
}

// Classifier turns successive status words into edge events. Each flag has
// a latch that starts unset; a rising bit emits Entered once, a falling bit
// emits Cleared once, and repeated values emit nothing.
//
// Classifier is not safe for concurrent use.
type Classifier struct {
	latched [numFlags]bool
}

func NewClassifier() *Classifier {
	return &Classifier{}
}

// Observe compares status against the latches and returns the edges, in
// ascending bit order. Bits beyond the known flags are ignored.
func (c *Classifier) Observe(status uint32) []Event {
	var events []Event
	for i := range c.latched {
		f := Flag(i)
		on := status&f.mask() != 0
		if on == c.latched[i] {
			continue
		}
		c.latched[i] = on
		if on {
			events = append(events, Event{Flag: f, Transition: Entered})
		} else {
			events = append(events, Event{Flag: f, Transition: Cleared})
		}
	}
	return events
}

func (c *Classifier) Latched(f Flag) bool {
	if int(f) >= numFlags {
		return false
	}
	return c.latched[f]
}

// Reset clears every latch, as at session start.
func (c *Classifier) Reset() {
	c.latched = [numFlags]bool{}
}
