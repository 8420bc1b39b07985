package notify

// Priority is the abstract notification priority. Each backend translates it
// into its own native scale; every level has an image on every backend.
type Priority int

const (
	PriorityMin Priority = iota
	PriorityLow
	PriorityDefault
	PriorityHigh
	PriorityUrgent
)

func (p Priority) String() string {
	switch p {
	case PriorityMin:
		return "min"
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "default"
	}
}

// ExpoPriority maps to Expo's three-level priority.
func (p Priority) ExpoPriority() string {
	switch p {
	case PriorityMin, PriorityLow:
		return "normal"
	case PriorityHigh, PriorityUrgent:
		return "high"
	default:
		return "default"
	}
}

// NtfyPriority maps to ntfy's 1-5 scale.
func (p Priority) NtfyPriority() int {
	switch p {
	case PriorityMin:
		return 1
	case PriorityLow:
		return 2
	case PriorityHigh:
		return 4
	case PriorityUrgent:
		return 5
	default:
		return 3
	}
}

// GotifyPriority maps to Gotify's 0-10 scale.
func (p Priority) GotifyPriority() int {
	switch p {
	case PriorityMin:
		return 0
	case PriorityLow:
		return 2
	case PriorityHigh:
		return 8
	case PriorityUrgent:
		return 10
	default:
		return 5
	}
}

// Message is one logical notification, rendered once and fanned out to every
// configured backend.
type Message struct {
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Priority Priority `json:"priority"`
	Tags     []string `json:"tags,omitempty"`
	// City scopes token-addressed delivery to devices subscribed to it.
	City string `json:"city,omitempty"`
}
