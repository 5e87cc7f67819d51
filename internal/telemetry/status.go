package telemetry

type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Class names the anomaly behind a Status.
type Class string

const (
	ClassNone              Class = ""
	ClassLinkUnavailable   Class = "link_unavailable"
	ClassLinkLost          Class = "link_lost"
	ClassLinkUp            Class = "link_up"
	ClassMalformedFrame    Class = "malformed_frame"
	ClassChecksumError     Class = "checksum_error"
	ClassMalformedSentence Class = "malformed_sentence"
	ClassBufferOverrun     Class = "buffer_overrun"
	ClassChannelOverflow   Class = "channel_overflow"
)

// Status is a user-facing notification about a link or protocol anomaly.
type Status struct {
	Severity Severity `json:"severity"`
	Class    Class    `json:"class,omitempty"`
	Text     string   `json:"text"`
}

func (Status) Kind() Kind { return KindStatus }

// IsWarning mirrors the display's single "warning" flag.
func (s Status) IsWarning() bool {
	return s.Severity >= SeverityWarning
}

// ConnState is a connector's link state.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	// StateFaulted means the last open attempt failed; a retry is pending.
	StateFaulted
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}
