package promptdetect

// Kind identifies the shape of a detected interactive prompt.
type Kind string

const (
	KindPressEnter Kind = "press-enter"
	KindConfirm    Kind = "confirm"
	KindChoice     Kind = "choice"
)

// Match is one detected prompt. Text is the last relevant line of the
// detection window, kept for display and audit.
type Match struct {
	Kind Kind
	Text string

	// SafeResponse is the canonical risk-free answer, valid only when
	// HasSafeResponse is set. press-enter uses the empty string, meaning
	// a bare newline is sent.
	SafeResponse    string
	HasSafeResponse bool
}
