package annotate

// Error is the typed error returned by the engine.
type Error struct{ msg string }

func (e *Error) Error() string { return e.msg }

var (
	// ErrMalformedTuple marks a tuple missing a required field. The tuple is skipped.
	ErrMalformedTuple = &Error{"malformed annotation tuple"}
	// ErrInvalidPhrase is returned for empty or whitespace-only phrases.
	ErrInvalidPhrase = &Error{"phrase is empty or whitespace"}
	// ErrDetached is returned when a text node lost its parent before it could be spliced.
	ErrDetached = &Error{"text node is detached"}
	// ErrOutOfRange is returned when a splice range does not fit the text node.
	ErrOutOfRange = &Error{"splice range out of bounds"}
	// ErrMutation wraps a DOM mutation that failed mid-splice.
	ErrMutation = &Error{"dom mutation failed"}
	// ErrBusy is returned when an operation is requested while another is in flight.
	ErrBusy = &Error{"another annotation operation is in progress"}
)
