package sessions

import "errors"

var (
	// ErrSessionNotFound is returned for an unknown session code.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidQuestionIndex is returned when activating an index outside the question list.
	ErrInvalidQuestionIndex = errors.New("invalid question index")
	// ErrInvalidQuestion is returned when a submitted question fails validation.
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrStaleAnswer means the answer targeted a question that is not active. Callers drop it silently.
	ErrStaleAnswer = errors.New("answer for inactive question")
	// ErrInvalidOption means the answer named an option the active question does not have.
	ErrInvalidOption = errors.New("invalid option index")
	// ErrCodeExhausted is returned when no unused session code could be generated.
	ErrCodeExhausted = errors.New("could not allocate session code")
)
