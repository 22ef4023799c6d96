package models

// Question is a multiple-choice question asked in a session.
// It is immutable once appended to a session.
type Question struct {
	Text               string   `json:"text"`
	Options            []string `json:"options"`
	CorrectOptionIndex *int     `json:"correctOptionIndex"`
}

// Clone returns a deep copy so snapshots never alias session state.
func (q Question) Clone() Question {
	out := Question{Text: q.Text}
	if q.Options != nil {
		out.Options = append([]string(nil), q.Options...)
	}
	if q.CorrectOptionIndex != nil {
		idx := *q.CorrectOptionIndex
		out.CorrectOptionIndex = &idx
	}
	return out
}
