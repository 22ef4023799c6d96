package models

import "time"

// Participant is a joined student, keyed by connection id in Session.Participants.
type Participant struct {
	DisplayName string `json:"displayName"`
}

// Results maps option index to vote count for one question.
type Results map[int]int

// Session is the full serialized view of a poll session (the "snapshot").
// CurrentQuestionIndex is -1 when no question is active.
type Session struct {
	Code                 string                 `json:"code"`
	Title                string                 `json:"title"`
	CreatedAt            time.Time              `json:"createdAt"`
	Questions            []Question             `json:"questions"`
	CurrentQuestionIndex int                    `json:"currentQuestionIndex"`
	Participants         map[string]Participant `json:"participants"`
	Tally                map[int]Results        `json:"tally"`
	Version              uint64                 `json:"version"`
}

// CurrentQuestion returns the active question, or nil when none is active.
func (s Session) CurrentQuestion() *Question {
	if s.CurrentQuestionIndex < 0 || s.CurrentQuestionIndex >= len(s.Questions) {
		return nil
	}
	q := s.Questions[s.CurrentQuestionIndex]
	return &q
}
