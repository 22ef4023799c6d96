package sessions

import (
	"sync"
	"time"

	"github.com/aura-webinar/livepoll/internal/models"
)

// Session is the authoritative record of one poll. All fields are guarded by mu;
// only the Manager touches them.
type Session struct {
	mu sync.Mutex

	code         string
	title        string
	createdAt    time.Time
	questions    []models.Question
	cursor       Cursor
	participants map[string]models.Participant
	// tally rows are sized to their question's options when created.
	tally   map[int][]int
	version uint64
}

func newSession(code, title string, createdAt time.Time) *Session {
	return &Session{
		code:         code,
		title:        title,
		createdAt:    createdAt,
		cursor:       NoActiveQuestion(),
		participants: make(map[string]models.Participant),
		tally:        make(map[int][]int),
	}
}

// Code returns the immutable session code.
func (s *Session) Code() string { return s.code }

// snapshotLocked copies the record into its wire form. Caller holds mu.
func (s *Session) snapshotLocked() models.Session {
	snap := models.Session{
		Code:                 s.code,
		Title:                s.title,
		CreatedAt:            s.createdAt,
		Questions:            make([]models.Question, len(s.questions)),
		CurrentQuestionIndex: s.cursor.Wire(),
		Participants:         make(map[string]models.Participant, len(s.participants)),
		Tally:                make(map[int]models.Results, len(s.tally)),
		Version:              s.version,
	}
	for i, q := range s.questions {
		snap.Questions[i] = q.Clone()
	}
	for id, p := range s.participants {
		snap.Participants[id] = p
	}
	for qi := range s.tally {
		snap.Tally[qi] = s.resultsLocked(qi)
	}
	return snap
}

func (s *Session) resultsLocked(questionIndex int) models.Results {
	row := s.tally[questionIndex]
	out := make(models.Results, len(row))
	for opt, n := range row {
		out[opt] = n
	}
	return out
}

// tallyRowLocked returns the row for questionIndex, creating a zero row sized to the
// question's options if it does not exist yet.
func (s *Session) tallyRowLocked(questionIndex int) []int {
	row, ok := s.tally[questionIndex]
	if !ok {
		row = make([]int, len(s.questions[questionIndex].Options))
		s.tally[questionIndex] = row
	}
	return row
}
