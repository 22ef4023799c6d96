package sessions

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aura-webinar/livepoll/internal/models"
)

const (
	// MinOptions and MaxOptions bound the number of options per question.
	MinOptions = 2
	MaxOptions = 6
)

// ChangeKind identifies a committed mutation.
type ChangeKind string

const (
	ChangeQuestionAdded      ChangeKind = "question_added"
	ChangeQuestionActivated  ChangeKind = "question_activated"
	ChangeParticipantJoined  ChangeKind = "participant_joined"
	ChangeParticipantRemoved ChangeKind = "participant_removed"
	ChangeAnswerRecorded     ChangeKind = "answer_recorded"
)

// Change describes one committed mutation together with the session snapshot taken
// right after it. Only the fields relevant to Kind are set.
type Change struct {
	Kind             ChangeKind
	Code             string
	Session          models.Session
	QuestionIndex    int
	Question         *models.Question
	ParticipantID    string
	ParticipantCount int
	Results          models.Results
}

// Notifier receives committed changes. Notify runs while the session lock is held so
// that changes are observed in commit order; it must not block.
type Notifier interface {
	Notify(Change)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Change)

// Notify calls f(c).
func (f NotifierFunc) Notify(c Change) { f(c) }

// JoinResult is what a joining participant learns about the session.
type JoinResult struct {
	Title                string
	CurrentQuestion      *models.Question
	CurrentQuestionIndex int
	ParticipantCount     int
}

// Manager applies operations to sessions held in a Store, one session lock at a time.
type Manager struct {
	store  *Store
	logger *zap.Logger
	now    func() time.Time

	mu       sync.RWMutex
	notifier Notifier
}

// NewManager creates a manager over store.
func NewManager(store *Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, logger: logger, now: time.Now}
}

// SetNotifier sets the receiver of committed changes (e.g. the broadcast side).
func (m *Manager) SetNotifier(n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifier = n
}

func (m *Manager) getNotifier() Notifier {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.notifier
}

// Count returns the number of live sessions.
func (m *Manager) Count() int { return m.store.Len() }

// Create starts a new empty session and returns its code.
func (m *Manager) Create(title string) (string, error) {
	sess, err := m.store.insert(title, m.now().UTC())
	if err != nil {
		return "", err
	}
	m.logger.Info("session created", zap.String("code", sess.code))
	return sess.code, nil
}

// Get returns a snapshot of the session.
func (m *Manager) Get(code string) (models.Session, error) {
	sess, err := m.lookup(code)
	if err != nil {
		return models.Session{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.snapshotLocked(), nil
}

// AppendQuestion validates q, appends it, makes it the active question and creates its
// zero tally row. It returns the new question's index.
func (m *Manager) AppendQuestion(code string, q models.Question) (int, error) {
	if err := ValidateQuestion(q); err != nil {
		return 0, err
	}
	var index int
	err := m.mutate(code, func(s *Session) (*Change, error) {
		stored := q.Clone()
		s.questions = append(s.questions, stored)
		index = len(s.questions) - 1
		s.cursor = ActiveAt(index)
		s.tallyRowLocked(index)
		added := stored.Clone()
		return &Change{Kind: ChangeQuestionAdded, QuestionIndex: index, Question: &added}, nil
	})
	return index, err
}

// SetActiveQuestion activates an existing question. Its tally is left untouched, so
// re-activating a question keeps the votes it already has.
func (m *Manager) SetActiveQuestion(code string, index int) error {
	return m.mutate(code, func(s *Session) (*Change, error) {
		if index < 0 || index >= len(s.questions) {
			return nil, fmt.Errorf("%w: %d (have %d)", ErrInvalidQuestionIndex, index, len(s.questions))
		}
		s.cursor = ActiveAt(index)
		s.tallyRowLocked(index)
		return &Change{Kind: ChangeQuestionActivated, QuestionIndex: index}, nil
	})
}

// Join registers participantID under name. Joining again with the same id only
// replaces the display name.
func (m *Manager) Join(code, participantID, name string) (JoinResult, error) {
	var res JoinResult
	err := m.mutate(code, func(s *Session) (*Change, error) {
		s.participants[participantID] = models.Participant{DisplayName: name}
		res = JoinResult{
			Title:                s.title,
			CurrentQuestionIndex: s.cursor.Wire(),
			ParticipantCount:     len(s.participants),
		}
		if i, ok := s.cursor.Index(); ok {
			q := s.questions[i].Clone()
			res.CurrentQuestion = &q
		}
		return &Change{
			Kind:             ChangeParticipantJoined,
			ParticipantID:    participantID,
			ParticipantCount: len(s.participants),
		}, nil
	})
	return res, err
}

// RemoveParticipant deletes participantID from the session. It reports false, with no
// change committed, when the participant is not registered.
func (m *Manager) RemoveParticipant(code, participantID string) (bool, error) {
	var removed bool
	err := m.mutate(code, func(s *Session) (*Change, error) {
		if _, ok := s.participants[participantID]; !ok {
			return nil, nil
		}
		delete(s.participants, participantID)
		removed = true
		return &Change{
			Kind:             ChangeParticipantRemoved,
			ParticipantID:    participantID,
			ParticipantCount: len(s.participants),
		}, nil
	})
	return removed, err
}

// RecordAnswer adds one vote for optionIndex on questionIndex. Votes for a question
// other than the active one return ErrStaleAnswer and change nothing.
func (m *Manager) RecordAnswer(code string, questionIndex, optionIndex int) (models.Results, error) {
	var results models.Results
	err := m.mutate(code, func(s *Session) (*Change, error) {
		if !s.cursor.Is(questionIndex) {
			return nil, fmt.Errorf("%w: got %d, active %d", ErrStaleAnswer, questionIndex, s.cursor.Wire())
		}
		row := s.tallyRowLocked(questionIndex)
		if optionIndex < 0 || optionIndex >= len(row) {
			return nil, fmt.Errorf("%w: %d", ErrInvalidOption, optionIndex)
		}
		row[optionIndex]++
		results = s.resultsLocked(questionIndex)
		return &Change{Kind: ChangeAnswerRecorded, QuestionIndex: questionIndex, Results: s.resultsLocked(questionIndex)}, nil
	})
	return results, err
}

// ValidateQuestion checks a question before it is appended.
func ValidateQuestion(q models.Question) error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("%w: text is required", ErrInvalidQuestion)
	}
	if n := len(q.Options); n < MinOptions || n > MaxOptions {
		return fmt.Errorf("%w: need %d-%d options, got %d", ErrInvalidQuestion, MinOptions, MaxOptions, n)
	}
	for i, opt := range q.Options {
		if strings.TrimSpace(opt) == "" {
			return fmt.Errorf("%w: option %d is empty", ErrInvalidQuestion, i)
		}
	}
	if c := q.CorrectOptionIndex; c != nil && (*c < 0 || *c >= len(q.Options)) {
		return fmt.Errorf("%w: correct option %d out of range", ErrInvalidQuestion, *c)
	}
	return nil
}

func (m *Manager) lookup(code string) (*Session, error) {
	sess, ok := m.store.Get(code)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, code)
	}
	return sess, nil
}

// mutate runs fn under the session lock. When fn returns a change, the version is
// bumped and the notifier sees the change before the lock is released.
func (m *Manager) mutate(code string, fn func(*Session) (*Change, error)) error {
	sess, err := m.lookup(code)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	change, err := fn(sess)
	if err != nil || change == nil {
		return err
	}
	sess.version++
	change.Code = sess.code
	change.Session = sess.snapshotLocked()
	if n := m.getNotifier(); n != nil {
		n.Notify(*change)
	}
	return nil
}
