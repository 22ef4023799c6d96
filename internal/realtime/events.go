package realtime

import "github.com/aura-webinar/livepoll/internal/models"

// Client -> server events.
const (
	EventCreatePoll        = "create_poll"
	EventGetSessionData    = "get_session_data"
	EventSubmitQuestion    = "submit_question"
	EventSetActiveQuestion = "set_active_question"
	EventJoinSession       = "join_session"
	EventSubmitAnswer      = "submit_answer"
	EventRemoveParticipant = "remove_participant"
	EventClaimHost         = "claim_host"
)

// Server -> room events.
const (
	EventNewQuestion        = "new_question"
	EventSessionUpdated     = "session_updated"
	EventParticipantJoined  = "participant_joined"
	EventParticipantRemoved = "participant_removed"
	EventResultsUpdate      = "results_update"
)

type createPollRequest struct {
	Title string `json:"title"`
}

type codeRequest struct {
	Code string `json:"code"`
}

type submitQuestionRequest struct {
	Code     string          `json:"code"`
	Question models.Question `json:"question"`
}

// questionIndex is accepted as an alias of index for older clients.
type setActiveQuestionRequest struct {
	Code          string `json:"code"`
	Index         *int   `json:"index"`
	QuestionIndex *int   `json:"questionIndex"`
}

type joinSessionRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type submitAnswerRequest struct {
	Code          string `json:"code"`
	QuestionIndex *int   `json:"questionIndex"`
	OptionIndex   *int   `json:"optionIndex"`
}

type removeParticipantRequest struct {
	Code          string `json:"code"`
	ParticipantID string `json:"participantId"`
}

type claimHostRequest struct {
	Code  string `json:"code"`
	Token string `json:"token"`
}

// CreatePollResponse answers create_poll. HostToken is set only when host tokens are enabled.
type CreatePollResponse struct {
	Code      string `json:"code"`
	HostToken string `json:"hostToken,omitempty"`
}

// SessionResponse answers get_session_data with either the snapshot or an error.
type SessionResponse struct {
	Session *models.Session `json:"session,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// SuccessResponse is the generic {success, error} reply.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// JoinSessionResponse answers a successful join_session.
type JoinSessionResponse struct {
	Success              bool             `json:"success"`
	Title                string           `json:"title"`
	CurrentQuestion      *models.Question `json:"currentQuestion"`
	CurrentQuestionIndex int              `json:"currentQuestionIndex"`
}

// NewQuestionEvent is broadcast when a question is submitted.
type NewQuestionEvent struct {
	Question      models.Question `json:"question"`
	QuestionIndex int             `json:"questionIndex"`
}

// SessionUpdatedEvent carries the full snapshot after every mutation.
type SessionUpdatedEvent struct {
	Session models.Session `json:"session"`
}

// ParticipantJoinedEvent carries the participant count after a join.
type ParticipantJoinedEvent struct {
	Count int `json:"count"`
}

// ParticipantRemovedEvent names the participant a teacher removed.
type ParticipantRemovedEvent struct {
	ParticipantID string `json:"participantId"`
}

// ResultsUpdateEvent carries the tally of one question after a vote.
type ResultsUpdateEvent struct {
	QuestionIndex int            `json:"questionIndex"`
	Results       models.Results `json:"results"`
}

func failure(err string) SuccessResponse {
	return SuccessResponse{Success: false, Error: err}
}
