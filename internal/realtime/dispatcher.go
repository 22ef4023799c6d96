package realtime

import (
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/aura-webinar/livepoll/internal/sessions"
)

const (
	msgSessionNotFound = "Session not found"
	msgInvalidIndex    = "Invalid question index"
	msgBadRequest      = "Malformed request"
	msgNotHost         = "Only the session host can do that"
	msgInternal        = "Internal error"
)

var errNotHost = errors.New("connection is not the session host")

// HostTokens issues and verifies host tokens for a session code.
type HostTokens interface {
	Issue(code string) (string, error)
	Verify(token, code string) error
}

// Router is the part of the hub the dispatcher needs.
type Router interface {
	Join(code string, c *Client)
	LeaveAll(c *Client)
	BroadcastToRoom(code, event string, payload interface{})
}

// DispatcherOptions configures optional role hardening.
type DispatcherOptions struct {
	// Tokens enables host tokens on create_poll and the claim_host event.
	Tokens HostTokens
	// EnforceHostRole rejects teacher events from connections not bound as host.
	EnforceHostRole bool
}

// Dispatcher routes inbound events to the session manager and turns committed
// changes into room broadcasts. It keeps no session state of its own.
type Dispatcher struct {
	sessions *sessions.Manager
	router   Router
	logger   *zap.Logger
	opts     DispatcherOptions

	mu sync.Mutex
	// code -> client ids bound as host
	hosts map[string]map[string]struct{}
}

// NewDispatcher wires a dispatcher to mgr and registers it as mgr's notifier.
func NewDispatcher(mgr *sessions.Manager, router Router, logger *zap.Logger, opts DispatcherOptions) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		sessions: mgr,
		router:   router,
		logger:   logger,
		opts:     opts,
		hosts:    make(map[string]map[string]struct{}),
	}
	mgr.SetNotifier(d)
	return d
}

// Handle processes one inbound event and returns the reply for request-style events
// (nil for fire-and-forget ones). It never panics into the transport.
func (d *Dispatcher) Handle(c *Client, event string, data json.RawMessage) (reply interface{}) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event handler panic", zap.String("event", event), zap.String("client_id", c.ID), zap.Any("panic", r))
			reply = failure(msgInternal)
		}
	}()

	d.logger.Debug("event", zap.String("event", event), zap.String("client_id", c.ID))
	switch event {
	case EventCreatePoll:
		return d.createPoll(c, data)
	case EventGetSessionData:
		return d.getSessionData(data)
	case EventSubmitQuestion:
		return d.submitQuestion(c, data)
	case EventSetActiveQuestion:
		return d.setActiveQuestion(c, data)
	case EventJoinSession:
		return d.joinSession(c, data)
	case EventSubmitAnswer:
		d.submitAnswer(c, data)
	case EventRemoveParticipant:
		d.removeParticipant(c, data)
	case EventClaimHost:
		return d.claimHost(c, data)
	default:
		d.logger.Debug("unknown event", zap.String("event", event))
	}
	return nil
}

// Disconnect drops the client from every room and host binding. Session state,
// including the participant entry, is kept.
func (d *Dispatcher) Disconnect(c *Client) {
	d.router.LeaveAll(c)
	d.mu.Lock()
	for code, ids := range d.hosts {
		delete(ids, c.ID)
		if len(ids) == 0 {
			delete(d.hosts, code)
		}
	}
	d.mu.Unlock()
}

// Notify broadcasts a committed change: the narrow delta first, then the full snapshot.
func (d *Dispatcher) Notify(ch sessions.Change) {
	switch ch.Kind {
	case sessions.ChangeQuestionAdded:
		if ch.Question != nil {
			d.router.BroadcastToRoom(ch.Code, EventNewQuestion, NewQuestionEvent{Question: *ch.Question, QuestionIndex: ch.QuestionIndex})
		}
	case sessions.ChangeParticipantJoined:
		d.router.BroadcastToRoom(ch.Code, EventParticipantJoined, ParticipantJoinedEvent{Count: ch.ParticipantCount})
	case sessions.ChangeParticipantRemoved:
		d.router.BroadcastToRoom(ch.Code, EventParticipantRemoved, ParticipantRemovedEvent{ParticipantID: ch.ParticipantID})
	case sessions.ChangeAnswerRecorded:
		d.router.BroadcastToRoom(ch.Code, EventResultsUpdate, ResultsUpdateEvent{QuestionIndex: ch.QuestionIndex, Results: ch.Results})
	}
	d.router.BroadcastToRoom(ch.Code, EventSessionUpdated, SessionUpdatedEvent{Session: ch.Session})
}

func (d *Dispatcher) createPoll(c *Client, data json.RawMessage) interface{} {
	var req createPollRequest
	if !d.decode(data, &req) {
		return failure(msgBadRequest)
	}
	code, err := d.sessions.Create(req.Title)
	if err != nil {
		d.logger.Error("create session", zap.Error(err))
		return failure(msgInternal)
	}
	d.router.Join(code, c)
	d.bindHost(code, c)

	resp := CreatePollResponse{Code: code}
	if d.opts.Tokens != nil {
		token, err := d.opts.Tokens.Issue(code)
		if err != nil {
			d.logger.Error("issue host token", zap.String("code", code), zap.Error(err))
		} else {
			resp.HostToken = token
		}
	}
	return resp
}

func (d *Dispatcher) getSessionData(data json.RawMessage) interface{} {
	var req codeRequest
	if !d.decode(data, &req) {
		return SessionResponse{Error: msgBadRequest}
	}
	snap, err := d.sessions.Get(sessions.NormalizeCode(req.Code))
	if err != nil {
		return SessionResponse{Error: msgSessionNotFound}
	}
	return SessionResponse{Session: &snap}
}

func (d *Dispatcher) submitQuestion(c *Client, data json.RawMessage) interface{} {
	var req submitQuestionRequest
	if !d.decode(data, &req) {
		return failure(msgBadRequest)
	}
	code := sessions.NormalizeCode(req.Code)
	if err := d.requireHost(code, c); err != nil {
		return failure(msgNotHost)
	}
	if _, err := d.sessions.AppendQuestion(code, req.Question); err != nil {
		return failure(errorMessage(err))
	}
	return SuccessResponse{Success: true}
}

func (d *Dispatcher) setActiveQuestion(c *Client, data json.RawMessage) interface{} {
	var req setActiveQuestionRequest
	if !d.decode(data, &req) {
		return failure(msgBadRequest)
	}
	index := req.Index
	if index == nil {
		index = req.QuestionIndex
	}
	if index == nil {
		return failure(msgInvalidIndex)
	}
	code := sessions.NormalizeCode(req.Code)
	if err := d.requireHost(code, c); err != nil {
		return failure(msgNotHost)
	}
	if err := d.sessions.SetActiveQuestion(code, *index); err != nil {
		return failure(errorMessage(err))
	}
	return SuccessResponse{Success: true}
}

func (d *Dispatcher) joinSession(c *Client, data json.RawMessage) interface{} {
	var req joinSessionRequest
	if !d.decode(data, &req) {
		return failure(msgBadRequest)
	}
	code := sessions.NormalizeCode(req.Code)
	if _, err := d.sessions.Get(code); err != nil {
		return failure(msgSessionNotFound)
	}
	// Subscribe first so the joiner also receives the broadcasts its join triggers.
	d.router.Join(code, c)
	res, err := d.sessions.Join(code, c.ID, req.Name)
	if err != nil {
		return failure(errorMessage(err))
	}
	return JoinSessionResponse{
		Success:              true,
		Title:                res.Title,
		CurrentQuestion:      res.CurrentQuestion,
		CurrentQuestionIndex: res.CurrentQuestionIndex,
	}
}

func (d *Dispatcher) submitAnswer(c *Client, data json.RawMessage) {
	var req submitAnswerRequest
	if !d.decode(data, &req) || req.QuestionIndex == nil || req.OptionIndex == nil {
		return
	}
	_, err := d.sessions.RecordAnswer(sessions.NormalizeCode(req.Code), *req.QuestionIndex, *req.OptionIndex)
	if err != nil {
		d.logger.Debug("answer dropped", zap.String("client_id", c.ID), zap.Error(err))
	}
}

func (d *Dispatcher) removeParticipant(c *Client, data json.RawMessage) {
	var req removeParticipantRequest
	if !d.decode(data, &req) {
		return
	}
	code := sessions.NormalizeCode(req.Code)
	if err := d.requireHost(code, c); err != nil {
		d.logger.Debug("remove participant rejected", zap.String("client_id", c.ID), zap.Error(err))
		return
	}
	removed, err := d.sessions.RemoveParticipant(code, req.ParticipantID)
	if err != nil {
		d.logger.Debug("remove participant dropped", zap.String("code", code), zap.Error(err))
		return
	}
	if removed {
		d.logger.Info("participant removed", zap.String("code", code), zap.String("participant_id", req.ParticipantID))
	}
}

func (d *Dispatcher) claimHost(c *Client, data json.RawMessage) interface{} {
	var req claimHostRequest
	if !d.decode(data, &req) {
		return failure(msgBadRequest)
	}
	if d.opts.Tokens == nil {
		return failure("Host tokens are disabled")
	}
	code := sessions.NormalizeCode(req.Code)
	if _, err := d.sessions.Get(code); err != nil {
		return failure(msgSessionNotFound)
	}
	if err := d.opts.Tokens.Verify(req.Token, code); err != nil {
		d.logger.Info("host claim rejected", zap.String("code", code), zap.String("client_id", c.ID), zap.Error(err))
		return failure("Invalid host token")
	}
	d.router.Join(code, c)
	d.bindHost(code, c)
	return SuccessResponse{Success: true}
}

func (d *Dispatcher) bindHost(code string, c *Client) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := d.hosts[code]
	if ids == nil {
		ids = make(map[string]struct{})
		d.hosts[code] = ids
	}
	ids[c.ID] = struct{}{}
}

func (d *Dispatcher) requireHost(code string, c *Client) error {
	if !d.opts.EnforceHostRole {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.hosts[code][c.ID]; !ok {
		return errNotHost
	}
	return nil
}

func (d *Dispatcher) decode(data json.RawMessage, v interface{}) bool {
	if len(data) == 0 {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		d.logger.Debug("decode payload", zap.Error(err))
		return false
	}
	return true
}

// errorMessage maps manager errors to the text sent back to the caller.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, sessions.ErrSessionNotFound):
		return msgSessionNotFound
	case errors.Is(err, sessions.ErrInvalidQuestionIndex):
		return msgInvalidIndex
	case errors.Is(err, sessions.ErrInvalidQuestion):
		return err.Error()
	default:
		return msgInternal
	}
}

var _ sessions.Notifier = (*Dispatcher)(nil)
