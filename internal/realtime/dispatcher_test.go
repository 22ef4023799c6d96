package realtime

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-webinar/livepoll/internal/auth"
	"github.com/aura-webinar/livepoll/internal/models"
	"github.com/aura-webinar/livepoll/internal/sessions"
)

type dispatcherFixture struct {
	d   *Dispatcher
	hub *Hub
	mgr *sessions.Manager
}

func newFixture(t *testing.T, opts DispatcherOptions) *dispatcherFixture {
	t.Helper()
	mgr := sessions.NewManager(sessions.NewStore(), nil)
	hub := NewHub(nil, nil)
	return &dispatcherFixture{d: NewDispatcher(mgr, hub, nil, opts), hub: hub, mgr: mgr}
}

func (f *dispatcherFixture) createPoll(t *testing.T, c *Client, title string) CreatePollResponse {
	t.Helper()
	reply := f.d.Handle(c, EventCreatePoll, rawJSON(t, map[string]string{"title": title}))
	resp, ok := reply.(CreatePollResponse)
	require.True(t, ok, "reply %#v", reply)
	require.True(t, sessions.ValidCode(resp.Code))
	return resp
}

func mathQuestionPayload(code string) map[string]interface{} {
	return map[string]interface{}{
		"code": code,
		"question": map[string]interface{}{
			"text":               "2+2?",
			"options":            []string{"3", "4", "5"},
			"correctOptionIndex": 1,
		},
	}
}

func TestDispatcher_QuizScenario(t *testing.T) {
	f := newFixture(t, DispatcherOptions{})
	teacher := testClient("teacher", 64)
	s1, s2 := testClient("s1", 64), testClient("s2", 64)

	code := f.createPoll(t, teacher, "Quiz").Code
	assert.Equal(t, 1, f.hub.RoomSize(code), "creator joins the room")
	assert.Empty(t, drain(teacher), "create_poll replies only")

	reply := f.d.Handle(teacher, EventSubmitQuestion, rawJSON(t, mathQuestionPayload(code)))
	assert.Equal(t, SuccessResponse{Success: true}, reply)

	msgs := drain(teacher)
	require.Equal(t, []string{EventNewQuestion, EventSessionUpdated}, eventNames(msgs))
	assert.JSONEq(t, `{"question":{"text":"2+2?","options":["3","4","5"],"correctOptionIndex":1},"questionIndex":0}`, string(msgs[0].Data))
	updated := decodeData[SessionUpdatedEvent](t, msgs[1])
	assert.Equal(t, 0, updated.Session.CurrentQuestionIndex)
	assert.Equal(t, models.Results{0: 0, 1: 0, 2: 0}, updated.Session.Tally[0])

	for i, s := range []*Client{s1, s2} {
		reply := f.d.Handle(s, EventJoinSession, rawJSON(t, map[string]string{"code": code, "name": s.ID}))
		join, ok := reply.(JoinSessionResponse)
		require.True(t, ok, "reply %#v", reply)
		assert.True(t, join.Success)
		assert.Equal(t, "Quiz", join.Title)
		assert.Equal(t, 0, join.CurrentQuestionIndex)
		require.NotNil(t, join.CurrentQuestion)
		assert.Equal(t, "2+2?", join.CurrentQuestion.Text)

		msgs := drain(teacher)
		require.Equal(t, []string{EventParticipantJoined, EventSessionUpdated}, eventNames(msgs))
		assert.Equal(t, i+1, decodeData[ParticipantJoinedEvent](t, msgs[0]).Count)
	}
	assert.Equal(t, []string{EventParticipantJoined, EventSessionUpdated, EventParticipantJoined, EventSessionUpdated},
		eventNames(drain(s1)), "joiner receives its own join broadcast")
	drain(s2)

	for _, s := range []*Client{s1, s2} {
		reply := f.d.Handle(s, EventSubmitAnswer, rawJSON(t, map[string]int{"questionIndex": 0, "optionIndex": 1}))
		assert.Nil(t, reply, "missing code is dropped")
		reply = f.d.Handle(s, EventSubmitAnswer, rawJSON(t, map[string]interface{}{"code": code, "questionIndex": 0, "optionIndex": 1}))
		assert.Nil(t, reply)
	}

	msgs = drain(teacher)
	require.Equal(t, []string{EventResultsUpdate, EventSessionUpdated, EventResultsUpdate, EventSessionUpdated}, eventNames(msgs))
	assert.JSONEq(t, `{"questionIndex":0,"results":{"0":0,"1":2,"2":0}}`, string(msgs[2].Data))
	final := decodeData[SessionUpdatedEvent](t, msgs[3]).Session
	assert.Equal(t, models.Results{0: 0, 1: 2, 2: 0}, final.Tally[0])
	assert.Len(t, final.Participants, 2)
	assert.Len(t, drain(s1), 4, "students see live results too")
}

func TestDispatcher_StaleAnswerAfterAdvance(t *testing.T) {
	f := newFixture(t, DispatcherOptions{})
	teacher, student := testClient("teacher", 64), testClient("student", 64)
	code := f.createPoll(t, teacher, "Quiz").Code

	f.d.Handle(teacher, EventSubmitQuestion, rawJSON(t, mathQuestionPayload(code)))
	second := map[string]interface{}{
		"code":     code,
		"question": map[string]interface{}{"text": "Sky?", "options": []string{"blue", "green"}},
	}
	f.d.Handle(teacher, EventSubmitQuestion, rawJSON(t, second))
	f.d.Handle(student, EventJoinSession, rawJSON(t, map[string]string{"code": code, "name": "Ann"}))

	reply := f.d.Handle(teacher, EventSetActiveQuestion, rawJSON(t, map[string]interface{}{"code": code, "index": 1}))
	assert.Equal(t, SuccessResponse{Success: true}, reply)
	drain(teacher)
	drain(student)

	reply = f.d.Handle(student, EventSubmitAnswer, rawJSON(t, map[string]interface{}{"code": code, "questionIndex": 0, "optionIndex": 1}))
	assert.Nil(t, reply, "no error reaches the student")
	assert.Empty(t, drain(teacher), "stale answers broadcast nothing")
	assert.Empty(t, drain(student))

	snap, err := f.mgr.Get(code)
	require.NoError(t, err)
	assert.Equal(t, models.Results{0: 0, 1: 0, 2: 0}, snap.Tally[0])
}

func TestDispatcher_SetActiveQuestion(t *testing.T) {
	f := newFixture(t, DispatcherOptions{})
	teacher := testClient("teacher", 64)
	code := f.createPoll(t, teacher, "Quiz").Code
	f.d.Handle(teacher, EventSubmitQuestion, rawJSON(t, mathQuestionPayload(code)))
	f.d.Handle(teacher, EventSubmitQuestion, rawJSON(t, mathQuestionPayload(code)))
	drain(teacher)

	reply := f.d.Handle(teacher, EventSetActiveQuestion, rawJSON(t, map[string]interface{}{"code": code, "index": 5}))
	assert.Equal(t, SuccessResponse{Success: false, Error: msgInvalidIndex}, reply)
	reply = f.d.Handle(teacher, EventSetActiveQuestion, rawJSON(t, map[string]interface{}{"code": code}))
	assert.Equal(t, SuccessResponse{Success: false, Error: msgInvalidIndex}, reply)
	assert.Empty(t, drain(teacher), "errors go to the caller only")

	reply = f.d.Handle(teacher, EventSetActiveQuestion, rawJSON(t, map[string]interface{}{"code": code, "questionIndex": 0}))
	assert.Equal(t, SuccessResponse{Success: true}, reply)
	msgs := drain(teacher)
	require.Equal(t, []string{EventSessionUpdated}, eventNames(msgs))
	assert.Equal(t, 0, decodeData[SessionUpdatedEvent](t, msgs[0]).Session.CurrentQuestionIndex)

	reply = f.d.Handle(teacher, EventSetActiveQuestion, rawJSON(t, map[string]interface{}{"code": "NOPE00", "index": 0}))
	assert.Equal(t, SuccessResponse{Success: false, Error: msgSessionNotFound}, reply)
}

func TestDispatcher_SubmitQuestionErrors(t *testing.T) {
	f := newFixture(t, DispatcherOptions{})
	teacher := testClient("teacher", 64)
	code := f.createPoll(t, teacher, "Quiz").Code

	reply := f.d.Handle(teacher, EventSubmitQuestion, rawJSON(t, mathQuestionPayload("NOPE00")))
	assert.Equal(t, SuccessResponse{Success: false, Error: msgSessionNotFound}, reply)

	bad := map[string]interface{}{
		"code":     code,
		"question": map[string]interface{}{"text": "only one", "options": []string{"a"}},
	}
	reply = f.d.Handle(teacher, EventSubmitQuestion, rawJSON(t, bad))
	resp, ok := reply.(SuccessResponse)
	require.True(t, ok)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "invalid question")
	assert.Empty(t, drain(teacher))
}

func TestDispatcher_JoinUnknownCode(t *testing.T) {
	f := newFixture(t, DispatcherOptions{})
	teacher, student := testClient("teacher", 64), testClient("student", 64)
	code := f.createPoll(t, teacher, "Quiz").Code

	reply := f.d.Handle(student, EventJoinSession, rawJSON(t, map[string]string{"code": "NOPE00", "name": "Ann"}))
	assert.Equal(t, SuccessResponse{Success: false, Error: msgSessionNotFound}, reply)
	assert.Equal(t, 0, f.hub.RoomSize("NOPE00"))
	assert.Empty(t, drain(teacher))

	snap, err := f.mgr.Get(code)
	require.NoError(t, err)
	assert.Empty(t, snap.Participants)
	assert.Equal(t, 1, f.mgr.Count())
}

func TestDispatcher_JoinNormalizesCode(t *testing.T) {
	f := newFixture(t, DispatcherOptions{})
	teacher, student := testClient("teacher", 64), testClient("student", 64)
	code := f.createPoll(t, teacher, "Quiz").Code

	reply := f.d.Handle(student, EventJoinSession, rawJSON(t, map[string]string{"code": " " + strings.ToLower(code) + " ", "name": "Ann"}))
	join, ok := reply.(JoinSessionResponse)
	require.True(t, ok, "reply %#v", reply)
	assert.True(t, join.Success)
	assert.Nil(t, join.CurrentQuestion)
	assert.Equal(t, -1, join.CurrentQuestionIndex)
}

func TestDispatcher_RejoinUpdatesName(t *testing.T) {
	f := newFixture(t, DispatcherOptions{})
	teacher, student := testClient("teacher", 64), testClient("student", 64)
	code := f.createPoll(t, teacher, "Quiz").Code

	f.d.Handle(student, EventJoinSession, rawJSON(t, map[string]string{"code": code, "name": "Ann"}))
	f.d.Handle(student, EventJoinSession, rawJSON(t, map[string]string{"code": code, "name": "Annie"}))

	msgs := drain(teacher)
	require.Len(t, msgs, 4)
	assert.Equal(t, 1, decodeData[ParticipantJoinedEvent](t, msgs[2]).Count)
	snap := decodeData[SessionUpdatedEvent](t, msgs[3]).Session
	assert.Equal(t, map[string]models.Participant{"student": {DisplayName: "Annie"}}, snap.Participants)
}

func TestDispatcher_GetSessionData(t *testing.T) {
	f := newFixture(t, DispatcherOptions{})
	teacher, other := testClient("teacher", 64), testClient("other", 64)
	code := f.createPoll(t, teacher, "Quiz").Code

	reply := f.d.Handle(other, EventGetSessionData, rawJSON(t, map[string]string{"code": code}))
	resp, ok := reply.(SessionResponse)
	require.True(t, ok)
	require.NotNil(t, resp.Session)
	assert.Equal(t, "Quiz", resp.Session.Title)
	assert.Equal(t, -1, resp.Session.CurrentQuestionIndex)
	assert.Equal(t, 1, f.hub.RoomSize(code), "reading does not subscribe")

	reply = f.d.Handle(other, EventGetSessionData, rawJSON(t, map[string]string{"code": "NOPE00"}))
	assert.Equal(t, SessionResponse{Error: msgSessionNotFound}, reply)

	b, err := json.Marshal(reply)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"Session not found"}`, string(b))
}

func TestDispatcher_RemoveParticipant(t *testing.T) {
	f := newFixture(t, DispatcherOptions{})
	teacher, student := testClient("teacher", 64), testClient("student", 64)
	code := f.createPoll(t, teacher, "Quiz").Code
	f.d.Handle(student, EventJoinSession, rawJSON(t, map[string]string{"code": code, "name": "Ann"}))
	drain(teacher)
	drain(student)

	reply := f.d.Handle(teacher, EventRemoveParticipant, rawJSON(t, map[string]string{"code": code, "participantId": "student"}))
	assert.Nil(t, reply)

	msgs := drain(teacher)
	require.Equal(t, []string{EventParticipantRemoved, EventSessionUpdated}, eventNames(msgs))
	assert.JSONEq(t, `{"participantId":"student"}`, string(msgs[0].Data))
	assert.Empty(t, decodeData[SessionUpdatedEvent](t, msgs[1]).Session.Participants)
	assert.Len(t, drain(student), 2, "removed participant still hears the room until it disconnects")

	f.d.Handle(teacher, EventRemoveParticipant, rawJSON(t, map[string]string{"code": code, "participantId": "student"}))
	f.d.Handle(teacher, EventRemoveParticipant, rawJSON(t, map[string]string{"code": "NOPE00", "participantId": "student"}))
	assert.Empty(t, drain(teacher), "absent participant or unknown session broadcasts nothing")
}

func TestDispatcher_DisconnectKeepsParticipant(t *testing.T) {
	f := newFixture(t, DispatcherOptions{})
	teacher, student := testClient("teacher", 64), testClient("student", 64)
	code := f.createPoll(t, teacher, "Quiz").Code
	f.d.Handle(student, EventJoinSession, rawJSON(t, map[string]string{"code": code, "name": "Ann"}))
	drain(teacher)

	f.d.Disconnect(student)

	assert.Equal(t, 1, f.hub.RoomSize(code))
	assert.Empty(t, drain(teacher), "disconnect broadcasts nothing")
	snap, err := f.mgr.Get(code)
	require.NoError(t, err)
	assert.Contains(t, snap.Participants, "student")
}

func TestDispatcher_MalformedPayloads(t *testing.T) {
	f := newFixture(t, DispatcherOptions{})
	c := testClient("c", 64)

	bad := json.RawMessage(`{not json`)
	assert.Equal(t, failure(msgBadRequest), f.d.Handle(c, EventCreatePoll, bad))
	assert.Equal(t, failure(msgBadRequest), f.d.Handle(c, EventJoinSession, nil))
	assert.Equal(t, failure(msgBadRequest), f.d.Handle(c, EventSubmitQuestion, bad))
	assert.Equal(t, failure(msgBadRequest), f.d.Handle(c, EventSetActiveQuestion, bad))
	assert.Equal(t, SessionResponse{Error: msgBadRequest}, f.d.Handle(c, EventGetSessionData, bad))
	assert.Nil(t, f.d.Handle(c, EventSubmitAnswer, bad))
	assert.Nil(t, f.d.Handle(c, EventRemoveParticipant, bad))
	assert.Nil(t, f.d.Handle(c, "no_such_event", bad))
	assert.Equal(t, 0, f.mgr.Count())
}

type panicRouter struct{ *Hub }

func (panicRouter) Join(string, *Client) { panic("boom") }

func TestDispatcher_RecoversFromPanic(t *testing.T) {
	mgr := sessions.NewManager(sessions.NewStore(), nil)
	d := NewDispatcher(mgr, panicRouter{NewHub(nil, nil)}, nil, DispatcherOptions{})
	c := testClient("c", 8)

	reply := d.Handle(c, EventCreatePoll, rawJSON(t, map[string]string{"title": "Quiz"}))
	assert.Equal(t, failure(msgInternal), reply)
}

func TestDispatcher_SnapshotVersionIncreases(t *testing.T) {
	f := newFixture(t, DispatcherOptions{})
	teacher, student := testClient("teacher", 128), testClient("student", 64)
	code := f.createPoll(t, teacher, "Quiz").Code

	f.d.Handle(teacher, EventSubmitQuestion, rawJSON(t, mathQuestionPayload(code)))
	f.d.Handle(student, EventJoinSession, rawJSON(t, map[string]string{"code": code, "name": "Ann"}))
	f.d.Handle(student, EventSubmitAnswer, rawJSON(t, map[string]interface{}{"code": code, "questionIndex": 0, "optionIndex": 0}))
	f.d.Handle(teacher, EventSetActiveQuestion, rawJSON(t, map[string]interface{}{"code": code, "index": 0}))
	f.d.Handle(teacher, EventRemoveParticipant, rawJSON(t, map[string]string{"code": code, "participantId": "student"}))

	var versions []uint64
	for _, m := range drain(teacher) {
		if m.Event == EventSessionUpdated {
			versions = append(versions, decodeData[SessionUpdatedEvent](t, m).Session.Version)
		}
	}
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, versions, "one full snapshot per mutation")
}

func TestDispatcher_HostTokens(t *testing.T) {
	tokens := auth.NewHostTokenService("secret", 1)
	f := newFixture(t, DispatcherOptions{Tokens: tokens, EnforceHostRole: true})
	teacher, intruder, reconnect := testClient("teacher", 64), testClient("intruder", 64), testClient("reconnect", 64)

	created := f.createPoll(t, teacher, "Quiz")
	code := created.Code
	require.NotEmpty(t, created.HostToken)

	reply := f.d.Handle(intruder, EventSubmitQuestion, rawJSON(t, mathQuestionPayload(code)))
	assert.Equal(t, failure(msgNotHost), reply)
	reply = f.d.Handle(intruder, EventSetActiveQuestion, rawJSON(t, map[string]interface{}{"code": code, "index": 0}))
	assert.Equal(t, failure(msgNotHost), reply)

	reply = f.d.Handle(teacher, EventSubmitQuestion, rawJSON(t, mathQuestionPayload(code)))
	assert.Equal(t, SuccessResponse{Success: true}, reply)

	f.d.Handle(intruder, EventJoinSession, rawJSON(t, map[string]string{"code": code, "name": "Eve"}))
	f.d.Handle(intruder, EventRemoveParticipant, rawJSON(t, map[string]string{"code": code, "participantId": "intruder"}))
	snap, err := f.mgr.Get(code)
	require.NoError(t, err)
	assert.Contains(t, snap.Participants, "intruder", "students cannot remove participants")

	reply = f.d.Handle(intruder, EventClaimHost, rawJSON(t, map[string]string{"code": code, "token": "forged"}))
	assert.Equal(t, failure("Invalid host token"), reply)

	f.d.Disconnect(teacher)
	reply = f.d.Handle(reconnect, EventClaimHost, rawJSON(t, map[string]string{"code": code, "token": created.HostToken}))
	assert.Equal(t, SuccessResponse{Success: true}, reply)
	assert.Equal(t, 2, f.hub.RoomSize(code), "intruder and reconnected host")

	reply = f.d.Handle(reconnect, EventSetActiveQuestion, rawJSON(t, map[string]interface{}{"code": code, "index": 0}))
	assert.Equal(t, SuccessResponse{Success: true}, reply)

	reply = f.d.Handle(teacher, EventSetActiveQuestion, rawJSON(t, map[string]interface{}{"code": code, "index": 0}))
	assert.Equal(t, failure(msgNotHost), reply, "host binding ends with the connection")
}

func TestDispatcher_ClaimHostDisabled(t *testing.T) {
	f := newFixture(t, DispatcherOptions{})
	teacher := testClient("teacher", 64)
	created := f.createPoll(t, teacher, "Quiz")
	assert.Empty(t, created.HostToken)

	reply := f.d.Handle(teacher, EventClaimHost, rawJSON(t, map[string]string{"code": created.Code, "token": "x"}))
	assert.Equal(t, failure("Host tokens are disabled"), reply)
}

func TestDispatcher_UnverifiedRolesByDefault(t *testing.T) {
	f := newFixture(t, DispatcherOptions{})
	teacher, anyone := testClient("teacher", 64), testClient("anyone", 64)
	code := f.createPoll(t, teacher, "Quiz").Code

	reply := f.d.Handle(anyone, EventSubmitQuestion, rawJSON(t, mathQuestionPayload(code)))
	assert.Equal(t, SuccessResponse{Success: true}, reply)
}
