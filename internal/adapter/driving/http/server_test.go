package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Wyydra/yarelay/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/yarelay/internal/adapter/driven/persistence/memory"
	"github.com/Wyydra/yarelay/internal/core/domain"
	"github.com/Wyydra/yarelay/internal/core/service"
	"github.com/Wyydra/yarelay/internal/metrics"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*httptest.Server
	hub *ws.Hub
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	users := memory.NewUserRepository()
	messages := memory.NewMessageRepository()
	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)
	hub := ws.NewHub(rec)

	if opts.MetricsHandler == nil {
		opts.MetricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}
	h := NewHandler(
		service.NewPresenceService(users, hub),
		service.NewChatService(users, messages, hub),
		service.NewCallService(users, hub),
		service.NewUserService(users, messages),
		rec,
		opts,
	)
	srv := httptest.NewServer(h.NewRouter())
	t.Cleanup(func() {
		hub.Stop()
		srv.Close()
	})
	return &testServer{Server: srv, hub: hub}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out.Bytes()
}

func (s *testServer) login(t *testing.T, name string) userResponse {
	t.Helper()
	status, body := s.do(t, http.MethodPost, "/api/users/login", loginRequest{Username: name, Avatar: "avatar-1"})
	require.Contains(t, []int{http.StatusOK, http.StatusCreated}, status, string(body))
	var resp loginResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp.User
}

func (s *testServer) befriend(t *testing.T, a, b domain.UserID) {
	t.Helper()
	status, body := s.do(t, http.MethodPost, "/api/contacts/add", contactRequest{UserID: a, FriendID: b})
	require.Equal(t, http.StatusOK, status, string(body))
}

type wsPeer struct {
	t    *testing.T
	conn *websocket.Conn
}

func (s *testServer) dial(t *testing.T) *wsPeer {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &wsPeer{t: t, conn: conn}
}

func (p *wsPeer) send(event domain.EventName, data any) {
	p.t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(p.t, err)
	require.NoError(p.t, p.conn.WriteJSON(frame{Event: event, Data: raw}))
}

// expect reads frames until one named event arrives and decodes its data.
func (p *wsPeer) expect(event domain.EventName, v any) {
	p.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(p.t, p.conn.SetReadDeadline(deadline))
		var in frame
		require.NoError(p.t, p.conn.ReadJSON(&in), "waiting for %s", event)
		if in.Event != event {
			continue
		}
		if v != nil {
			require.NoError(p.t, json.Unmarshal(in.Data, v))
		}
		return
	}
}

// never asserts that no frame named event arrives within d.
func (p *wsPeer) never(event domain.EventName, d time.Duration) {
	p.t.Helper()
	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(d)))
	for {
		var in frame
		if err := p.conn.ReadJSON(&in); err != nil {
			var netErr interface{ Timeout() bool }
			require.True(p.t, errors.As(err, &netErr) && netErr.Timeout(), "unexpected read error: %v", err)
			return
		}
		require.NotEqual(p.t, event, in.Event)
	}
}

func (p *wsPeer) announce(id domain.UserID) {
	p.t.Helper()
	p.send(domain.EventAnnounce, announceRequest{UserID: id})
	p.expect(domain.EventAnnounced, nil)
}

func TestAliceMessagesBob(t *testing.T) {
	s := newTestServer(t, Options{})
	alice, bob := s.login(t, "alice"), s.login(t, "bob")
	s.befriend(t, alice.ID, bob.ID)

	bobWS := s.dial(t)
	bobWS.announce(bob.ID)
	aliceWS := s.dial(t)
	aliceWS.announce(alice.ID)

	var online domain.PresencePayload
	bobWS.expect(domain.EventUserOnline, &online)
	assert.Equal(t, alice.ID, online.UserID)

	aliceWS.send(domain.EventSendMessage, sendMessageRequest{From: alice.ID, To: bob.ID, Text: "hi"})

	var msg domain.MessagePayload
	bobWS.expect(domain.EventMessage, &msg)
	assert.Equal(t, "hi", msg.Text)
	assert.Equal(t, "alice", msg.From)
	assert.False(t, msg.Read)
	assert.Equal(t, domain.RoomIDFor(bob.ID, alice.ID), msg.RoomID)

	var note domain.NotificationPayload
	bobWS.expect(domain.EventNewMessageNotify, &note)
	assert.Equal(t, alice.ID, note.FromID)

	var echo domain.MessagePayload
	aliceWS.expect(domain.EventMessage, &echo)
	assert.Equal(t, msg.ID, echo.ID)

	status, body := s.do(t, http.MethodGet, "/api/messages/history/"+string(msg.RoomID), nil)
	require.Equal(t, http.StatusOK, status)
	var hist []domain.MessagePayload
	require.NoError(t, json.Unmarshal(body, &hist))
	require.Len(t, hist, 1)
	assert.Equal(t, msg.ID, hist[0].ID)
}

func TestCallOfflineContactFails(t *testing.T) {
	s := newTestServer(t, Options{})
	alice, bob := s.login(t, "alice"), s.login(t, "bob")
	s.befriend(t, alice.ID, bob.ID)

	aliceWS := s.dial(t)
	aliceWS.announce(alice.ID)
	aliceWS.send(domain.EventCallUser, callUserRequest{To: bob.ID, Kind: domain.CallVideo})

	var failed domain.ErrorPayload
	aliceWS.expect(domain.EventCallFailed, &failed)
	assert.Equal(t, domain.KindUnavailable, failed.Code)
	assert.Contains(t, failed.Reason, "not online")

	bobWS := s.dial(t)
	bobWS.announce(bob.ID)
	bobWS.never(domain.EventIncomingCall, 200*time.Millisecond)
}

func TestCallSignalingRoundTrip(t *testing.T) {
	s := newTestServer(t, Options{})
	alice, bob := s.login(t, "alice"), s.login(t, "bob")
	s.befriend(t, alice.ID, bob.ID)

	aliceWS := s.dial(t)
	aliceWS.announce(alice.ID)
	bobWS := s.dial(t)
	bobWS.announce(bob.ID)

	aliceWS.send(domain.EventCallUser, callUserRequest{To: bob.ID, Kind: domain.CallVoice})
	var ring domain.IncomingCallPayload
	bobWS.expect(domain.EventIncomingCall, &ring)
	assert.Equal(t, alice.ID, ring.From)
	assert.Equal(t, "alice", ring.FromDisplayName)
	assert.Equal(t, domain.CallVoice, ring.Kind)

	bobWS.send(domain.EventAnswerCall, answerCallRequest{To: alice.ID, Accepted: true})
	var accepted domain.PeerPayload
	aliceWS.expect(domain.EventCallAccepted, &accepted)
	assert.Equal(t, bob.ID, accepted.From)

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0\r\n"}`)
	aliceWS.send(domain.EventOffer, signalRequest{To: bob.ID, Payload: offer})
	var relayed domain.SignalPayload
	bobWS.expect(domain.EventOffer, &relayed)
	assert.Equal(t, alice.ID, relayed.From)
	assert.JSONEq(t, string(offer), string(relayed.Payload))

	bobWS.send(domain.EventEndCall, peerRequest{To: alice.ID})
	var ended domain.PeerPayload
	aliceWS.expect(domain.EventCallEnded, &ended)
	assert.Equal(t, bob.ID, ended.From)
	bobWS.expect(domain.EventCallEnded, &ended)
	assert.Equal(t, alice.ID, ended.From)
}

func TestSocketErrors(t *testing.T) {
	s := newTestServer(t, Options{})
	alice, bob := s.login(t, "alice"), s.login(t, "bob")

	anon := s.dial(t)
	anon.send(domain.EventSendMessage, sendMessageRequest{From: alice.ID, To: bob.ID, Text: "hi"})
	var msgErr domain.ErrorPayload
	anon.expect(domain.EventMessageError, &msgErr)
	assert.Equal(t, domain.KindUnauthorized, msgErr.Code)

	anon.send(domain.EventAnnounce, announceRequest{UserID: domain.NewUserID()})
	var loginErr domain.ErrorPayload
	anon.expect(domain.EventLoginError, &loginErr)
	assert.Equal(t, domain.KindNotFound, loginErr.Code)
	assert.NotEmpty(t, loginErr.Error)

	// malformed frames are dropped without closing the socket
	require.NoError(t, anon.conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	anon.announce(alice.ID)

	anon.send(domain.EventSendMessage, sendMessageRequest{From: alice.ID, To: bob.ID, Text: "hi"})
	anon.expect(domain.EventMessageError, &msgErr)
	assert.Equal(t, domain.KindForbidden, msgErr.Code)

	anon.send(domain.EventGetHistory, historyRequest{RoomID: domain.RoomIDFor(alice.ID, bob.ID), UserID: bob.ID})
	var histErr domain.ErrorPayload
	anon.expect(domain.EventHistoryError, &histErr)
	assert.Equal(t, domain.KindUnauthorized, histErr.Code)
}

func TestSocketHistoryAndContactAdded(t *testing.T) {
	s := newTestServer(t, Options{})
	alice, bob := s.login(t, "alice"), s.login(t, "bob")

	aliceWS := s.dial(t)
	aliceWS.announce(alice.ID)
	bobWS := s.dial(t)
	bobWS.announce(bob.ID)

	// both sides learn about the new contact without reconnecting
	s.befriend(t, alice.ID, bob.ID)
	room := domain.RoomIDFor(alice.ID, bob.ID)
	aliceWS.send(domain.EventContactAdded, contactAddedRequest{FriendID: bob.ID})
	bobWS.send(domain.EventContactAdded, contactAddedRequest{FriendID: alice.ID})

	// events on one socket are handled in order, so the history reply
	// proves alice has joined the room
	var hist domain.HistoryPayload
	aliceWS.send(domain.EventGetHistory, historyRequest{RoomID: room, UserID: alice.ID})
	aliceWS.expect(domain.EventChatHistory, &hist)
	assert.Empty(t, hist.Messages)

	bobWS.send(domain.EventSendMessage, sendMessageRequest{From: bob.ID, To: alice.ID, Text: "hello"})
	var msg domain.MessagePayload
	aliceWS.expect(domain.EventMessage, &msg)
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, room, msg.RoomID)

	aliceWS.send(domain.EventGetHistory, historyRequest{RoomID: msg.RoomID, UserID: alice.ID})
	aliceWS.expect(domain.EventChatHistory, &hist)
	assert.Equal(t, msg.RoomID, hist.RoomID)
	require.Len(t, hist.Messages, 1)
	assert.Equal(t, "bob", hist.Messages[0].From)

	aliceWS.send(domain.EventMarkRead, markReadRequest{RoomID: msg.RoomID, UserID: alice.ID})
	aliceWS.send(domain.EventGetHistory, historyRequest{RoomID: msg.RoomID, UserID: alice.ID})
	aliceWS.expect(domain.EventChatHistory, &hist)
	require.Len(t, hist.Messages, 1)
	assert.True(t, hist.Messages[0].Read)
}

func TestDisconnectBroadcastsOffline(t *testing.T) {
	s := newTestServer(t, Options{})
	alice, bob := s.login(t, "alice"), s.login(t, "bob")

	bobWS := s.dial(t)
	bobWS.announce(bob.ID)
	aliceWS := s.dial(t)
	aliceWS.announce(alice.ID)
	bobWS.expect(domain.EventUserOnline, nil)

	require.NoError(t, aliceWS.conn.Close())

	var offline domain.PresencePayload
	bobWS.expect(domain.EventUserOffline, &offline)
	assert.Equal(t, alice.ID, offline.UserID)
	_, ok := s.hub.Lookup(alice.ID)
	assert.False(t, ok)
}

func TestOriginPolicy(t *testing.T) {
	s := newTestServer(t, Options{AllowedOrigins: []string{"https://chat.example.com/"}})
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": []string{"https://chat.example.com"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	conn.Close()
}

func TestRESTContactsAndUsers(t *testing.T) {
	s := newTestServer(t, Options{})
	alice, bob := s.login(t, "alice"), s.login(t, "bob")
	s.login(t, "carol")

	status, body := s.do(t, http.MethodPost, "/api/users/login", loginRequest{Username: "ALICE", Avatar: "avatar-9"})
	require.Equal(t, http.StatusOK, status)
	var again loginResponse
	require.NoError(t, json.Unmarshal(body, &again))
	assert.False(t, again.Created)
	assert.Equal(t, alice.ID, again.User.ID)

	status, _ = s.do(t, http.MethodPost, "/api/users/login", loginRequest{Username: "x", Avatar: "a"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = s.do(t, http.MethodGet, "/api/users/"+string(bob.ID), nil)
	require.Equal(t, http.StatusOK, status)
	var got userResponse
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "bob", got.Username)

	status, body = s.do(t, http.MethodGet, "/api/users/"+string(domain.NewUserID()), nil)
	assert.Equal(t, http.StatusNotFound, status)
	var apiErr errorResponse
	require.NoError(t, json.Unmarshal(body, &apiErr))
	assert.Equal(t, domain.KindNotFound, apiErr.Code)

	status, body = s.do(t, http.MethodGet, "/api/users/search?q=ca&exclude="+string(alice.ID), nil)
	require.Equal(t, http.StatusOK, status)
	var found []profileResponse
	require.NoError(t, json.Unmarshal(body, &found))
	require.Len(t, found, 1)
	assert.Equal(t, "carol", found[0].Username)

	s.befriend(t, alice.ID, bob.ID)
	status, body = s.do(t, http.MethodPost, "/api/contacts/add", contactRequest{UserID: alice.ID, FriendID: bob.ID})
	require.Equal(t, http.StatusOK, status)
	var added addContactResponse
	require.NoError(t, json.Unmarshal(body, &added))
	assert.True(t, added.AlreadyAdded)

	status, _ = s.do(t, http.MethodPost, "/api/contacts/add", contactRequest{UserID: alice.ID, FriendID: alice.ID})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = s.do(t, http.MethodGet, "/api/contacts/"+string(bob.ID), nil)
	require.Equal(t, http.StatusOK, status)
	var contacts []contactResponse
	require.NoError(t, json.Unmarshal(body, &contacts))
	require.Len(t, contacts, 1)
	assert.Equal(t, "alice", contacts[0].Username)
	assert.Nil(t, contacts[0].LastMessage)

	status, _ = s.do(t, http.MethodDelete, "/api/contacts/remove", contactRequest{UserID: alice.ID, FriendID: bob.ID})
	assert.Equal(t, http.StatusNoContent, status)
	_, body = s.do(t, http.MethodGet, "/api/contacts/"+string(alice.ID), nil)
	require.NoError(t, json.Unmarshal(body, &contacts))
	assert.Empty(t, contacts)
	_, body = s.do(t, http.MethodGet, "/api/contacts/"+string(bob.ID), nil)
	require.NoError(t, json.Unmarshal(body, &contacts))
	assert.Len(t, contacts, 1)

	status, body = s.do(t, http.MethodGet, "/api/invite/"+alice.InviteCode, nil)
	require.Equal(t, http.StatusOK, status)
	var inv inviteResponse
	require.NoError(t, json.Unmarshal(body, &inv))
	assert.Equal(t, alice.ID, inv.ID)

	status, _ = s.do(t, http.MethodGet, "/api/invite/unknown", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRESTHistoryAndMarkRead(t *testing.T) {
	s := newTestServer(t, Options{})
	alice, bob := s.login(t, "alice"), s.login(t, "bob")
	s.befriend(t, alice.ID, bob.ID)

	aliceWS := s.dial(t)
	aliceWS.announce(alice.ID)
	for _, text := range []string{"one", "two", "three"} {
		aliceWS.send(domain.EventSendMessage, sendMessageRequest{From: alice.ID, To: bob.ID, Text: text})
		aliceWS.expect(domain.EventMessage, nil)
	}
	room := string(domain.RoomIDFor(alice.ID, bob.ID))

	status, body := s.do(t, http.MethodGet, "/api/messages/history/"+room+"?limit=2", nil)
	require.Equal(t, http.StatusOK, status)
	var page []domain.MessagePayload
	require.NoError(t, json.Unmarshal(body, &page))
	require.Len(t, page, 2)
	assert.Equal(t, "two", page[0].Text)
	assert.Equal(t, "three", page[1].Text)

	before := page[0].Timestamp.Format(time.RFC3339Nano)
	status, body = s.do(t, http.MethodGet, "/api/messages/history/"+room+"?before="+before, nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &page))
	require.Len(t, page, 1)
	assert.Equal(t, "one", page[0].Text)

	status, _ = s.do(t, http.MethodGet, "/api/messages/history/"+room+"?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = s.do(t, http.MethodPut, "/api/messages/read", markReadRequest{RoomID: domain.RoomID(room), UserID: bob.ID})
	require.Equal(t, http.StatusOK, status)
	var marked markReadResponse
	require.NoError(t, json.Unmarshal(body, &marked))
	assert.Equal(t, 3, marked.Updated)

	_, body = s.do(t, http.MethodGet, "/api/contacts/"+string(bob.ID), nil)
	var contacts []contactResponse
	require.NoError(t, json.Unmarshal(body, &contacts))
	require.Len(t, contacts, 1)
	assert.Zero(t, contacts[0].UnreadCount)
	require.NotNil(t, contacts[0].LastMessage)
	assert.Equal(t, "three", contacts[0].LastMessage.Text)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, Options{Ready: func(context.Context) error { return errors.New("store down") }})

	status, _ := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = s.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)

	alice := s.login(t, "alice")
	sock := s.dial(t)
	sock.announce(alice.ID)

	// the event is counted after its reply has been queued
	require.Eventually(t, func() bool {
		status, body := s.do(t, http.MethodGet, "/metrics", nil)
		return status == http.StatusOK &&
			strings.Contains(string(body), "yarelay_users_online 1") &&
			strings.Contains(string(body), `yarelay_events_total{event="announce"} 1`)
	}, 2*time.Second, 20*time.Millisecond)
}

func TestUnknownEventsShareOneMetricLabel(t *testing.T) {
	s := newTestServer(t, Options{})
	sock := s.dial(t)
	for i := 0; i < 20; i++ {
		sock.send(domain.EventName(fmt.Sprintf("junk-%d", i)), struct{}{})
	}

	require.Eventually(t, func() bool {
		_, body := s.do(t, http.MethodGet, "/metrics", nil)
		return strings.Contains(string(body), `yarelay_events_total{event="unknown"} 20`)
	}, 2*time.Second, 20*time.Millisecond)

	_, body := s.do(t, http.MethodGet, "/metrics", nil)
	assert.NotContains(t, string(body), "junk-")
}
