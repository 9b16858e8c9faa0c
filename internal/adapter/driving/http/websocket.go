package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Wyydra/yarelay/internal/core/domain"
	"github.com/Wyydra/yarelay/internal/core/service"
	"github.com/Wyydra/yarelay/internal/metrics"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var errSendBufferFull = errors.New("send buffer full")

// frame is the wire envelope used in both directions.
type frame struct {
	Event domain.EventName `json:"event"`
	Data  json.RawMessage  `json:"data,omitempty"`
}

type outFrame struct {
	Event domain.EventName `json:"event"`
	Data  any              `json:"data"`
}

// WSClient is the port.Conn of one browser socket. Writes go through a
// buffered queue drained by a single writer goroutine, so frames reach the
// peer in the order they were queued.
type WSClient struct {
	id     string
	conn   *websocket.Conn
	send   chan domain.Event
	done   chan struct{}
	once   sync.Once
	logger zerolog.Logger
}

func newWSClient(conn *websocket.Conn, buffer int) *WSClient {
	id := uuid.NewString()
	return &WSClient{
		id:     id,
		conn:   conn,
		send:   make(chan domain.Event, buffer),
		done:   make(chan struct{}),
		logger: log.With().Str("conn_id", id).Logger(),
	}
}

func (c *WSClient) ID() string {
	return c.id
}

// Send queues ev without blocking. A client that cannot keep up is closed.
func (c *WSClient) Send(ev domain.Event) error {
	select {
	case <-c.done:
		return websocket.ErrCloseSent
	default:
	}
	select {
	case c.send <- ev:
		return nil
	case <-c.done:
		return websocket.ErrCloseSent
	default:
		c.logger.Warn().Str("event", string(ev.Name)).Msg("Send buffer full, closing connection")
		c.Close()
		return errSendBufferFull
	}
}

func (c *WSClient) Close() error {
	c.once.Do(func() {
		close(c.done)
	})
	return nil
}

// writePump owns every write on the socket.
func (c *WSClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(outFrame{Event: ev.Name, Data: ev.Data}); err != nil {
				c.logger.Debug().Err(err).Msg("Write failed")
				c.Close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.flush()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes what is still queued when the connection is closed locally.
func (c *WSClient) flush() {
	for {
		select {
		case ev := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(outFrame{Event: ev.Name, Data: ev.Data}); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (h *Handler) newUpgrader() *websocket.Upgrader {
	allowed := make(map[string]struct{}, len(h.opts.AllowedOrigins))
	for _, o := range h.opts.AllowedOrigins {
		allowed[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// no allow-list configured: development mode
			if len(allowed) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			_, ok := allowed[strings.ToLower(u.Scheme+"://"+u.Host)]
			return ok
		},
	}
}

// ServeWS upgrades the request and runs the read loop until the peer goes
// away. Inbound events of one connection are handled one at a time.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		return
	}

	client := newWSClient(conn, h.opts.SendBuffer)
	l := client.logger
	l.Info().Str("remote", r.RemoteAddr).Msg("New client connected")
	h.metrics.ConnOpened()

	sess := h.Presence.Connect(client)
	go client.writePump()

	defer func() {
		if rec := recover(); rec != nil {
			l.Error().Interface("panic", rec).Msg("Recovered from panic in connection loop")
		}
		h.Presence.Disconnect(sess)
		client.Close()
		h.metrics.ConnClosed()
		l.Info().Msg("Client disconnected")
	}()

	conn.SetReadLimit(h.opts.MaxFrameBytes)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctx := context.WithoutCancel(r.Context())
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l.Error().Err(err).Msg("Unexpected close error")
			}
			return
		}
		var in frame
		if err := json.Unmarshal(raw, &in); err != nil || in.Event == "" {
			l.Warn().Err(err).Msg("Malformed frame dropped")
			continue
		}
		h.dispatch(ctx, sess, in)
	}
}

// dispatch handles one inbound frame.
func (h *Handler) dispatch(ctx context.Context, sess *service.Session, in frame) {
	start := time.Now()
	errEvent, err := h.handleEvent(ctx, sess, in)

	code := ""
	if err != nil {
		code = string(domain.KindOf(err))
		l := log.With().Str("conn_id", sess.Conn().ID()).Str("event", string(in.Event)).Logger()
		if domain.KindOf(err) == domain.KindInternal {
			l.Error().Err(err).Msg("Event failed")
		} else {
			l.Debug().Err(err).Msg("Event rejected")
		}
		if errEvent != "" {
			if sendErr := sess.Conn().Send(domain.NewErrorEvent(errEvent, err)); sendErr != nil {
				l.Debug().Err(sendErr).Msg("Failed to report error")
			}
		}
	}
	label := string(in.Event)
	if !in.Event.Inbound() {
		label = metrics.UnknownEvent
	}
	h.metrics.ObserveEvent(label, time.Since(start), code)
}

// handleEvent returns the error and the event it is reported under. An empty
// event name means the failure is only logged.
func (h *Handler) handleEvent(ctx context.Context, sess *service.Session, in frame) (domain.EventName, error) {
	switch in.Event {
	case domain.EventAnnounce:
		var req announceRequest
		if err := decode(in.Data, &req); err != nil {
			return domain.EventLoginError, err
		}
		_, err := h.Presence.Announce(ctx, sess, req.UserID)
		return domain.EventLoginError, err

	case domain.EventSendMessage:
		var req sendMessageRequest
		if err := decode(in.Data, &req); err != nil {
			return domain.EventMessageError, err
		}
		_, err := h.Chat.SendMessage(ctx, sess, service.SendMessageInput{
			From:   req.From,
			To:     req.To,
			Text:   req.Text,
			RoomID: req.RoomID,
		})
		if err == nil {
			h.metrics.MessageSaved()
		}
		return domain.EventMessageError, err

	case domain.EventJoinRoom, domain.EventLeaveRoom:
		var req roomRequest
		if err := decode(in.Data, &req); err != nil {
			return "", err
		}
		if in.Event == domain.EventJoinRoom {
			return "", h.Chat.JoinRoom(sess, req.RoomID)
		}
		return "", h.Chat.LeaveRoom(sess, req.RoomID)

	case domain.EventMarkRead:
		var req markReadRequest
		if err := decode(in.Data, &req); err != nil {
			return "", err
		}
		_, err := h.Chat.MarkReadFor(ctx, sess, req.RoomID, req.UserID)
		return "", err

	case domain.EventGetHistory:
		var req historyRequest
		if err := decode(in.Data, &req); err != nil {
			return domain.EventHistoryError, err
		}
		msgs, err := h.Chat.SessionHistory(ctx, sess, req.RoomID, req.UserID)
		if err != nil {
			return domain.EventHistoryError, err
		}
		payload := domain.HistoryPayload{RoomID: req.RoomID, Messages: make([]domain.MessagePayload, 0, len(msgs))}
		for _, m := range msgs {
			payload.Messages = append(payload.Messages, domain.NewMessagePayload(m))
		}
		return "", sess.Conn().Send(domain.Event{Name: domain.EventChatHistory, Data: payload})

	case domain.EventContactAdded:
		var req contactAddedRequest
		if err := decode(in.Data, &req); err != nil {
			return "", err
		}
		return "", h.Chat.ContactAdded(sess, req.FriendID)

	case domain.EventCallUser:
		var req callUserRequest
		if err := decode(in.Data, &req); err != nil {
			return domain.EventCallFailed, err
		}
		return domain.EventCallFailed, h.Call.CallUser(ctx, sess, req.To, req.Kind)

	case domain.EventAnswerCall:
		var req answerCallRequest
		if err := decode(in.Data, &req); err != nil {
			return domain.EventCallFailed, err
		}
		delivered, err := h.Call.AnswerCall(sess, req.To, req.Accepted)
		h.dropped(in.Event, delivered, err)
		return domain.EventCallFailed, err

	case domain.EventOffer, domain.EventAnswer, domain.EventICECandidate:
		var req signalRequest
		if err := decode(in.Data, &req); err != nil {
			return domain.EventCallFailed, err
		}
		delivered, err := h.Call.Relay(sess, domain.Signal{
			Type:    domain.SignalType(in.Event),
			To:      req.To,
			Payload: req.Payload,
		})
		h.dropped(in.Event, delivered, err)
		return domain.EventCallFailed, err

	case domain.EventEndCall:
		var req peerRequest
		if err := decode(in.Data, &req); err != nil {
			return domain.EventCallFailed, err
		}
		delivered, err := h.Call.EndCall(sess, req.To)
		h.dropped(in.Event, delivered, err)
		return domain.EventCallFailed, err
	}

	return "", domain.InvalidArgument(fmt.Sprintf("unknown event %q", in.Event))
}

func (h *Handler) dropped(event domain.EventName, delivered bool, err error) {
	if err == nil && !delivered {
		h.metrics.RelayDropped(string(event))
	}
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return domain.InvalidArgument("missing data")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return domain.InvalidArgument("malformed data")
	}
	return nil
}
