package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"

	"github.com/estatelink/estatelink-backend/internal/directory"
	"github.com/estatelink/estatelink-backend/internal/models"
	"github.com/estatelink/estatelink-backend/internal/services"
	"github.com/estatelink/estatelink-backend/pkg/logger"
	"github.com/estatelink/estatelink-backend/pkg/utils"
)

// sessionState is the tagged per-connection state machine. Transitions:
// Connecting -> Authenticated -> Joined <-> Authenticated, and anything ->
// Disconnected (terminal).
type sessionState int

const (
	stateConnecting sessionState = iota
	stateAuthenticated
	stateJoined
	stateDisconnected
)

func (s sessionState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateAuthenticated:
		return "authenticated"
	case stateJoined:
		return "joined"
	case stateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// session wraps one socket connection together with its authenticated user
// and state. It implements services.Session so the presence registry and the
// fan-out router can hold and emit through it.
type session struct {
	conn socketio.Conn
	user *models.User

	mu    sync.Mutex
	state sessionState
}

var legalTransitions = map[sessionState][]sessionState{
	stateConnecting:    {stateAuthenticated, stateDisconnected},
	stateAuthenticated: {stateJoined, stateDisconnected},
	stateJoined:        {stateAuthenticated, stateDisconnected},
}

func (s *session) transition(to sessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, next := range legalTransitions[s.state] {
		if next == to {
			s.state = to
			return nil
		}
	}
	return fmt.Errorf("illegal session transition %s -> %s", s.state, to)
}

func (s *session) currentState() sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *session) ID() string     { return s.conn.ID() }
func (s *session) UserID() string { return s.user.ID }

func (s *session) Emit(event string, payload interface{}) {
	s.conn.Emit(event, payload)
}

func (s *session) Close() {
	_ = s.transition(stateDisconnected)
	_ = s.conn.Close()
}

func (s *session) emitError(msg string) {
	s.conn.Emit(services.EventError, services.ErrorPayload{Message: msg})
}

// Gateway owns the duplex-connection surface: handshake authentication,
// room membership, inbound event dispatch and disconnect cleanup. One
// Gateway exists per server process, built in main.
type Gateway struct {
	server   *socketio.Server
	users    *directory.Users
	estates  *directory.Estates
	store    *services.ConversationStore
	access   *services.AccessPolicy
	presence services.SessionStore
	typing   *services.TypingTracker
	fanout   *services.FanoutRouter
}

func NewGateway(
	users *directory.Users,
	estates *directory.Estates,
	store *services.ConversationStore,
	access *services.AccessPolicy,
	presence services.SessionStore,
	typing *services.TypingTracker,
	fanout *services.FanoutRouter,
) *Gateway {
	server := socketio.NewServer(&engineio.Options{
		Transports: []transport.Transport{
			&websocket.Transport{
				CheckOrigin: func(r *http.Request) bool { return true },
			},
			&polling.Transport{
				CheckOrigin: func(r *http.Request) bool { return true },
			},
		},
	})

	g := &Gateway{
		server:   server,
		users:    users,
		estates:  estates,
		store:    store,
		access:   access,
		presence: presence,
		typing:   typing,
		fanout:   fanout,
	}
	g.registerHandlers()
	return g
}

func (g *Gateway) Server() *socketio.Server { return g.server }

func (g *Gateway) Serve() {
	go func() {
		if err := g.server.Serve(); err != nil {
			logger.Error().Err(err).Msg("Socket server stopped")
		}
	}()
}

func (g *Gateway) Close() {
	g.typing.Close()
	_ = g.server.Close()
}

// handshakeToken pulls the bearer credential from the query string or the
// Authorization header.
func handshakeToken(conn socketio.Conn) string {
	url := conn.URL()
	if token := url.Query().Get("token"); token != "" {
		return token
	}
	if token := url.Query().Get("auth_token"); token != "" {
		return token
	}
	header := conn.RemoteHeader().Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// current returns the connection's session, or nil when the connection never
// finished its handshake.
func current(conn socketio.Conn) *session {
	s, _ := conn.Context().(*session)
	return s
}

func (g *Gateway) registerHandlers() {
	g.server.OnConnect("/", g.onConnect)

	g.server.OnEvent("/", services.EventJoinEstateGroup, func(conn socketio.Conn, ev services.JoinEstateGroupEvent) {
		g.onJoinEstateGroup(conn, ev)
	})
	g.server.OnEvent("/", services.EventLeaveEstateGroup, func(conn socketio.Conn, ev services.LeaveEstateGroupEvent) {
		g.onLeaveEstateGroup(conn, ev)
	})
	g.server.OnEvent("/", services.EventSendMessage, func(conn socketio.Conn, ev services.SendMessageEvent) {
		g.onSendMessage(conn, ev)
	})
	g.server.OnEvent("/", services.EventTyping, func(conn socketio.Conn, ev services.TypingEvent) {
		g.onTyping(conn, ev)
	})
	g.server.OnEvent("/", services.EventMarkAsRead, func(conn socketio.Conn, ev services.MarkAsReadEvent) {
		g.onMarkAsRead(conn, ev)
	})
	g.server.OnEvent("/", services.EventEstateBroadcast, func(conn socketio.Conn, ev services.EstateBroadcastEvent) {
		g.onEstateBroadcast(conn, ev)
	})

	g.server.OnDisconnect("/", g.onDisconnect)

	g.server.OnError("/", func(conn socketio.Conn, err error) {
		logger.Warn().Err(err).Msg("Socket error")
	})
}

// onConnect authenticates the handshake. Failure returns an error which
// drops the connection; the channel is not trusted yet, so no error event
// is emitted.
func (g *Gateway) onConnect(conn socketio.Conn) error {
	token := handshakeToken(conn)
	if token == "" {
		logger.Warn().Str("socket_id", conn.ID()).Msg("Socket rejected: no credential")
		return fmt.Errorf("authentication required")
	}

	claims, err := utils.ValidateToken(token)
	if err != nil {
		logger.Warn().Str("socket_id", conn.ID()).Msg("Socket rejected: invalid credential")
		return fmt.Errorf("invalid token")
	}

	user, err := g.users.ByID(claims.UserID)
	if err != nil {
		logger.Warn().Str("socket_id", conn.ID()).Str("user_id", claims.UserID).Msg("Socket rejected: unknown user")
		return fmt.Errorf("unknown user")
	}
	if user.Status == models.UserStatusSuspended {
		logger.Warn().Str("socket_id", conn.ID()).Str("user_id", user.ID).Msg("Socket rejected: suspended user")
		return fmt.Errorf("account suspended")
	}

	sess := &session{conn: conn, user: user, state: stateConnecting}
	if err := sess.transition(stateAuthenticated); err != nil {
		return err
	}
	conn.SetContext(sess)

	// Last-connect-wins: a newer connection replaces the old session, which
	// gets closed. Its disconnect is a no-op in the registry.
	if replaced := g.presence.Register(sess); replaced != nil {
		replaced.Close()
	}

	// Auto-join the user's own estate room.
	g.presence.JoinRoom(user.EstateID, user.ID)
	if err := sess.transition(stateJoined); err != nil {
		return err
	}

	g.fanout.PresenceChanged(user, true)

	logger.Info().
		Str("socket_id", conn.ID()).
		Str("user_id", user.ID).
		Str("estate_id", user.EstateID).
		Msg("Socket connected")
	return nil
}

func (g *Gateway) onJoinEstateGroup(conn socketio.Conn, ev services.JoinEstateGroupEvent) {
	sess := current(conn)
	if sess == nil {
		return
	}
	if ev.EstateID != sess.user.EstateID {
		sess.emitError("Cannot join another estate's room")
		return
	}
	if sess.currentState() == stateAuthenticated {
		if err := sess.transition(stateJoined); err != nil {
			sess.emitError("Invalid connection state")
			return
		}
	}
	g.presence.JoinRoom(ev.EstateID, sess.user.ID)
}

func (g *Gateway) onLeaveEstateGroup(conn socketio.Conn, ev services.LeaveEstateGroupEvent) {
	sess := current(conn)
	if sess == nil {
		return
	}
	if ev.EstateID != sess.user.EstateID {
		sess.emitError("Cannot leave another estate's room")
		return
	}
	g.presence.LeaveRoom(ev.EstateID, sess.user.ID)
	if sess.currentState() == stateJoined {
		_ = sess.transition(stateAuthenticated)
	}
}

func (g *Gateway) onSendMessage(conn socketio.Conn, ev services.SendMessageEvent) {
	sess := current(conn)
	if sess == nil {
		return
	}

	msg, err := g.store.CreateMessage(ev.ConversationID, sess.user.ID, services.MessageInput{
		Kind:             ev.Kind,
		Content:          ev.Content,
		Metadata:         ev.Metadata,
		ReplyToMessageID: ev.ReplyToMessageID,
	})
	if err != nil {
		sess.emitError(err.Error())
		return
	}

	// Ack the sender as soon as persistence succeeds, independent of how
	// the fan-out goes.
	sess.Emit(services.EventMessageSent, services.MessageSentPayload{MessageID: msg.ID})

	g.fanout.MessageCreated(msg, sess.user)
}

func (g *Gateway) onTyping(conn socketio.Conn, ev services.TypingEvent) {
	sess := current(conn)
	if sess == nil {
		return
	}
	if _, err := g.access.ActiveParticipant(ev.ConversationID, sess.user.ID); err != nil {
		sess.emitError(err.Error())
		return
	}

	if ev.IsTyping {
		g.fanout.Typing(ev.ConversationID, sess.user.ID, true)
		g.typing.Start(sess.user.ID, ev.ConversationID)
	} else {
		g.typing.Stop(sess.user.ID, ev.ConversationID)
		g.fanout.Typing(ev.ConversationID, sess.user.ID, false)
	}
}

func (g *Gateway) onMarkAsRead(conn socketio.Conn, ev services.MarkAsReadEvent) {
	sess := current(conn)
	if sess == nil {
		return
	}

	if _, err := g.store.MarkRead(ev.ConversationID, sess.user.ID, ev.MessageID); err != nil {
		sess.emitError(err.Error())
		return
	}
	g.fanout.ReadReceipt(ev.ConversationID, ev.MessageID, sess.user.ID, time.Now())
}

func (g *Gateway) onEstateBroadcast(conn socketio.Conn, ev services.EstateBroadcastEvent) {
	sess := current(conn)
	if sess == nil {
		return
	}
	if !g.access.CanBroadcastToEstate(sess.user) {
		sess.emitError("Not allowed to broadcast to the estate")
		return
	}
	if strings.TrimSpace(ev.Message) == "" {
		sess.emitError("Broadcast message is required")
		return
	}

	if err := broadcastToEstate(g.store, g.estates, g.fanout, sess.user, ev.Message, ev.Kind); err != nil {
		sess.emitError(err.Error())
	}
}

func (g *Gateway) onDisconnect(conn socketio.Conn, reason string) {
	sess := current(conn)
	if sess == nil {
		// Handshake never completed; nothing registered.
		return
	}
	_ = sess.transition(stateDisconnected)

	// Only the user's current session evicts them. A superseded session's
	// disconnect must not knock the newer connection offline.
	_, removed := g.presence.Unregister(conn.ID())
	if !removed {
		return
	}

	for _, conversationID := range g.typing.EvictUser(sess.user.ID) {
		g.fanout.Typing(conversationID, sess.user.ID, false)
	}

	g.fanout.PresenceChanged(sess.user, false)

	logger.Info().
		Str("socket_id", conn.ID()).
		Str("user_id", sess.user.ID).
		Str("reason", reason).
		Msg("Socket disconnected")
}

// SocketHandler wraps the socket.io server for gin.
func SocketHandler(server *socketio.Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		server.ServeHTTP(c.Writer, c.Request)
	}
}
