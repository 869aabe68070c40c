package services

import (
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Connection status values as they appear on the wire.
// StatusAwaitingReconnect exists in the enumeration but no code path enters
// it; reconnection is unsupported.
type Status int

const (
	StatusAwaitingAuth      Status = 0
	StatusOnline            Status = 1
	StatusPlaying           Status = 2
	StatusAwaitingReconnect Status = 3
)

const (
	defaultAuthDeadline     = 10 * time.Second
	defaultHeartbeatTimeout = 10 * time.Second
	defaultLivenessPoll     = time.Second
	sendBufferSize          = 256
)

// TokenVerifier is the auth collaborator consumed by the gateway.
type TokenVerifier interface {
	VerifyToken(token string) (*AuthClaims, error)
}

// UserInfo is the identity attached to a connection after authentication.
// UID is the connection id: peers address each other by it in rooms.
type UserInfo struct {
	UID      string
	Username string
}

// Connection is one client attachment. The exported fields below the socket
// plumbing are guarded by the owning Hub's mutex.
type Connection struct {
	hub       *Hub
	ID        string
	socket    *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	lastBeat  atomic.Int64
	authTimer *time.Timer

	// Guarded by hub.mu.
	Status  Status
	User    *UserInfo
	Channel string
	Room    int
	GameID  string
}

// Hub is the session registry. It owns every live connection and is the first
// lock in the global ordering: connection -> room -> game.
type Hub struct {
	mu       sync.RWMutex
	conns    map[string]*Connection
	verifier TokenVerifier
	rooms    *RoomService
	games    *GameService

	authDeadline     time.Duration
	heartbeatTimeout time.Duration
	livenessPoll     time.Duration
}

func NewHub(verifier TokenVerifier) *Hub {
	return &Hub{
		conns:            make(map[string]*Connection),
		verifier:         verifier,
		authDeadline:     defaultAuthDeadline,
		heartbeatTimeout: defaultHeartbeatTimeout,
		livenessPoll:     defaultLivenessPoll,
	}
}

// Attach wires the room directory and game table after construction; the
// three registries reference each other.
func (h *Hub) Attach(rooms *RoomService, games *GameService) {
	h.rooms = rooms
	h.games = games
}

// Register allocates a fresh connection for an accepted socket, sends the
// hello frame and starts the authentication deadline.
func (h *Hub) Register(socket *websocket.Conn) *Connection {
	c := &Connection{
		hub:    h,
		ID:     newConnectionID(),
		socket: socket,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		Status: StatusAwaitingAuth,
	}
	c.lastBeat.Store(time.Now().UnixNano())

	h.mu.Lock()
	h.conns[c.ID] = c
	h.mu.Unlock()

	go c.writePump()
	go h.watchConnection(c)

	c.Send(OutFrame{Op: OpHello, D: HelloPayload{WID: c.ID}})

	c.authTimer = time.AfterFunc(h.authDeadline, func() {
		if c.status() == StatusAwaitingAuth {
			log.Debug().Str("wid", c.ID).Msg("authentication deadline expired")
			c.invalidSession()
		}
	})

	go c.readPump()

	log.Info().Str("wid", c.ID).Msg("connection registered")
	return c
}

// Get looks up a live connection by id.
func (h *Hub) Get(id string) (*Connection, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.conns[id]
	return c, ok
}

// Count returns the number of live connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Authenticate verifies the token and transitions the connection to Online.
// Failure is fatal for the connection: invalid-session frame, then close.
func (h *Hub) Authenticate(id, token string) {
	h.mu.RLock()
	c, ok := h.conns[id]
	h.mu.RUnlock()
	if !ok {
		return
	}

	claims, err := h.verifier.VerifyToken(token)
	if err != nil || claims == nil {
		log.Debug().Str("wid", id).Msg("token verification failed")
		c.invalidSession()
		return
	}

	h.mu.Lock()
	if c.Status != StatusAwaitingAuth {
		h.mu.Unlock()
		return
	}
	c.User = &UserInfo{UID: c.ID, Username: claims.Username}
	c.Status = StatusOnline
	h.mu.Unlock()

	if c.authTimer != nil {
		c.authTimer.Stop()
	}

	log.Info().Str("wid", id).Str("username", claims.Username).Msg("connection authenticated")
}

// Disconnect runs the full cleanup for a connection: forfeit an active game,
// leave the current room with a broadcast, remove the registry entry. Unknown
// ids are no-ops so racing disconnect paths never fault.
func (h *Hub) Disconnect(id string) {
	h.mu.RLock()
	c, ok := h.conns[id]
	playing := ok && c.Status == StatusPlaying
	h.mu.RUnlock()
	if !ok {
		return
	}

	if playing && h.games != nil {
		h.games.Quit(id)
	}

	h.mu.Lock()
	if _, still := h.conns[id]; !still {
		h.mu.Unlock()
		return
	}
	delete(h.conns, id)
	h.mu.Unlock()

	if h.rooms != nil {
		h.rooms.Leave(c)
	}

	c.close()
	log.Info().Str("wid", id).Msg("connection removed")
}

// watchConnection enforces the liveness contract: a connection silent beyond
// the heartbeat timeout is treated exactly like an explicit quit.
func (h *Hub) watchConnection(c *Connection) {
	ticker := time.NewTicker(h.livenessPoll)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			last := time.Unix(0, c.lastBeat.Load())
			if time.Since(last) < h.heartbeatTimeout {
				continue
			}
			log.Info().Str("wid", c.ID).Msg("heartbeat lapsed, dropping connection")
			h.Disconnect(c.ID)
			return
		}
	}
}

func (c *Connection) status() Status {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	return c.Status
}

// userPayload snapshots the identity for event frames. Caller holds hub.mu.
func (c *Connection) userPayload() UserPayload {
	p := UserPayload{UID: c.ID, Status: int(c.Status)}
	if c.User != nil {
		p.UID = c.User.UID
		p.Username = c.User.Username
	}
	return p
}

// Send marshals and enqueues a frame. Delivery is best effort: a full buffer
// or closed peer drops the frame without affecting the caller, so one failed
// recipient never aborts a broadcast.
func (c *Connection) Send(frame OutFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		log.Error().Err(err).Str("wid", c.ID).Msg("failed to marshal frame")
		return
	}

	select {
	case c.send <- data:
	default:
		log.Debug().Str("wid", c.ID).Msg("send buffer full, frame dropped")
	}
}

// SendEvent enqueues an op 0 event frame.
func (c *Connection) SendEvent(event string, d any) {
	c.Send(OutFrame{Op: OpEvent, D: d, T: event})
}

func (c *Connection) invalidSession() {
	c.Send(OutFrame{Op: OpInvalidSession, D: false})
	c.close()
}

// close releases the connection's background tasks exactly once. The socket
// itself is closed by writePump after pending frames are flushed.
func (c *Connection) close() {
	c.closeOnce.Do(func() {
		if c.authTimer != nil {
			c.authTimer.Stop()
		}
		close(c.done)
	})
}

func (c *Connection) readPump() {
	defer func() {
		c.hub.Disconnect(c.ID)
		c.close()
	}()

	for {
		_, data, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("wid", c.ID).Msg("read error")
			}
			return
		}
		c.hub.handleFrame(c, data)
	}
}

func (c *Connection) writePump() {
	defer func() {
		if c.socket != nil {
			c.socket.Close()
		}
	}()

	for {
		select {
		case data := <-c.send:
			if err := c.socket.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.done:
			// Flush whatever is queued before closing the socket, so the
			// invalid-session frame reaches the client.
			for {
				select {
				case data := <-c.send:
					if err := c.socket.WriteMessage(websocket.TextMessage, data); err != nil {
						return
					}
				default:
					c.socket.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
			}
		}
	}
}

// handleFrame dispatches one inbound frame. Protocol violations are silent
// no-ops while the connection is authenticated; before authentication any
// frame other than a valid op 2 is fatal.
func (h *Hub) handleFrame(c *Connection, data []byte) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		if c.status() == StatusAwaitingAuth {
			c.invalidSession()
		}
		return
	}

	if c.status() == StatusAwaitingAuth {
		if frame.Op != OpAuthenticate {
			c.invalidSession()
			return
		}
		var p AuthPayload
		if err := json.Unmarshal(frame.D, &p); err != nil || p.Token == "" {
			c.invalidSession()
			return
		}
		h.Authenticate(c.ID, p.Token)
		return
	}

	switch frame.Op {
	case OpHeartbeat:
		c.lastBeat.Store(time.Now().UnixNano())
		c.Send(OutFrame{Op: OpHeartbeatAck})

	case OpJoinRoom:
		var p JoinRoomPayload
		if err := json.Unmarshal(frame.D, &p); err != nil {
			return
		}
		h.rooms.Join(c.ID, p.Channel, p.Room)

	case OpRequestGame:
		var p GameRequestInPayload
		if err := json.Unmarshal(frame.D, &p); err != nil {
			return
		}
		h.games.RequestGame(c.ID, p.UID)

	case OpAcceptRequest:
		var p GameIDPayload
		if err := json.Unmarshal(frame.D, &p); err != nil {
			return
		}
		h.games.AcceptRequest(c.ID, p.GameID)

	case OpDeclineRequest:
		var p GameIDPayload
		if err := json.Unmarshal(frame.D, &p); err != nil {
			return
		}
		h.games.DeclineRequest(c.ID, p.GameID)

	case OpConfirmWord:
		var p ConfirmWordPayload
		if err := json.Unmarshal(frame.D, &p); err != nil {
			return
		}
		h.games.ConfirmWord(c.ID, p.GameID, p.Word)

	case OpCheckWord:
		var p CheckWordInPayload
		if err := json.Unmarshal(frame.D, &p); err != nil {
			return
		}
		h.games.CheckWord(c.ID, p.Word)

	case OpCheckWordExists:
		h.games.CheckWordExists(c.ID)

	case OpTimeIsUp:
		h.games.TimeIsUp(c.ID)

	default:
		log.Debug().Int("op", frame.Op).Str("wid", c.ID).Msg("unknown opcode ignored")
	}
}

func newConnectionID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
