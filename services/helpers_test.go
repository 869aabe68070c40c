package services

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

// stubVerifier accepts tokens of the form "valid:<username>".
type stubVerifier struct{}

func (stubVerifier) VerifyToken(token string) (*AuthClaims, error) {
	if name, ok := strings.CutPrefix(token, "valid:"); ok {
		return &AuthClaims{UID: "1", Username: name}, nil
	}
	return nil, errors.New("invalid token")
}

func testDictionary() *Dictionary {
	return NewDictionary([]string{
		// 4 letters
		"ABLE", "ALLI", "LOLA", "DODO", "BALE", "COLD",
		// 5 letters
		"APPLE", "BREAD", "CRANE", "DRINK", "QUILT",
	})
}

func newTestServices(t *testing.T) (*Hub, *RoomService, *GameService) {
	t.Helper()

	hub := NewHub(stubVerifier{})
	rooms := NewRoomService(hub)
	games := NewGameService(hub, rooms, testDictionary(), nil, nil)
	hub.Attach(rooms, games)
	return hub, rooms, games
}

// addConn registers an already-authenticated connection with no socket; its
// frames pile up in the send buffer for inspection.
func addConn(h *Hub, id, username string) *Connection {
	c := &Connection{
		hub:    h,
		ID:     id,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		Status: StatusOnline,
		User:   &UserInfo{UID: id, Username: username},
	}
	c.lastBeat.Store(time.Now().UnixNano())

	h.mu.Lock()
	h.conns[id] = c
	h.mu.Unlock()
	return c
}

type testFrame struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
	T  string          `json:"t"`
}

func nextFrame(t *testing.T, c *Connection) testFrame {
	t.Helper()

	select {
	case data := <-c.send:
		var f testFrame
		if err := json.Unmarshal(data, &f); err != nil {
			t.Fatalf("malformed frame %q: %v", data, err)
		}
		return f
	default:
		t.Fatal("expected a queued frame, found none")
		return testFrame{}
	}
}

func nextEvent(t *testing.T, c *Connection, want string) testFrame {
	t.Helper()

	f := nextFrame(t, c)
	if f.Op != OpEvent || f.T != want {
		t.Fatalf("expected event %s, got op=%d t=%q", want, f.Op, f.T)
	}
	return f
}

func decodePayload(t *testing.T, f testFrame, v any) {
	t.Helper()
	if err := json.Unmarshal(f.D, v); err != nil {
		t.Fatalf("failed to decode %s payload: %v", f.T, err)
	}
}

func drain(c *Connection) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

func pendingFrames(c *Connection) int {
	return len(c.send)
}

// startPlayingGame walks two connections through join/request/accept on the
// given room and returns the game id. Frames from the negotiation are
// drained.
func startPlayingGame(t *testing.T, hub *Hub, rooms *RoomService, games *GameService, a, b *Connection, channel string, room int) string {
	t.Helper()

	rooms.Join(a.ID, channel, room)
	rooms.Join(b.ID, channel, room)
	drain(a)
	drain(b)
	games.RequestGame(a.ID, b.ID)

	req := nextEvent(t, b, EventGameRequest)
	var payload GameRequestPayload
	decodePayload(t, req, &payload)

	games.AcceptRequest(b.ID, payload.GameID)
	drain(a)
	drain(b)

	return payload.GameID
}

// confirmBoth commits both secrets and zeroes the confirm-time bonuses so
// scoring assertions stay deterministic.
func confirmBoth(t *testing.T, games *GameService, gameID string, a *Connection, wordA string, b *Connection, wordB string) {
	t.Helper()

	games.ConfirmWord(a.ID, gameID, wordA)
	games.ConfirmWord(b.ID, gameID, wordB)

	games.mu.Lock()
	game, ok := games.games[gameID]
	if ok {
		for _, p := range game.Players {
			p.ConfirmBonus = 0
		}
	}
	games.mu.Unlock()
	if !ok {
		t.Fatalf("game %s not found after confirmation", gameID)
	}

	drain(a)
	drain(b)
}
