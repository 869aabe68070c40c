package services

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Game mode channels. Lettered games reveal one shared letter/index hint at
// acceptance; letterless games reveal nothing.
const (
	ChannelLettered   = "lettered"
	ChannelLetterless = "letterless"
)

// RoomLengths are the valid word lengths, which double as the room keys
// inside each channel.
var RoomLengths = []int{4, 5, 6, 7}

// RoomService is the matchmaking presence directory keyed (channel, length).
// Membership only controls which peers a client can see and challenge; no
// automatic pairing happens here. Second lock in the global ordering.
type RoomService struct {
	mu    sync.Mutex
	hub   *Hub
	rooms map[string]map[int][]string
}

func NewRoomService(hub *Hub) *RoomService {
	rooms := make(map[string]map[int][]string)
	for _, channel := range []string{ChannelLettered, ChannelLetterless} {
		rooms[channel] = make(map[int][]string)
		for _, length := range RoomLengths {
			rooms[channel][length] = []string{}
		}
	}
	return &RoomService{hub: hub, rooms: rooms}
}

// Join moves a connection into the (channel, room) presence list. Invalid
// keys, unknown connections, non-online connections and joins to the current
// room are no-ops. The newcomer receives the existing member list; existing
// members receive a join event.
func (r *RoomService) Join(id, channel string, room int) {
	r.hub.mu.Lock()
	defer r.hub.mu.Unlock()

	c, ok := r.hub.conns[id]
	if !ok || c.Status != StatusOnline {
		return
	}

	if _, ok := r.rooms[channel]; !ok {
		return
	}
	if _, ok := r.rooms[channel][room]; !ok {
		return
	}

	if c.Channel == channel && c.Room == room {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.leaveLocked(c)

	c.Channel = channel
	c.Room = room

	members := r.rooms[channel][room]
	users := make([]UserPayload, 0, len(members))
	joined := c.userPayload()

	for _, memberID := range members {
		member, ok := r.hub.conns[memberID]
		if !ok || member.User == nil {
			continue
		}
		users = append(users, member.userPayload())
		member.SendEvent(EventUserJoinRoom, RoomUserPayload{User: joined})
	}

	c.SendEvent(EventJoinRoom, RoomUsersPayload{Users: users})

	r.rooms[channel][room] = append(r.rooms[channel][room], id)

	log.Info().Str("wid", id).Str("channel", channel).Int("room", room).Msg("joined room")
}

// Leave removes the connection from its current room, if any, and broadcasts
// a leave event to the remaining members. Used on room switches and on
// disconnect.
func (r *RoomService) Leave(c *Connection) {
	r.hub.mu.RLock()
	defer r.hub.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.leaveLocked(c)
}

// leaveLocked requires hub.mu (at least read) and r.mu.
func (r *RoomService) leaveLocked(c *Connection) {
	if c.Channel == "" {
		return
	}

	members := r.rooms[c.Channel][c.Room]
	kept := members[:0]
	removed := false
	for _, id := range members {
		if id == c.ID {
			removed = true
			continue
		}
		kept = append(kept, id)
	}
	if !removed {
		return
	}
	r.rooms[c.Channel][c.Room] = kept

	left := c.userPayload()
	for _, id := range kept {
		member, ok := r.hub.conns[id]
		if !ok {
			continue
		}
		member.SendEvent(EventUserLeaveRoom, RoomUserPayload{User: left})
	}
}

// Members returns a copy of one room's presence list.
func (r *RoomService) Members(channel string, room int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[channel][room]
	out := make([]string, len(members))
	copy(out, members)
	return out
}

// membersLocked requires r.mu; used by the game table to broadcast status
// updates while holding the full lock chain.
func (r *RoomService) membersLocked(channel string, room int) []string {
	return r.rooms[channel][room]
}
