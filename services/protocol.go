package services

import "encoding/json"

// Gateway wire protocol. Every frame is a JSON object {op, d, t} where t is
// only present on server-originated event frames (op 0).

// Client -> server opcodes.
const (
	OpHeartbeat       = 1
	OpAuthenticate    = 2
	OpJoinRoom        = 3
	OpRequestGame     = 4
	OpAcceptRequest   = 5
	OpDeclineRequest  = 6
	OpConfirmWord     = 7
	OpCheckWord       = 10
	OpCheckWordExists = 11
	OpTimeIsUp        = 12
)

// Server -> client opcodes.
const (
	OpEvent          = 0
	OpInvalidSession = 8
	OpHello          = 10
	OpHeartbeatAck   = 11
)

// Event names carried in the t field of op 0 frames.
const (
	EventUserJoinRoom        = "USER_JOIN_ROOM"
	EventUserLeaveRoom       = "USER_LEAVE_ROOM"
	EventJoinRoom            = "JOIN_ROOM"
	EventGameRequest         = "GAME_REQUEST"
	EventGameAccepted        = "GAME_ACCEPTED"
	EventGameRejected        = "GAME_REJECTED"
	EventConfirmedWord       = "CONFIRMED_WORD"
	EventStartGame           = "START_GAME"
	EventCheckWord           = "CHECK_WORD"
	EventWonGame             = "WON_GAME"
	EventLoseGame            = "LOSE_GAME"
	EventOtherPlayerFinished = "OTHER_PLAYER_FINISHED"
	EventTryAgain            = "TRY_AGAIN"
	EventStatusUpdate        = "STATUS_UPDATE"
)

// Frame is an inbound client frame. D stays raw until the opcode is known.
type Frame struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
}

// OutFrame is a server frame. D holding a typed nil is omitted (heartbeat ack
// carries no payload); D holding false still serializes (invalid session).
type OutFrame struct {
	Op int    `json:"op"`
	D  any    `json:"d,omitempty"`
	T  string `json:"t,omitempty"`
}

// Inbound payloads.

type AuthPayload struct {
	Token string `json:"token"`
}

type JoinRoomPayload struct {
	Channel string `json:"channel"`
	Room    int    `json:"room"`
}

type GameRequestInPayload struct {
	UID string `json:"uid"`
}

type GameIDPayload struct {
	GameID string `json:"game_id"`
}

type ConfirmWordPayload struct {
	GameID string `json:"game_id"`
	Word   string `json:"word"`
}

type CheckWordInPayload struct {
	Word string `json:"word"`
}

// Outbound payloads.

type HelloPayload struct {
	WID string `json:"wid"`
}

type UserPayload struct {
	UID      string `json:"uid"`
	Username string `json:"username"`
	Status   int    `json:"status"`
}

type RoomUserPayload struct {
	User UserPayload `json:"user"`
}

type RoomUsersPayload struct {
	Users []UserPayload `json:"users"`
}

type GameRequestPayload struct {
	From   UserPayload `json:"from"`
	GameID string      `json:"game_id"`
}

type OpponentPayload struct {
	UID      string `json:"uid"`
	Username string `json:"username"`
}

type GameAcceptedPayload struct {
	GameID   string          `json:"game_id"`
	Opponent OpponentPayload `json:"opponent"`
	Letter   string          `json:"letter,omitempty"`
	Index    *int            `json:"index,omitempty"`
}

type UserStatusPayload struct {
	UID    string `json:"uid"`
	Status int    `json:"status"`
}

type StatusUpdatePayload struct {
	Users []UserStatusPayload `json:"users"`
}

// LetterResult is one position of a guess evaluation.
type LetterResult struct {
	Value  string `json:"value"`
	Status string `json:"status"`
}

// CheckWordPayload carries guess feedback. Row is nil on the guesser's own
// view and holds the pre-increment guess index on the opponent's view.
type CheckWordPayload struct {
	Letters []LetterResult `json:"letters"`
	Valid   bool           `json:"valid"`
	Row     *int           `json:"row"`
}

type GameOverPayload struct {
	PlayerWord       string `json:"player_word"`
	OtherPlayerWord  string `json:"other_player_word"`
	PlayerScore      int    `json:"player_score"`
	OtherPlayerScore int    `json:"other_player_score"`
	Winner           string `json:"winner"`
}
