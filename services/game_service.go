package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/Alsond5/Wordle-Arena/models"
)

// Game lifecycle. Status only moves forward; a declined game is removed, not
// given a status.
type GameStatus int

const (
	GameCreated GameStatus = iota
	GameAccepted
	GamePlaying
	GameFinished
)

const (
	defaultConfirmWindow = 60 * time.Second
	defaultWatchdogGrace = 10 * time.Second
	defaultWatchdogPoll  = time.Second

	quitCredit     = 100
	creditKeyspace = "arena:credit:"
)

// Match end reasons recorded with finalized games.
const (
	ReasonGuessed     = "guessed"
	ReasonExhausted   = "exhausted"
	ReasonForfeit     = "forfeit"
	ReasonTimeout     = "timeout"
	ReasonUnconfirmed = "unconfirmed"
)

// LetterHint is the fixed-letter constraint revealed in lettered mode, shared
// by both players.
type LetterHint struct {
	Letter string
	Index  int
}

// Player is one participant's per-game state. KnownCorrect and KnownPresent
// are reset and repopulated on every evaluation, so the exhaustion bonus
// reflects only the latest guess.
type Player struct {
	ConnID       string
	Word         string
	Hint         *LetterHint
	KnownCorrect []string
	KnownPresent []string
	Score        int
	Guesses      int
	ConfirmBonus float64
}

// Game is one match between two distinct connections.
type Game struct {
	ID        string
	Players   [2]*Player
	Channel   string
	Room      int
	Timestamp time.Time
	Status    GameStatus
}

// player returns the participant with the given connection id and their
// opponent.
func (g *Game) player(connID string) (*Player, *Player) {
	if g.Players[0].ConnID == connID {
		return g.Players[0], g.Players[1]
	}
	if g.Players[1].ConnID == connID {
		return g.Players[1], g.Players[0]
	}
	return nil, nil
}

// GameService owns the game table and drives negotiation and play. Third and
// last lock in the global ordering connection -> room -> game; every method
// that can finalize a game takes the full chain up front so a state check and
// its transition stay one atomic step.
type GameService struct {
	mu    sync.Mutex
	hub   *Hub
	rooms *RoomService
	dict  *Dictionary
	db    *gorm.DB
	redis *redis.Client
	games map[string]*Game

	confirmWindow time.Duration
	watchdogGrace time.Duration
	watchdogPoll  time.Duration
}

func NewGameService(hub *Hub, rooms *RoomService, dict *Dictionary, db *gorm.DB, rdb *redis.Client) *GameService {
	return &GameService{
		hub:           hub,
		rooms:         rooms,
		dict:          dict,
		db:            db,
		redis:         rdb,
		games:         make(map[string]*Game),
		confirmWindow: defaultConfirmWindow,
		watchdogGrace: defaultWatchdogGrace,
		watchdogPoll:  defaultWatchdogPoll,
	}
}

// HasGame reports whether a game id is still in the table.
func (s *GameService) HasGame(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.games[id]
	return ok
}

// RequestGame creates a negotiation against a peer in the requester's room
// and notifies the target. Unknown or invalid targets, including the
// requester itself, are no-ops.
func (s *GameService) RequestGame(id, targetID string) {
	s.hub.mu.RLock()
	defer s.hub.mu.RUnlock()

	c, ok := s.hub.conns[id]
	if !ok || c.Status != StatusOnline || c.Channel == "" {
		return
	}

	target, ok := s.hub.conns[targetID]
	if !ok || targetID == id {
		return
	}

	game := &Game{
		ID:        newGameID(),
		Players:   [2]*Player{{ConnID: id}, {ConnID: targetID}},
		Channel:   c.Channel,
		Room:      c.Room,
		Timestamp: time.Now(),
		Status:    GameCreated,
	}

	s.mu.Lock()
	s.games[game.ID] = game
	s.mu.Unlock()

	target.SendEvent(EventGameRequest, GameRequestPayload{
		From:   c.userPayload(),
		GameID: game.ID,
	})

	log.Info().Str("game_id", game.ID).Str("from", id).Str("to", targetID).Msg("game requested")
}

// AcceptRequest moves a created game to Accepted, puts both connections into
// Playing and opens the confirmation window. In lettered mode one random
// letter/index hint is drawn and shared by both players.
func (s *GameService) AcceptRequest(id, gameID string) {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.rooms.mu.Lock()
	defer s.rooms.mu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.hub.conns[id]
	if !ok || c.Status != StatusOnline {
		return
	}

	game, ok := s.games[gameID]
	if !ok || game.Status != GameCreated {
		return
	}

	// Both participants must still be live and idle; a game referencing a
	// stale or already-playing connection is torn down like a decline.
	for _, p := range game.Players {
		pc, ok := s.hub.conns[p.ConnID]
		if !ok || pc.Status != StatusOnline {
			delete(s.games, gameID)
			for _, q := range game.Players {
				if qc, ok := s.hub.conns[q.ConnID]; ok {
					qc.SendEvent(EventGameRejected, GameIDPayload{GameID: gameID})
				}
			}
			return
		}
	}

	game.Status = GameAccepted
	game.Timestamp = time.Now() // confirmation window starts here

	var hint *LetterHint
	if game.Channel == ChannelLettered {
		letters := []rune(Alphabet)
		hint = &LetterHint{
			Letter: string(letters[randIntn(len(letters))]),
			Index:  randIntn(game.Room),
		}
	}

	for i, p := range game.Players {
		pc := s.hub.conns[p.ConnID]
		pc.Status = StatusPlaying
		pc.GameID = gameID

		opponent := game.Players[1-i]
		oc := s.hub.conns[opponent.ConnID]

		payload := GameAcceptedPayload{
			GameID:   gameID,
			Opponent: OpponentPayload{UID: oc.ID, Username: s.usernameLocked(oc.ID)},
		}
		if hint != nil {
			p.Hint = hint
			payload.Letter = hint.Letter
			index := hint.Index
			payload.Index = &index
		}

		pc.SendEvent(EventGameAccepted, payload)
	}

	s.broadcastStatusLocked(game, StatusPlaying)

	log.Info().Str("game_id", gameID).Msg("game accepted")
}

// DeclineRequest removes a created game and notifies both participants.
func (s *GameService) DeclineRequest(id, gameID string) {
	s.hub.mu.RLock()
	defer s.hub.mu.RUnlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.hub.conns[id]
	if !ok || c.Status != StatusOnline {
		return
	}

	game, ok := s.games[gameID]
	if !ok || game.Status != GameCreated {
		return
	}

	delete(s.games, gameID)

	for _, p := range game.Players {
		if pc, ok := s.hub.conns[p.ConnID]; ok {
			pc.SendEvent(EventGameRejected, GameIDPayload{GameID: gameID})
		}
	}

	log.Info().Str("game_id", gameID).Msg("game declined")
}

// ConfirmWord commits a player's secret word inside the 60 second window.
// Rejections are silent: wrong length, repeated confirmation, hint violation,
// unknown word, or an expired window all leave the game untouched.
func (s *GameService) ConfirmWord(id, gameID, word string) {
	s.hub.mu.RLock()
	defer s.hub.mu.RUnlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.hub.conns[id]
	if !ok || c.Status != StatusPlaying {
		return
	}

	game, ok := s.games[gameID]
	if !ok || game.Status != GameAccepted {
		return
	}

	elapsed := time.Since(game.Timestamp)
	if elapsed > s.confirmWindow {
		return
	}

	player, other := game.player(id)
	if player == nil || player.Word != "" {
		return
	}

	word = strings.ToUpper(strings.TrimSpace(word))
	runes := []rune(word)
	if len(runes) != game.Room {
		return
	}

	if player.Hint != nil {
		if player.Hint.Index >= len(runes) || string(runes[player.Hint.Index]) != player.Hint.Letter {
			return
		}
	}

	if !s.dict.Contains(word) {
		return
	}

	player.Word = word
	player.ConfirmBonus = (s.confirmWindow - elapsed).Seconds()

	if other.Word == "" {
		c.SendEvent(EventConfirmedWord, GameIDPayload{GameID: gameID})
		return
	}

	game.Status = GamePlaying

	for _, p := range game.Players {
		if pc, ok := s.hub.conns[p.ConnID]; ok {
			pc.SendEvent(EventStartGame, GameIDPayload{GameID: gameID})
		}
	}

	log.Info().Str("game_id", gameID).Msg("both words confirmed, game started")
}

// CheckWord evaluates one guess against the opponent's secret, broadcasts the
// feedback and applies the end-of-game rules: exact match wins immediately,
// double exhaustion scores the match, single exhaustion arms the watchdog.
func (s *GameService) CheckWord(id, guess string) {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.rooms.mu.Lock()
	defer s.rooms.mu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checkWordLocked(id, guess)
}

// checkWordLocked requires the full lock chain.
func (s *GameService) checkWordLocked(id, guess string) {
	c, ok := s.hub.conns[id]
	if !ok || c.Status != StatusPlaying {
		return
	}

	game, ok := s.games[c.GameID]
	if !ok {
		return
	}

	player, other := game.player(id)
	if player == nil {
		return
	}

	if player.Guesses == game.Room {
		return
	}

	if other.Word == "" {
		return
	}

	guess = strings.ToUpper(strings.TrimSpace(guess))

	if !s.dict.Contains(guess) {
		c.SendEvent(EventCheckWord, CheckWordPayload{Letters: []LetterResult{}, Valid: false, Row: nil})
		return
	}

	// Known-letter sets carry only the latest guess's information.
	player.KnownCorrect = player.KnownCorrect[:0]
	player.KnownPresent = player.KnownPresent[:0]

	letters := Evaluate(guess, other.Word)
	for _, lr := range letters {
		switch lr.Status {
		case LetterCorrect:
			player.KnownCorrect = append(player.KnownCorrect, lr.Value)
		case LetterPresent:
			player.KnownPresent = append(player.KnownPresent, lr.Value)
		}
	}

	c.SendEvent(EventCheckWord, CheckWordPayload{Letters: letters, Valid: true, Row: nil})

	otherConn, otherOK := s.hub.conns[other.ConnID]
	if otherOK {
		row := player.Guesses
		otherConn.SendEvent(EventCheckWord, CheckWordPayload{Letters: letters, Valid: true, Row: &row})
	}

	player.Guesses++

	if guess == other.Word {
		player.Score = 100
		other.Score = 0
		winner := s.usernameLocked(id)

		c.SendEvent(EventWonGame, GameOverPayload{
			PlayerWord:       player.Word,
			OtherPlayerWord:  other.Word,
			PlayerScore:      100,
			OtherPlayerScore: 0,
			Winner:           winner,
		})
		if otherOK {
			otherConn.SendEvent(EventLoseGame, GameOverPayload{
				PlayerWord:       other.Word,
				OtherPlayerWord:  player.Word,
				PlayerScore:      0,
				OtherPlayerScore: 100,
				Winner:           winner,
			})
		}

		s.finalizeLocked(game, s.matchRecord(game, player, other, ReasonGuessed))
		return
	}

	if player.Guesses < game.Room {
		return
	}

	if other.Guesses == game.Room {
		for _, p := range game.Players {
			p.Score = 10*len(p.KnownCorrect) + 5*len(p.KnownPresent) + int(p.ConfirmBonus)
		}

		for i, p := range game.Players {
			opp := game.Players[1-i]
			pc, ok := s.hub.conns[p.ConnID]
			if !ok {
				continue
			}

			// Strict greater-than per player: equal scores resolve to the
			// opponent on both sides.
			event := EventLoseGame
			winner := s.usernameLocked(opp.ConnID)
			if p.Score > opp.Score {
				event = EventWonGame
				winner = s.usernameLocked(p.ConnID)
			}

			pc.SendEvent(event, GameOverPayload{
				PlayerWord:       p.Word,
				OtherPlayerWord:  opp.Word,
				PlayerScore:      p.Score,
				OtherPlayerScore: opp.Score,
				Winner:           winner,
			})
		}

		w, l := game.Players[1], game.Players[0]
		if game.Players[0].Score > game.Players[1].Score {
			w, l = game.Players[0], game.Players[1]
		}
		s.finalizeLocked(game, s.matchRecord(game, w, l, ReasonExhausted))
		return
	}

	// Only this player is done; keep the opponent's clock bounded.
	if otherOK {
		otherConn.SendEvent(EventOtherPlayerFinished, struct{}{})
	}
	go s.runWatchdog(game.ID, other.ConnID)
}

// CheckWordExists resolves a confirmation-phase stall from the asker's side:
// if the opponent still has no word the window restarts, otherwise the asker
// has lost the race and the game finalizes against them.
func (s *GameService) CheckWordExists(id string) {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.rooms.mu.Lock()
	defer s.rooms.mu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.hub.conns[id]
	if !ok || c.Status != StatusPlaying {
		return
	}

	game, ok := s.games[c.GameID]
	if !ok || game.Status != GameAccepted {
		return
	}

	_, other := game.player(id)
	if other == nil {
		return
	}

	if other.Word == "" {
		game.Timestamp = time.Now()
		c.SendEvent(EventTryAgain, struct{}{})
		return
	}

	winner := s.usernameLocked(other.ConnID)

	c.SendEvent(EventLoseGame, GameOverPayload{
		PlayerWord:       "",
		OtherPlayerWord:  other.Word,
		PlayerScore:      0,
		OtherPlayerScore: 100,
		Winner:           winner,
	})
	if oc, ok := s.hub.conns[other.ConnID]; ok {
		oc.SendEvent(EventWonGame, GameOverPayload{
			PlayerWord:       other.Word,
			OtherPlayerWord:  "",
			PlayerScore:      100,
			OtherPlayerScore: 0,
			Winner:           winner,
		})
	}

	player, _ := game.player(id)
	other.Score, player.Score = 100, 0
	s.finalizeLocked(game, s.matchRecord(game, other, player, ReasonUnconfirmed))
}

// TimeIsUp finalizes the asker's game as a loss when their own clock ran out.
// Only the asker's guess count is inspected.
func (s *GameService) TimeIsUp(id string) {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.rooms.mu.Lock()
	defer s.rooms.mu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.hub.conns[id]
	if !ok || c.GameID == "" {
		return
	}

	game, ok := s.games[c.GameID]
	if !ok {
		return
	}

	player, other := game.player(id)
	if player == nil || player.Guesses == game.Room {
		return
	}

	s.resolveForfeitLocked(game, player, other, ReasonTimeout)
}

// Quit finalizes the game as a loss for the quitting connection, crediting
// the opponent's cumulative forfeit counter. Called on explicit quit,
// disconnect and heartbeat lapse.
func (s *GameService) Quit(id string) {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.rooms.mu.Lock()
	defer s.rooms.mu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.hub.conns[id]
	if !ok || c.GameID == "" {
		return
	}

	game, ok := s.games[c.GameID]
	if !ok {
		return
	}

	player, other := game.player(id)
	if player == nil {
		return
	}

	if winnerName := s.usernameLocked(other.ConnID); winnerName != "" && s.redis != nil {
		go s.creditForfeit(winnerName)
	}

	s.resolveForfeitLocked(game, player, other, ReasonForfeit)
}

// resolveForfeitLocked declares other the winner with the fixed 100/0 split
// and finalizes. Requires the full lock chain.
func (s *GameService) resolveForfeitLocked(game *Game, player, other *Player, reason string) {
	winner := s.usernameLocked(other.ConnID)
	player.Score, other.Score = 0, 100

	if pc, ok := s.hub.conns[player.ConnID]; ok {
		pc.SendEvent(EventLoseGame, GameOverPayload{
			PlayerWord:       player.Word,
			OtherPlayerWord:  other.Word,
			PlayerScore:      0,
			OtherPlayerScore: 100,
			Winner:           winner,
		})
	}
	if oc, ok := s.hub.conns[other.ConnID]; ok {
		oc.SendEvent(EventWonGame, GameOverPayload{
			PlayerWord:       other.Word,
			OtherPlayerWord:  player.Word,
			PlayerScore:      100,
			OtherPlayerScore: 0,
			Winner:           winner,
		})
	}

	s.finalizeLocked(game, s.matchRecord(game, other, player, reason))
}

// finalizeLocked is the shared terminal step: both connections return to
// Online, the room both players came from gets a status update, the game
// leaves the table and the outcome is persisted best-effort. Requires the
// full lock chain.
func (s *GameService) finalizeLocked(game *Game, record *models.MatchRecord) {
	for _, p := range game.Players {
		if pc, ok := s.hub.conns[p.ConnID]; ok {
			pc.Status = StatusOnline
			pc.GameID = ""
		}
	}

	s.broadcastStatusLocked(game, StatusOnline)

	delete(s.games, game.ID)

	if s.db != nil && record != nil {
		go s.saveMatch(record)
	}

	log.Info().Str("game_id", game.ID).Msg("game finalized")
}

// broadcastStatusLocked sends a STATUS_UPDATE for both participants to every
// member of the game's room. Requires hub.mu and rooms.mu.
func (s *GameService) broadcastStatusLocked(game *Game, status Status) {
	if game.Channel == "" {
		return
	}

	payload := StatusUpdatePayload{Users: []UserStatusPayload{
		{UID: game.Players[0].ConnID, Status: int(status)},
		{UID: game.Players[1].ConnID, Status: int(status)},
	}}

	for _, memberID := range s.rooms.membersLocked(game.Channel, game.Room) {
		if member, ok := s.hub.conns[memberID]; ok {
			member.SendEvent(EventStatusUpdate, payload)
		}
	}
}

// runWatchdog bounds a lagging player's turn once their opponent has
// exhausted all guesses: after 10 quiet seconds a random dictionary word of
// the right length is played on their behalf. Every wake re-checks that the
// game still exists so a finalized match is never touched.
func (s *GameService) runWatchdog(gameID, connID string) {
	ticker := time.NewTicker(s.watchdogPoll)
	defer ticker.Stop()

	deadline := time.Now().Add(s.watchdogGrace)
	lastSeen := -1

	for range ticker.C {
		s.mu.Lock()
		game, ok := s.games[gameID]
		if !ok {
			s.mu.Unlock()
			return
		}

		player, _ := game.player(connID)
		if player == nil || player.Guesses >= game.Room {
			s.mu.Unlock()
			return
		}

		if player.Guesses != lastSeen {
			lastSeen = player.Guesses
			deadline = time.Now().Add(s.watchdogGrace)
		}

		var word string
		synthesize := time.Now().After(deadline)
		if synthesize {
			word, ok = s.dict.RandomWord(game.Room)
			if !ok {
				s.mu.Unlock()
				return
			}
		}
		s.mu.Unlock()

		if synthesize {
			log.Info().Str("game_id", gameID).Str("wid", connID).Str("word", word).Msg("watchdog auto-playing")
			s.CheckWord(connID, word)
			deadline = time.Now().Add(s.watchdogGrace)
			lastSeen++
		}
	}
}

// usernameLocked resolves a connection's username. Requires hub.mu.
func (s *GameService) usernameLocked(connID string) string {
	if c, ok := s.hub.conns[connID]; ok && c.User != nil {
		return c.User.Username
	}
	return ""
}

func (s *GameService) matchRecord(game *Game, winner, loser *Player, reason string) *models.MatchRecord {
	return &models.MatchRecord{
		GameID:      game.ID,
		Channel:     game.Channel,
		Room:        game.Room,
		WinnerName:  s.usernameLocked(winner.ConnID),
		LoserName:   s.usernameLocked(loser.ConnID),
		WinnerWord:  winner.Word,
		LoserWord:   loser.Word,
		WinnerScore: winner.Score,
		LoserScore:  loser.Score,
		Reason:      reason,
	}
}

func (s *GameService) saveMatch(record *models.MatchRecord) {
	if err := s.db.Create(record).Error; err != nil {
		log.Error().Err(err).Str("game_id", record.GameID).Msg("failed to persist match record")
	}
}

func (s *GameService) creditForfeit(username string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := s.redis.IncrBy(ctx, creditKeyspace+username, quitCredit).Err(); err != nil {
		log.Error().Err(err).Str("username", username).Msg("failed to credit forfeit score")
	}
}

func newGameID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
