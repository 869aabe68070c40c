package services

import (
	"testing"
	"time"
)

func gamesCount(s *GameService) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.games)
}

func gamePlayer(t *testing.T, s *GameService, gameID, connID string) *Player {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[gameID]
	if !ok {
		t.Fatalf("game %s not found", gameID)
	}
	p, _ := game.player(connID)
	if p == nil {
		t.Fatalf("player %s not in game %s", connID, gameID)
	}
	return p
}

// Full happy path: join, request, accept, confirm, first-guess win.
func TestWinByExactGuess(t *testing.T) {
	hub, rooms, games := newTestServices(t)
	a := addConn(hub, "a", "alice")
	b := addConn(hub, "b", "bob")

	rooms.Join(a.ID, ChannelLetterless, 5)
	rooms.Join(b.ID, ChannelLetterless, 5)
	drain(a)
	drain(b)

	games.RequestGame(a.ID, b.ID)

	req := nextEvent(t, b, EventGameRequest)
	var reqPayload GameRequestPayload
	decodePayload(t, req, &reqPayload)
	if reqPayload.From.UID != "a" || reqPayload.From.Username != "alice" {
		t.Fatalf("unexpected request payload: %+v", reqPayload)
	}
	gameID := reqPayload.GameID

	games.AcceptRequest(b.ID, gameID)

	var accepted GameAcceptedPayload
	decodePayload(t, nextEvent(t, a, EventGameAccepted), &accepted)
	if accepted.Opponent.UID != "b" || accepted.Opponent.Username != "bob" {
		t.Errorf("a's opponent should be bob, got %+v", accepted.Opponent)
	}
	if accepted.Letter != "" || accepted.Index != nil {
		t.Errorf("letterless acceptance must carry no hint, got %+v", accepted)
	}
	nextEvent(t, a, EventStatusUpdate)
	nextEvent(t, b, EventGameAccepted)
	nextEvent(t, b, EventStatusUpdate)

	if a.status() != StatusPlaying || b.status() != StatusPlaying {
		t.Fatal("both connections should be playing after acceptance")
	}

	games.ConfirmWord(a.ID, gameID, "APPLE")
	nextEvent(t, a, EventConfirmedWord)

	// A cannot guess before B has confirmed.
	games.CheckWord(a.ID, "BREAD")
	if n := pendingFrames(a); n != 0 {
		t.Fatalf("guess before opponent confirmation should be silent, got %d frames", n)
	}

	games.ConfirmWord(b.ID, gameID, "BREAD")
	nextEvent(t, a, EventStartGame)
	nextEvent(t, b, EventStartGame)

	games.CheckWord(a.ID, "BREAD")

	var feedback CheckWordPayload
	decodePayload(t, nextEvent(t, a, EventCheckWord), &feedback)
	if !feedback.Valid || feedback.Row != nil {
		t.Errorf("guesser feedback should be valid with no row, got %+v", feedback)
	}
	for i, lr := range feedback.Letters {
		if lr.Status != LetterCorrect {
			t.Errorf("position %d: expected correct, got %s", i, lr.Status)
		}
	}

	decodePayload(t, nextEvent(t, b, EventCheckWord), &feedback)
	if feedback.Row == nil || *feedback.Row != 0 {
		t.Errorf("opponent feedback should carry row 0, got %+v", feedback.Row)
	}

	var won, lost GameOverPayload
	decodePayload(t, nextEvent(t, a, EventWonGame), &won)
	decodePayload(t, nextEvent(t, b, EventLoseGame), &lost)

	if won.PlayerScore != 100 || won.OtherPlayerScore != 0 || won.Winner != "alice" {
		t.Errorf("unexpected winner payload: %+v", won)
	}
	if lost.PlayerScore != 0 || lost.OtherPlayerScore != 100 || lost.Winner != "alice" {
		t.Errorf("unexpected loser payload: %+v", lost)
	}
	if won.PlayerWord != "APPLE" || won.OtherPlayerWord != "BREAD" {
		t.Errorf("winner words mismatched: %+v", won)
	}
	if lost.PlayerWord != "BREAD" || lost.OtherPlayerWord != "APPLE" {
		t.Errorf("loser words mismatched: %+v", lost)
	}

	nextEvent(t, a, EventStatusUpdate)
	nextEvent(t, b, EventStatusUpdate)

	if games.HasGame(gameID) {
		t.Error("finished game must leave the table")
	}
	if a.status() != StatusOnline || b.status() != StatusOnline {
		t.Error("both connections should be back online")
	}
}

func TestRequestGameNoOps(t *testing.T) {
	hub, rooms, games := newTestServices(t)
	a := addConn(hub, "a", "alice")
	b := addConn(hub, "b", "bob")

	// Not in a room yet.
	games.RequestGame(a.ID, b.ID)
	if gamesCount(games) != 0 {
		t.Error("request outside a room should not create a game")
	}

	rooms.Join(a.ID, ChannelLetterless, 5)
	drain(a)

	games.RequestGame(a.ID, "ghost")
	games.RequestGame(a.ID, a.ID)
	games.RequestGame("ghost", b.ID)

	if gamesCount(games) != 0 {
		t.Error("invalid targets should not create games")
	}
	if pendingFrames(a) != 0 || pendingFrames(b) != 0 {
		t.Error("invalid requests should be silent")
	}
}

func TestDeclineRequest(t *testing.T) {
	hub, rooms, games := newTestServices(t)
	a := addConn(hub, "a", "alice")
	b := addConn(hub, "b", "bob")

	rooms.Join(a.ID, ChannelLetterless, 5)
	rooms.Join(b.ID, ChannelLetterless, 5)
	drain(a)
	drain(b)
	games.RequestGame(a.ID, b.ID)

	var req GameRequestPayload
	decodePayload(t, nextEvent(t, b, EventGameRequest), &req)

	games.DeclineRequest(b.ID, req.GameID)

	nextEvent(t, a, EventGameRejected)
	nextEvent(t, b, EventGameRejected)

	if games.HasGame(req.GameID) {
		t.Error("declined game must be removed")
	}

	// Stale id afterwards: everything is a no-op.
	games.AcceptRequest(b.ID, req.GameID)
	games.DeclineRequest(b.ID, req.GameID)
	games.ConfirmWord(a.ID, req.GameID, "APPLE")
	if pendingFrames(a) != 0 || pendingFrames(b) != 0 {
		t.Error("operations on a removed game should be silent")
	}
}

func TestLetteredAcceptSharesHint(t *testing.T) {
	hub, rooms, games := newTestServices(t)
	a := addConn(hub, "a", "alice")
	b := addConn(hub, "b", "bob")

	rooms.Join(a.ID, ChannelLettered, 4)
	rooms.Join(b.ID, ChannelLettered, 4)
	drain(a)
	drain(b)
	games.RequestGame(a.ID, b.ID)

	var req GameRequestPayload
	decodePayload(t, nextEvent(t, b, EventGameRequest), &req)

	games.AcceptRequest(b.ID, req.GameID)

	var forA, forB GameAcceptedPayload
	decodePayload(t, nextEvent(t, a, EventGameAccepted), &forA)
	decodePayload(t, nextEvent(t, b, EventGameAccepted), &forB)

	if forA.Letter == "" || forA.Index == nil {
		t.Fatalf("lettered acceptance must carry a hint, got %+v", forA)
	}
	if forA.Letter != forB.Letter || *forA.Index != *forB.Index {
		t.Errorf("hint must be shared: a=%+v b=%+v", forA, forB)
	}
	if *forA.Index < 0 || *forA.Index >= 4 {
		t.Errorf("hint index out of range: %d", *forA.Index)
	}
}

func TestConfirmWordValidation(t *testing.T) {
	hub, rooms, games := newTestServices(t)
	a := addConn(hub, "a", "alice")
	b := addConn(hub, "b", "bob")

	gameID := startPlayingGame(t, hub, rooms, games, a, b, ChannelLetterless, 4)

	games.ConfirmWord(a.ID, gameID, "APPLE") // wrong length
	games.ConfirmWord(a.ID, gameID, "ZZZZ")  // not in dictionary
	if pendingFrames(a) != 0 {
		t.Fatal("invalid confirmations should be silent")
	}
	if gamePlayer(t, games, gameID, a.ID).Word != "" {
		t.Fatal("no word should be stored")
	}

	// Fixed-letter constraint.
	games.mu.Lock()
	for _, p := range games.games[gameID].Players {
		p.Hint = &LetterHint{Letter: "A", Index: 0}
	}
	games.mu.Unlock()

	games.ConfirmWord(a.ID, gameID, "LOLA")
	if pendingFrames(a) != 0 || gamePlayer(t, games, gameID, a.ID).Word != "" {
		t.Fatal("hint-violating word should be rejected")
	}

	games.ConfirmWord(a.ID, gameID, "able")
	nextEvent(t, a, EventConfirmedWord)
	if gamePlayer(t, games, gameID, a.ID).Word != "ABLE" {
		t.Fatal("confirmed word should be stored upper-cased")
	}

	// Repeated confirmation is rejected.
	games.ConfirmWord(a.ID, gameID, "ALLI")
	if pendingFrames(a) != 0 || gamePlayer(t, games, gameID, a.ID).Word != "ABLE" {
		t.Fatal("second confirmation should be a no-op")
	}
}

func TestConfirmWordWindowExpires(t *testing.T) {
	hub, rooms, games := newTestServices(t)
	a := addConn(hub, "a", "alice")
	b := addConn(hub, "b", "bob")

	gameID := startPlayingGame(t, hub, rooms, games, a, b, ChannelLetterless, 4)

	games.mu.Lock()
	games.games[gameID].Timestamp = time.Now().Add(-61 * time.Second)
	games.mu.Unlock()

	games.ConfirmWord(a.ID, gameID, "ABLE")

	if pendingFrames(a) != 0 {
		t.Error("confirmation after the window should be silent")
	}
	if gamePlayer(t, games, gameID, a.ID).Word != "" {
		t.Error("no word should be stored after the window")
	}
}

func TestGuessCap(t *testing.T) {
	hub, rooms, games := newTestServices(t)
	a := addConn(hub, "a", "alice")
	b := addConn(hub, "b", "bob")

	gameID := startPlayingGame(t, hub, rooms, games, a, b, ChannelLetterless, 4)
	confirmBoth(t, games, gameID, a, "ABLE", b, "ALLI")

	for i := 0; i < 4; i++ {
		games.CheckWord(a.ID, "DODO")
	}
	drain(a)
	drain(b)

	games.CheckWord(a.ID, "DODO")

	if pendingFrames(a) != 0 || pendingFrames(b) != 0 {
		t.Error("a guess beyond the cap should produce no feedback")
	}
	if got := gamePlayer(t, games, gameID, a.ID).Guesses; got != 4 {
		t.Errorf("guess count should stay at the cap, got %d", got)
	}
}

func TestInvalidGuessOnlyAnswersGuesser(t *testing.T) {
	hub, rooms, games := newTestServices(t)
	a := addConn(hub, "a", "alice")
	b := addConn(hub, "b", "bob")

	gameID := startPlayingGame(t, hub, rooms, games, a, b, ChannelLetterless, 4)
	confirmBoth(t, games, gameID, a, "ABLE", b, "ALLI")

	games.CheckWord(a.ID, "XXXX")

	var feedback CheckWordPayload
	decodePayload(t, nextEvent(t, a, EventCheckWord), &feedback)
	if feedback.Valid || len(feedback.Letters) != 0 {
		t.Errorf("expected an invalid result, got %+v", feedback)
	}
	if pendingFrames(b) != 0 {
		t.Error("the opponent must not see invalid guesses")
	}
	if got := gamePlayer(t, games, gameID, a.ID).Guesses; got != 0 {
		t.Errorf("invalid guesses must not consume the budget, got %d", got)
	}
}

// Guesses are validated against the dictionary bucket for their own length,
// not the room's, so a known word of another length is evaluated against the
// mismatched secret and consumes a guess.
func TestGuessOfOtherLengthStillEvaluates(t *testing.T) {
	hub, rooms, games := newTestServices(t)
	a := addConn(hub, "a", "alice")
	b := addConn(hub, "b", "bob")

	gameID := startPlayingGame(t, hub, rooms, games, a, b, ChannelLetterless, 4)
	confirmBoth(t, games, gameID, a, "ABLE", b, "ALLI")

	games.CheckWord(a.ID, "APPLE")

	var feedback CheckWordPayload
	decodePayload(t, nextEvent(t, a, EventCheckWord), &feedback)
	if !feedback.Valid || len(feedback.Letters) != 5 {
		t.Errorf("expected a 5-letter evaluation, got %+v", feedback)
	}
	nextEvent(t, b, EventCheckWord)

	if got := gamePlayer(t, games, gameID, a.ID).Guesses; got != 1 {
		t.Errorf("the guess should be consumed, got %d", got)
	}
	if !games.HasGame(gameID) {
		t.Error("game should still be running")
	}
}

func TestExhaustionScoringWin(t *testing.T) {
	hub, rooms, games := newTestServices(t)
	a := addConn(hub, "a", "alice")
	b := addConn(hub, "b", "bob")

	gameID := startPlayingGame(t, hub, rooms, games, a, b, ChannelLetterless, 4)
	confirmBoth(t, games, gameID, a, "ABLE", b, "ALLI")

	for i := 0; i < 4; i++ {
		games.CheckWord(a.ID, "DODO")
	}

	drain(b)
	// B's final guess earns 2 correct + 2 present against ABLE.
	for i := 0; i < 3; i++ {
		games.CheckWord(b.ID, "DODO")
	}
	drain(a)
	drain(b)
	games.CheckWord(b.ID, "BALE")

	nextEvent(t, b, EventCheckWord)
	nextEvent(t, a, EventCheckWord)

	var forB, forA GameOverPayload
	decodePayload(t, nextEvent(t, b, EventWonGame), &forB)
	decodePayload(t, nextEvent(t, a, EventLoseGame), &forA)

	if forB.PlayerScore != 30 || forB.OtherPlayerScore != 0 || forB.Winner != "bob" {
		t.Errorf("unexpected winner payload: %+v", forB)
	}
	if forA.PlayerScore != 0 || forA.OtherPlayerScore != 30 || forA.Winner != "bob" {
		t.Errorf("unexpected loser payload: %+v", forA)
	}
	if games.HasGame(gameID) {
		t.Error("scored game must leave the table")
	}
}

// Equal exhaustion scores resolve asymmetrically: each side is compared with
// strict greater-than, so both players receive LOSE_GAME naming the opponent.
func TestExhaustionTieIsAsymmetric(t *testing.T) {
	hub, rooms, games := newTestServices(t)
	a := addConn(hub, "a", "alice")
	b := addConn(hub, "b", "bob")

	gameID := startPlayingGame(t, hub, rooms, games, a, b, ChannelLetterless, 4)
	confirmBoth(t, games, gameID, a, "ABLE", b, "ALLI")

	for i := 0; i < 4; i++ {
		games.CheckWord(a.ID, "DODO")
	}
	for i := 0; i < 3; i++ {
		games.CheckWord(b.ID, "DODO")
	}
	drain(a)
	drain(b)
	games.CheckWord(b.ID, "DODO")

	nextEvent(t, b, EventCheckWord)
	nextEvent(t, a, EventCheckWord)

	var forA, forB GameOverPayload
	decodePayload(t, nextEvent(t, a, EventLoseGame), &forA)
	decodePayload(t, nextEvent(t, b, EventLoseGame), &forB)

	if forA.PlayerScore != 0 || forA.OtherPlayerScore != 0 {
		t.Errorf("expected a 0-0 tie, got %+v", forA)
	}
	if forA.Winner != "bob" {
		t.Errorf("a's frame must name bob as winner, got %q", forA.Winner)
	}
	if forB.Winner != "alice" {
		t.Errorf("b's frame must name alice as winner, got %q", forB.Winner)
	}
	if games.HasGame(gameID) {
		t.Error("tied game must leave the table")
	}
}

func TestCheckWordExistsRestartsWindow(t *testing.T) {
	hub, rooms, games := newTestServices(t)
	a := addConn(hub, "a", "alice")
	b := addConn(hub, "b", "bob")

	gameID := startPlayingGame(t, hub, rooms, games, a, b, ChannelLetterless, 4)
	games.ConfirmWord(a.ID, gameID, "ABLE")
	drain(a)

	games.mu.Lock()
	games.games[gameID].Timestamp = time.Now().Add(-61 * time.Second)
	games.mu.Unlock()

	games.CheckWordExists(a.ID)

	nextEvent(t, a, EventTryAgain)

	games.mu.Lock()
	restarted := time.Since(games.games[gameID].Timestamp) < time.Second
	games.mu.Unlock()
	if !restarted {
		t.Error("the confirmation window should restart")
	}
	if games.HasGame(gameID) != true {
		t.Error("game should still exist")
	}
}

func TestCheckWordExistsFinalizesWhenOpponentConfirmed(t *testing.T) {
	hub, rooms, games := newTestServices(t)
	a := addConn(hub, "a", "alice")
	b := addConn(hub, "b", "bob")

	gameID := startPlayingGame(t, hub, rooms, games, a, b, ChannelLetterless, 4)
	games.ConfirmWord(b.ID, gameID, "ALLI")
	drain(b)

	games.CheckWordExists(a.ID)

	var forA, forB GameOverPayload
	decodePayload(t, nextEvent(t, a, EventLoseGame), &forA)
	decodePayload(t, nextEvent(t, b, EventWonGame), &forB)

	if forA.PlayerWord != "" || forA.OtherPlayerWord != "ALLI" || forA.Winner != "bob" {
		t.Errorf("unexpected loser payload: %+v", forA)
	}
	if forB.PlayerWord != "ALLI" || forB.PlayerScore != 100 || forB.Winner != "bob" {
		t.Errorf("unexpected winner payload: %+v", forB)
	}
	if games.HasGame(gameID) {
		t.Error("game must be finalized")
	}
	if a.status() != StatusOnline || b.status() != StatusOnline {
		t.Error("both connections should be back online")
	}
}

func TestTimeIsUp(t *testing.T) {
	hub, rooms, games := newTestServices(t)
	a := addConn(hub, "a", "alice")
	b := addConn(hub, "b", "bob")

	gameID := startPlayingGame(t, hub, rooms, games, a, b, ChannelLetterless, 4)
	confirmBoth(t, games, gameID, a, "ABLE", b, "ALLI")

	games.TimeIsUp(a.ID)

	var forA, forB GameOverPayload
	decodePayload(t, nextEvent(t, a, EventLoseGame), &forA)
	decodePayload(t, nextEvent(t, b, EventWonGame), &forB)

	if forA.Winner != "bob" || forA.PlayerScore != 0 || forA.OtherPlayerScore != 100 {
		t.Errorf("unexpected loser payload: %+v", forA)
	}
	if forB.Winner != "bob" || forB.PlayerScore != 100 {
		t.Errorf("unexpected winner payload: %+v", forB)
	}
	if games.HasGame(gameID) {
		t.Error("game must be finalized")
	}
}

// Time-is-up only inspects the caller's own guess count.
func TestTimeIsUpNoOpWhenCallerExhausted(t *testing.T) {
	hub, rooms, games := newTestServices(t)
	a := addConn(hub, "a", "alice")
	b := addConn(hub, "b", "bob")

	gameID := startPlayingGame(t, hub, rooms, games, a, b, ChannelLetterless, 4)
	confirmBoth(t, games, gameID, a, "ABLE", b, "ALLI")

	for i := 0; i < 4; i++ {
		games.CheckWord(a.ID, "DODO")
	}
	drain(a)
	drain(b)

	games.TimeIsUp(a.ID)

	if pendingFrames(a) != 0 || pendingFrames(b) != 0 {
		t.Error("time-is-up from an exhausted caller should be silent")
	}
	if !games.HasGame(gameID) {
		t.Error("game should still be running")
	}
}

func TestQuitForfeitsGame(t *testing.T) {
	hub, rooms, games := newTestServices(t)
	a := addConn(hub, "a", "alice")
	b := addConn(hub, "b", "bob")

	gameID := startPlayingGame(t, hub, rooms, games, a, b, ChannelLetterless, 4)
	confirmBoth(t, games, gameID, a, "ABLE", b, "ALLI")

	games.Quit(a.ID)

	var forA, forB GameOverPayload
	decodePayload(t, nextEvent(t, a, EventLoseGame), &forA)
	decodePayload(t, nextEvent(t, b, EventWonGame), &forB)

	if forA.Winner != "bob" || forB.Winner != "bob" {
		t.Errorf("bob should win the forfeit: a=%+v b=%+v", forA, forB)
	}
	if games.HasGame(gameID) {
		t.Error("forfeited game must leave the table")
	}
	if a.status() != StatusOnline || b.status() != StatusOnline {
		t.Error("both connections should be back online")
	}
}

func TestWatchdogAutoPlays(t *testing.T) {
	hub, rooms, games := newTestServices(t)
	games.watchdogGrace = 50 * time.Millisecond
	games.watchdogPoll = 10 * time.Millisecond

	a := addConn(hub, "a", "alice")
	b := addConn(hub, "b", "bob")

	gameID := startPlayingGame(t, hub, rooms, games, a, b, ChannelLetterless, 4)
	confirmBoth(t, games, gameID, a, "ABLE", b, "ALLI")

	for i := 0; i < 4; i++ {
		games.CheckWord(a.ID, "DODO")
	}

	// The watchdog drives B to the cap (or to an accidental win); either way
	// the game must finalize without any input from B.
	deadline := time.Now().Add(3 * time.Second)
	for games.HasGame(gameID) && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if games.HasGame(gameID) {
		t.Fatal("watchdog should have finalized the stalled game")
	}
	if a.status() != StatusOnline || b.status() != StatusOnline {
		t.Error("both connections should be back online")
	}
}
