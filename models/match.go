package models

import (
	"time"
)

// MatchRecord is the persisted outcome of one finished game. Live games are
// memory-only; a row is written best-effort when a game finalizes.
type MatchRecord struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	GameID      string    `json:"game_id" gorm:"index;not null"`
	Channel     string    `json:"channel" gorm:"not null"`
	Room        int       `json:"room" gorm:"not null"`
	WinnerName  string    `json:"winner_name" gorm:"index"`
	LoserName   string    `json:"loser_name" gorm:"index"`
	WinnerWord  string    `json:"winner_word"`
	LoserWord   string    `json:"loser_word"`
	WinnerScore int       `json:"winner_score"`
	LoserScore  int       `json:"loser_score"`
	Reason      string    `json:"reason"` // guessed, exhausted, forfeit, timeout, unconfirmed
	CreatedAt   time.Time `json:"created_at"`
}
