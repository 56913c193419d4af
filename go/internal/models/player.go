package models

import "time"

// MaxPlayerNameLength is the longest display name a player may use.
const MaxPlayerNameLength = 50

// Default avatars used when a player does not pick one.
const (
	DefaultDealerAvatar = "🎩"
	DefaultPlayerAvatar = "🙂"
)

// Player is a participant in a planning poker session.
type Player struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Avatar      string    `json:"avatar"`
	IsDealer    bool      `json:"isDealer"`
	IsConnected bool      `json:"isConnected"`
	JoinedAt    time.Time `json:"joinedAt"`
}
