package events

import "time"

// SessionRevoked tells a user's open sockets that their epoch moved on.
type SessionRevoked struct {
	UserID string    `json:"userId"`
	Epoch  int64     `json:"epoch"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// UserRoom is the fan-out room every socket of a user joins on connect.
func UserRoom(userID string) string { return "user:" + userID }
