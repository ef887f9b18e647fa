package models

import "time"

// User is a known identity. Credentials live with the auth collaborator.
type User struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// Friendship is one symmetric edge. UserA always sorts before UserB.
type Friendship struct {
	UserA     string    `json:"user_a"`
	UserB     string    `json:"user_b"`
	CreatedAt time.Time `json:"created_at"`
}

// CanonicalPair orders two identities the way friendship rows store them.
func CanonicalPair(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}

// Other returns the participant of the edge that is not userID.
func (f Friendship) Other(userID string) string {
	if f.UserA == userID {
		return f.UserB
	}
	return f.UserA
}
