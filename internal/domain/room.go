package domain

import (
	"slices"
	"strings"
	"time"
)

var defaultValidSizes = []string{"1", "2", "3", "5", "8", "13", "20", "?", "∞"}

// DefaultValidSizes returns the vote tokens every new room starts with.
func DefaultValidSizes() []string {
	return slices.Clone(defaultValidSizes)
}

// Room is a voting session and, when loaded in full, its participants.
type Room struct {
	RoomID       string
	HostKey      string
	ValidSizes   []string
	IsRevealed   bool
	CreatedOn    time.Time
	UpdatedOn    time.Time
	Participants []Participant
}

// Participant is one voter inside a room.
type Participant struct {
	RoomID    string
	UserKey   string
	UserID    string
	Username  string
	Vote      string
	CreatedOn time.Time
	UpdatedOn time.Time
}

// HasVoted reports whether the participant currently holds a vote.
func (p Participant) HasVoted() bool {
	return p.Vote != ""
}

// Connection marks a live transport session.
type Connection struct {
	ConnectionID string
	ConnectedOn  time.Time
}

// JoinSizes encodes vote tokens in their persisted space-delimited form.
func JoinSizes(sizes []string) string {
	return strings.Join(sizes, " ")
}

// SplitSizes decodes the persisted form produced by JoinSizes.
func SplitSizes(s string) []string {
	return strings.Fields(s)
}

// ValidVote reports whether vote is an allowed value for a room with the
// given sizes. The empty string clears a vote and is always allowed.
func ValidVote(sizes []string, vote string) bool {
	return vote == "" || slices.Contains(sizes, vote)
}
