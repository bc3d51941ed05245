// Package match owns the per-match state machine: countdown, active play,
// submission judging and the single idempotent finalize path that settles
// ratings.
package match

import (
	"context"
	"time"
)

// Status is the lifecycle state of a match. Transitions are monotonic:
// countdown -> active -> completed.
type Status string

const (
	StatusCountdown Status = "countdown"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// EndReason records why a match reached its terminal state.
type EndReason string

const (
	EndSolution   EndReason = "solution"
	EndSurrender  EndReason = "surrender"
	EndDisconnect EndReason = "disconnect"
	EndTimeout    EndReason = "timeout"
	EndAbandoned  EndReason = "abandoned"
)

// PlayerRef identifies a participant with the rating recorded at match
// creation time. Settlement always uses these ratings, not live ones.
type PlayerRef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	PhotoURL string `json:"photoURL,omitempty"`
	Rating   int    `json:"rating"`
}

// Match is the full record of one duel.
type Match struct {
	ID              string       `json:"id"`
	Players         [2]PlayerRef `json:"players"`
	Status          Status       `json:"status"`
	Question        string       `json:"question,omitempty"`
	StartTime       time.Time    `json:"startTime"`
	TimeoutAt       time.Time    `json:"timeoutAt,omitempty"`
	Scores          [2]int       `json:"scores"`
	Solutions       [2]string    `json:"-"`
	Winner          string       `json:"winner,omitempty"`
	EndReason       EndReason    `json:"endReason,omitempty"`
	RatingChanges   [2]int       `json:"ratingChanges"`
	EndTime         time.Time    `json:"endTime,omitempty"`
	WinningSolution string       `json:"winningSolution,omitempty"`
}

// slot returns the player index for an identity, or -1.
func (m *Match) slot(userID string) int {
	for i, p := range m.Players {
		if p.ID == userID {
			return i
		}
	}
	return -1
}

// Gateway is the durable store for match and player-profile documents.
// Implementations must make FinalizeMatch conditional on the stored status
// still being active, and atomic across the match and both user profiles.
type Gateway interface {
	// EnsureUser creates the profile at the initial rating if absent and
	// returns the current rating.
	EnsureUser(ctx context.Context, id, name, photoURL string) (int, error)
	// InsertMatch writes a freshly created countdown match.
	InsertMatch(ctx context.Context, m *Match) error
	// ActivateMatch writes the countdown -> active transition.
	ActivateMatch(ctx context.Context, m *Match) error
	// RecordSubmission stores the latest score and solution text for one slot.
	RecordSubmission(ctx context.Context, matchID string, slot, score int, solution string) error
	// FinalizeMatch writes the terminal record, both players' new ratings and
	// a history entry for each, in one transaction. It must be a no-op
	// returning duelerrors.ErrMatchNotActive when the stored status is no
	// longer active.
	FinalizeMatch(ctx context.Context, m *Match, newRatings [2]int) error
	// AbandonMatch marks a match that never settled (a countdown that could
	// not reach active play) as terminal. No ratings or history are written.
	AbandonMatch(ctx context.Context, matchID string) error
}

// LiveCache mirrors in-flight match snapshots for read-side consumers.
// Best effort; the in-memory manager stays authoritative.
type LiveCache interface {
	Save(ctx context.Context, m *Match) error
	Delete(ctx context.Context, matchID string) error
}
