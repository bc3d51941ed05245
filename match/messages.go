package match

import (
	"encoding/json"
	"log/slog"

	"codeduel-server/matchmaking"
	"codeduel-server/problems"
)

// Engine-to-connection wire messages for the match lifecycle.

// MatchFoundMsg announces a successful pairing; the countdown begins next.
type MatchFoundMsg struct {
	Type  string `json:"type"`
	Match *Match `json:"match"`
}

// CountdownMsg is one tick of the pre-match countdown.
type CountdownMsg struct {
	Type             string `json:"type"`
	Countdown        int    `json:"countdown"`
	OpponentName     string `json:"opponentName"`
	OpponentPhotoURL string `json:"opponentPhotoURL,omitempty"`
}

// MatchStartMsg carries the problem body; the duel is live.
type MatchStartMsg struct {
	Type     string           `json:"type"`
	Question problems.Problem `json:"question"`
	Match    *Match           `json:"match"`
}

// SolutionDeniedMsg reports a submission that did not clear the win
// threshold. The player may resubmit.
type SolutionDeniedMsg struct {
	Type     string `json:"type"`
	Score    int    `json:"score"`
	Feedback string `json:"feedback"`
}

const (
	msgMatchFound     = "MATCH_FOUND"
	msgMatchCountdown = "MATCH_COUNTDOWN"
	msgMatchStart     = "MATCH_START"
	msgSolutionDenied = "SOLUTION_DENIED"
)

func deliver(c matchmaking.Conn, v any) {
	if c == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("marshaling engine message", "tag", "match", "err", err)
		return
	}
	c.Deliver(data)
}
