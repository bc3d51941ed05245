package match

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"codeduel-server/config"
	"codeduel-server/duelerrors"
	"codeduel-server/judge"
	"codeduel-server/matchmaking"
	"codeduel-server/problems"
	"codeduel-server/rating"
)

const storeOpTimeout = 10 * time.Second

// Manager owns every non-terminal match. It is the single entry point for
// all lifecycle triggers: pairing, countdown expiry, submissions, surrender,
// disconnects and duel timeouts.
type Manager struct {
	cfg     *config.Config
	store   Gateway
	cache   LiveCache
	judge   judge.Judge
	catalog *problems.Catalog

	mu       sync.Mutex
	duels    map[string]*duel
	byPlayer map[string]string
}

// duel is one in-flight match plus its connections and timer handles.
// Its mutex is the per-match exclusion scope for the finalize guard.
type duel struct {
	mu    sync.Mutex
	m     Match
	conns [2]matchmaking.Conn

	countdownCancel chan struct{}
	timeoutCancel   chan struct{}
}

// Outcome describes a terminal condition handed to Finalize.
type Outcome struct {
	Reason          EndReason
	Winner          string // empty for timeout
	WinningSolution string
}

// NewManager creates a match manager. cache may be nil.
func NewManager(cfg *config.Config, store Gateway, cache LiveCache, j judge.Judge, catalog *problems.Catalog) *Manager {
	return &Manager{
		cfg:      cfg,
		store:    store,
		cache:    cache,
		judge:    j,
		catalog:  catalog,
		duels:    make(map[string]*duel),
		byPlayer: make(map[string]string),
	}
}

// Create starts a new match in countdown for a freshly paired couple.
// Implements matchmaking.Creator.
func (mgr *Manager) Create(a, b *matchmaking.Entry) {
	d := &duel{
		m: Match{
			ID: uuid.NewString(),
			Players: [2]PlayerRef{
				{ID: a.ID, Name: a.Name, PhotoURL: a.PhotoURL, Rating: a.Rating},
				{ID: b.ID, Name: b.Name, PhotoURL: b.PhotoURL, Rating: b.Rating},
			},
			Status:    StatusCountdown,
			StartTime: time.Now(),
		},
		conns: [2]matchmaking.Conn{a.Conn, b.Conn},
	}

	// A player may hold at most one live duel. The pool cannot contain a
	// player whose duel is still live, so a hit here means a bookkeeping
	// bug upstream; refusing keeps the byPlayer index consistent.
	mgr.mu.Lock()
	if prev, ok := mgr.byPlayer[a.ID]; ok {
		mgr.mu.Unlock()
		slog.Error("refusing pairing, player has a live duel", "tag", "match", "player", a.ID, "match", prev)
		return
	}
	if prev, ok := mgr.byPlayer[b.ID]; ok {
		mgr.mu.Unlock()
		slog.Error("refusing pairing, player has a live duel", "tag", "match", "player", b.ID, "match", prev)
		return
	}
	mgr.duels[d.m.ID] = d
	mgr.byPlayer[a.ID] = d.m.ID
	mgr.byPlayer[b.ID] = d.m.ID
	mgr.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
	defer cancel()
	if err := mgr.store.InsertMatch(ctx, &d.m); err != nil {
		slog.Error("persisting new match", "tag", "match", "match", d.m.ID, "err", err)
	}
	go mgr.saveSnapshot(d.m)

	slog.Info("match created", "tag", "match", "match", d.m.ID, "p0", a.ID, "p1", b.ID)

	found := MatchFoundMsg{Type: msgMatchFound, Match: &d.m}
	deliver(d.conns[0], found)
	deliver(d.conns[1], found)

	mgr.startCountdown(d)
}

// startCountdown broadcasts one tick per interval, then promotes the match
// to active. The ticker is cancellable via the duel's countdown handle.
func (mgr *Manager) startCountdown(d *duel) {
	d.mu.Lock()
	d.countdownCancel = make(chan struct{})
	cancel := d.countdownCancel
	d.mu.Unlock()

	interval := time.Duration(mgr.cfg.CountdownIntervalMS) * time.Millisecond
	remaining := mgr.cfg.CountdownTicks

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				for i := 0; i < 2; i++ {
					opp := d.m.Players[1-i]
					deliver(d.conns[i], CountdownMsg{
						Type:             msgMatchCountdown,
						Countdown:        remaining,
						OpponentName:     opp.Name,
						OpponentPhotoURL: opp.PhotoURL,
					})
				}
				remaining--
				if remaining <= 0 {
					mgr.start(d)
					return
				}
			case <-cancel:
				return
			}
		}
	}()
}

// start promotes a countdown match to active: selects a problem, stamps the
// clock, persists, broadcasts MATCH_START and arms the duel timeout.
func (mgr *Manager) start(d *duel) {
	prob, err := mgr.catalog.RandomEligible(mgr.cfg.MaxProblemRating)
	if err != nil {
		slog.Error("selecting problem", "tag", "match", "match", d.m.ID, "err", err)
		mgr.abandon(d)
		return
	}

	duelDuration := time.Duration(mgr.cfg.DuelDurationSec) * time.Second
	grace := time.Duration(mgr.cfg.DuelGraceMS) * time.Millisecond

	d.mu.Lock()
	if d.m.Status != StatusCountdown {
		d.mu.Unlock()
		return
	}
	now := time.Now()
	d.m.Status = StatusActive
	d.m.Question = prob.Slug
	d.m.StartTime = now
	d.m.TimeoutAt = now.Add(duelDuration + grace)
	d.m.Scores = [2]int{}
	d.countdownCancel = nil
	d.timeoutCancel = make(chan struct{})
	cancel := d.timeoutCancel
	snapshot := d.m
	d.mu.Unlock()

	ctx, ctxCancel := context.WithTimeout(context.Background(), storeOpTimeout)
	defer ctxCancel()
	if err := mgr.store.ActivateMatch(ctx, &snapshot); err != nil {
		slog.Error("persisting match start", "tag", "match", "match", snapshot.ID, "err", err)
	}
	go mgr.saveSnapshot(snapshot)

	slog.Info("match started", "tag", "match", "match", snapshot.ID, "question", prob.Slug)

	startMsg := MatchStartMsg{Type: msgMatchStart, Question: prob, Match: &snapshot}
	deliver(d.conns[0], startMsg)
	deliver(d.conns[1], startMsg)

	matchID := snapshot.ID
	go func() {
		select {
		case <-time.After(duelDuration):
			if err := mgr.Finalize(matchID, Outcome{Reason: EndTimeout}); err != nil {
				slog.Error("timeout finalize", "tag", "match", "match", matchID, "err", err)
			}
		case <-cancel:
		}
	}()
}

// HandleSolution judges a submission for the given player. A winning score
// finalizes the match; anything else (including judge failure) notifies only
// the submitter and leaves the match unchanged.
func (mgr *Manager) HandleSolution(userID, matchID, solution string) error {
	d := mgr.lookup(matchID)
	if d == nil {
		return duelerrors.ErrMatchNotFound
	}

	d.mu.Lock()
	slot := d.m.slot(userID)
	if slot < 0 {
		d.mu.Unlock()
		return duelerrors.ErrMatchNotFound
	}
	if d.m.Status != StatusActive {
		d.mu.Unlock()
		return duelerrors.ErrMatchNotActive
	}
	questionSlug := d.m.Question
	conn := d.conns[slot]
	d.mu.Unlock()

	prob, ok := mgr.catalog.BySlug(questionSlug)
	if !ok {
		slog.Error("active match references unknown problem", "tag", "match", "match", matchID, "slug", questionSlug)
		return duelerrors.ErrMatchNotFound
	}

	judgeCtx, cancel := context.WithTimeout(context.Background(), time.Duration(mgr.cfg.JudgeTimeoutMS)*time.Millisecond)
	defer cancel()
	res, err := mgr.judge.Score(judgeCtx, solution, prob.Body)
	if err != nil {
		slog.Warn("judge call failed", "tag", "match", "match", matchID, "err", err)
		deliver(conn, SolutionDeniedMsg{
			Type:     msgSolutionDenied,
			Score:    0,
			Feedback: "The judge could not evaluate your solution. Please try again.",
		})
		return nil
	}

	// The match may have finalized while the judge was thinking.
	d.mu.Lock()
	if d.m.Status != StatusActive {
		d.mu.Unlock()
		return duelerrors.ErrMatchNotActive
	}
	d.m.Scores[slot] = res.Score
	d.m.Solutions[slot] = solution
	snapshot := d.m
	d.mu.Unlock()

	storeCtx, storeCancel := context.WithTimeout(context.Background(), storeOpTimeout)
	if err := mgr.store.RecordSubmission(storeCtx, matchID, slot, res.Score, solution); err != nil {
		slog.Error("persisting submission", "tag", "match", "match", matchID, "err", err)
	}
	storeCancel()
	go mgr.saveSnapshot(snapshot)

	if res.Score >= mgr.cfg.WinThreshold {
		return mgr.Finalize(matchID, Outcome{
			Reason:          EndSolution,
			Winner:          userID,
			WinningSolution: solution,
		})
	}

	deliver(conn, SolutionDeniedMsg{Type: msgSolutionDenied, Score: res.Score, Feedback: res.Feedback})
	return nil
}

// HandleSurrender finalizes the match with the opponent as winner.
func (mgr *Manager) HandleSurrender(userID, matchID string) error {
	d := mgr.lookup(matchID)
	if d == nil {
		return duelerrors.ErrMatchNotFound
	}

	d.mu.Lock()
	slot := d.m.slot(userID)
	if slot < 0 {
		d.mu.Unlock()
		return duelerrors.ErrMatchNotFound
	}
	if d.m.Status != StatusActive {
		d.mu.Unlock()
		return duelerrors.ErrMatchNotActive
	}
	winner := d.m.Players[1-slot].ID
	d.mu.Unlock()

	return mgr.Finalize(matchID, Outcome{Reason: EndSurrender, Winner: winner})
}

// HandleDisconnect settles the identity's live match, if any. An active
// match finalizes with the opponent as winner; a countdown match is
// abandoned with no rating effect, freeing both players to queue again.
func (mgr *Manager) HandleDisconnect(userID string) {
	mgr.mu.Lock()
	matchID := mgr.byPlayer[userID]
	mgr.mu.Unlock()
	if matchID == "" {
		return
	}
	d := mgr.lookup(matchID)
	if d == nil {
		return
	}

	d.mu.Lock()
	slot := d.m.slot(userID)
	status := d.m.Status
	var winner string
	if slot >= 0 {
		winner = d.m.Players[1-slot].ID
	}
	d.mu.Unlock()

	if slot < 0 {
		return
	}
	switch status {
	case StatusCountdown:
		mgr.abandon(d)
	case StatusActive:
		if err := mgr.Finalize(matchID, Outcome{Reason: EndDisconnect, Winner: winner}); err != nil {
			slog.Error("disconnect finalize", "tag", "match", "match", matchID, "err", err)
		}
	}
}

// Finalize is the single idempotent completion path. The per-match lock makes
// the status check and terminal write one atomic step: when two triggers
// race, exactly one writes the terminal state and the other no-ops.
func (mgr *Manager) Finalize(matchID string, out Outcome) error {
	d := mgr.lookup(matchID)
	if d == nil {
		return duelerrors.ErrMatchNotFound
	}

	d.mu.Lock()
	if d.m.Status != StatusActive {
		d.mu.Unlock()
		return nil
	}

	winnerIdx := -1
	if out.Winner != "" {
		winnerIdx = d.m.slot(out.Winner)
	}

	// Timeout ends the duel with no winner and no rating movement; every
	// other reason settles symmetric Elo deltas from the ratings recorded
	// at match creation.
	var deltas [2]int
	newRatings := [2]int{d.m.Players[0].Rating, d.m.Players[1].Rating}
	if out.Reason != EndTimeout {
		for i := range deltas {
			deltas[i] = rating.Delta(d.m.Players[i].Rating, d.m.Players[1-i].Rating, i == winnerIdx)
			newRatings[i] = rating.Apply(d.m.Players[i].Rating, deltas[i], mgr.cfg.MinRating)
		}
	}

	d.m.Status = StatusCompleted
	d.m.Winner = out.Winner
	d.m.EndReason = out.Reason
	d.m.RatingChanges = deltas
	d.m.EndTime = time.Now()
	d.m.WinningSolution = out.WinningSolution
	snapshot := d.m

	ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
	err := mgr.store.FinalizeMatch(ctx, &snapshot, newRatings)
	cancel()
	if err != nil && !errors.Is(err, duelerrors.ErrMatchNotActive) {
		// Roll back so the next trigger can retry through the same guard.
		d.m.Status = StatusActive
		d.m.Winner = ""
		d.m.EndReason = ""
		d.m.RatingChanges = [2]int{}
		d.m.EndTime = time.Time{}
		d.m.WinningSolution = ""
		d.mu.Unlock()
		slog.Error("finalize persistence failed", "tag", "match", "match", matchID, "err", err)
		return err
	}

	d.cancelTimersLocked()
	conns := d.conns
	players := [2]string{d.m.Players[0].ID, d.m.Players[1].ID}
	d.mu.Unlock()

	mgr.removeDuel(matchID, players)

	if mgr.cache != nil {
		cacheCtx, cacheCancel := context.WithTimeout(context.Background(), storeOpTimeout)
		if err := mgr.cache.Delete(cacheCtx, matchID); err != nil {
			slog.Warn("dropping live snapshot", "tag", "match", "match", matchID, "err", err)
		}
		cacheCancel()
	}

	slog.Info("match finalized", "tag", "match",
		"match", matchID, "reason", string(out.Reason), "winner", out.Winner,
		"delta0", snapshot.RatingChanges[0], "delta1", snapshot.RatingChanges[1])

	// The duel is over; a fresh connection is required to queue again.
	for _, c := range conns {
		if c != nil {
			c.Close()
		}
	}
	return nil
}

// InFlight returns the number of non-terminal matches.
func (mgr *Manager) InFlight() int {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	return len(mgr.duels)
}

func (mgr *Manager) lookup(matchID string) *duel {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	return mgr.duels[matchID]
}

// abandon tears down a match that never reached active play. No ratings
// move, but the persisted row is closed out so it does not linger in
// countdown forever.
func (mgr *Manager) abandon(d *duel) {
	d.mu.Lock()
	if d.m.Status == StatusCompleted {
		d.mu.Unlock()
		return
	}
	d.m.Status = StatusCompleted
	d.m.EndReason = EndAbandoned
	d.m.EndTime = time.Now()
	d.cancelTimersLocked()
	conns := d.conns
	players := [2]string{d.m.Players[0].ID, d.m.Players[1].ID}
	matchID := d.m.ID
	d.mu.Unlock()

	mgr.removeDuel(matchID, players)

	ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
	if err := mgr.store.AbandonMatch(ctx, matchID); err != nil {
		slog.Error("persisting abandoned match", "tag", "match", "match", matchID, "err", err)
	}
	cancel()
	if mgr.cache != nil {
		cacheCtx, cacheCancel := context.WithTimeout(context.Background(), storeOpTimeout)
		if err := mgr.cache.Delete(cacheCtx, matchID); err != nil {
			slog.Warn("dropping live snapshot", "tag", "match", "match", matchID, "err", err)
		}
		cacheCancel()
	}

	slog.Info("match abandoned", "tag", "match", "match", matchID)

	for _, c := range conns {
		if c != nil {
			c.Close()
		}
	}
}

// removeDuel drops the duel from the indexes. byPlayer entries are removed
// only while they still point at this match, so a player's newer duel is
// never unindexed by an older one completing.
func (mgr *Manager) removeDuel(matchID string, players [2]string) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	delete(mgr.duels, matchID)
	for _, p := range players {
		if mgr.byPlayer[p] == matchID {
			delete(mgr.byPlayer, p)
		}
	}
}

func (d *duel) cancelTimersLocked() {
	if d.countdownCancel != nil {
		close(d.countdownCancel)
		d.countdownCancel = nil
	}
	if d.timeoutCancel != nil {
		close(d.timeoutCancel)
		d.timeoutCancel = nil
	}
}

func (mgr *Manager) saveSnapshot(m Match) {
	if mgr.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
	defer cancel()
	if err := mgr.cache.Save(ctx, &m); err != nil {
		slog.Warn("saving live snapshot", "tag", "match", "match", m.ID, "err", err)
	}
}
