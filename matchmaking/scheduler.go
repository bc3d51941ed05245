package matchmaking

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"codeduel-server/config"
)

// Creator receives paired players. Implemented by the match manager.
type Creator interface {
	Create(a, b *Entry)
}

// Scheduler scans the pool on a fixed period and pairs compatible players.
// Adjacent pairing over the rating-sorted snapshot approximates minimal total
// rating-gap pairing; the window widens with the longer wait of the two
// candidates so nobody waits forever in a thin population.
type Scheduler struct {
	pool      *Pool
	creator   Creator
	interval  time.Duration
	baseDiff  float64
	waitScale float64

	// now is replaceable in tests.
	now func() time.Time
}

// NewScheduler creates a scheduler over pool, handing pairs to creator.
func NewScheduler(cfg *config.Config, pool *Pool, creator Creator) *Scheduler {
	return &Scheduler{
		pool:      pool,
		creator:   creator,
		interval:  time.Duration(cfg.MatchmakingIntervalMS) * time.Millisecond,
		baseDiff:  float64(cfg.BaseRatingDiff),
		waitScale: float64(cfg.WaitScaleMS) * float64(time.Millisecond),
		now:       time.Now,
	}
}

// Run ticks until ctx is cancelled. Should be run as a goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped", "tag", "matchmaking")
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick runs one pairing pass: snapshot, sort ascending by rating, greedily
// pair adjacent candidates whose gap fits the wait-widened window, then
// remove exactly the paired entries from the pool.
func (s *Scheduler) Tick() {
	snapshot := s.pool.Snapshot()
	if len(snapshot) < 2 {
		return
	}
	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[i].Rating < snapshot[j].Rating
	})

	now := s.now()
	paired := make(map[string]struct{})

	for i := 0; i < len(snapshot)-1; i++ {
		a, b := snapshot[i], snapshot[i+1]
		if _, ok := paired[a.ID]; ok {
			continue
		}

		ratingDiff := float64(b.Rating - a.Rating)
		if ratingDiff < 0 {
			ratingDiff = -ratingDiff
		}
		if ratingDiff > s.allowedDiff(now, a, b) {
			continue
		}

		paired[a.ID] = struct{}{}
		paired[b.ID] = struct{}{}
		slog.Info("players paired", "tag", "matchmaking",
			"a", a.ID, "b", b.ID, "ratingDiff", int(ratingDiff))
		s.creator.Create(a, b)
	}

	if len(paired) > 0 {
		s.pool.RemovePaired(paired)
	}
}

// allowedDiff returns the maximum tolerated rating gap for the pair, widening
// linearly with the longer of the two wait times.
func (s *Scheduler) allowedDiff(now time.Time, a, b *Entry) float64 {
	longerWait := now.Sub(a.JoinedAt)
	if w := now.Sub(b.JoinedAt); w > longerWait {
		longerWait = w
	}
	allowed := s.baseDiff * (1 + float64(longerWait)/s.waitScale)
	if allowed < s.baseDiff {
		allowed = s.baseDiff
	}
	return allowed
}
