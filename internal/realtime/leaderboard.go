package realtime

import (
	"context"
	"log"
	"sync"
	"time"

	"exam-prep-platform/internal/contest"
)

// LeaderboardCache serves rank-ordered leaderboard reads with a short TTL so
// hot contests don't hammer the relational store.
type LeaderboardCache struct {
	repo  *contest.Repo
	cache map[string]*cachedLeaderboard
	mutex sync.RWMutex
	ttl   time.Duration
}

type cachedLeaderboard struct {
	contestID   string
	rows        []*contest.LeaderboardRow
	lastUpdated time.Time
}

// NewLeaderboardCache creates the cache with a 30 second freshness window.
func NewLeaderboardCache(repo *contest.Repo) *LeaderboardCache {
	return &LeaderboardCache{
		repo:  repo,
		cache: make(map[string]*cachedLeaderboard),
		ttl:   30 * time.Second,
	}
}

// StartCleanup evicts stale entries periodically until ctx is cancelled.
func (lc *LeaderboardCache) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			lc.cleanup()
		case <-ctx.Done():
			return
		}
	}
}

// Leaderboard returns the contest's rows, from cache when fresh.
func (lc *LeaderboardCache) Leaderboard(ctx context.Context, contestID string) ([]*contest.LeaderboardRow, error) {
	lc.mutex.RLock()
	cached, exists := lc.cache[contestID]
	lc.mutex.RUnlock()

	if exists && time.Since(cached.lastUpdated) < lc.ttl {
		return cached.rows, nil
	}

	rows, err := lc.repo.Leaderboard(ctx, contestID)
	if err != nil {
		return nil, err
	}

	lc.mutex.Lock()
	lc.cache[contestID] = &cachedLeaderboard{
		contestID:   contestID,
		rows:        rows,
		lastUpdated: time.Now(),
	}
	lc.mutex.Unlock()

	return rows, nil
}

// Invalidate drops the cached board for a contest, forcing a fresh read.
func (lc *LeaderboardCache) Invalidate(contestID string) {
	lc.mutex.Lock()
	defer lc.mutex.Unlock()
	delete(lc.cache, contestID)
}

func (lc *LeaderboardCache) cleanup() {
	lc.mutex.Lock()
	defer lc.mutex.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for contestID, cached := range lc.cache {
		if cached.lastUpdated.Before(cutoff) {
			delete(lc.cache, contestID)
			log.Printf("Cleaned up cached leaderboard for contest %s", contestID)
		}
	}
}
