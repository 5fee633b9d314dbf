// Package derive turns full presence updates into start and stop changes.
//
// The gateway reports every activity a member has each time their presence
// changes. Presence remembers the last game set seen per user and reports
// only the difference, which is what the session tracker consumes.
package derive

import (
	"sort"
	"sync"
	"time"

	"github.com/graaaaa/playpulse/internal/model"
)

// Change is one game starting or stopping for one user.
type Change struct {
	UserID string
	Game   string
	Action model.ActivityAction
	At     time.Time
}

// Presence tracks the games each user was last seen playing.
// It is safe for concurrent use.
type Presence struct {
	mu    sync.Mutex
	games map[string]map[string]struct{}
}

// New creates an empty Presence.
func New() *Presence {
	return &Presence{
		games: make(map[string]map[string]struct{}),
	}
}

// Update replaces the user's game set and returns what changed. Stops are
// returned before starts, each group sorted by game name. Empty game names
// are ignored.
func (p *Presence) Update(userID string, games []string, at time.Time) []Change {
	if userID == "" {
		return nil
	}

	next := make(map[string]struct{}, len(games))
	for _, g := range games {
		if g != "" {
			next[g] = struct{}{}
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	prev := p.games[userID]

	var stopped, started []string
	for g := range prev {
		if _, ok := next[g]; !ok {
			stopped = append(stopped, g)
		}
	}
	for g := range next {
		if _, ok := prev[g]; !ok {
			started = append(started, g)
		}
	}

	if len(next) == 0 {
		delete(p.games, userID)
	} else {
		p.games[userID] = next
	}

	sort.Strings(stopped)
	sort.Strings(started)

	changes := make([]Change, 0, len(stopped)+len(started))
	for _, g := range stopped {
		changes = append(changes, Change{UserID: userID, Game: g, Action: model.ActionStopped, At: at})
	}
	for _, g := range started {
		changes = append(changes, Change{UserID: userID, Game: g, Action: model.ActionStarted, At: at})
	}
	return changes
}

// Forget drops the user and returns a stop for every game they were playing,
// e.g. when they leave the guild.
func (p *Presence) Forget(userID string, at time.Time) []Change {
	return p.Update(userID, nil, at)
}

// Playing returns a copy of the user's current game set, sorted.
func (p *Presence) Playing(userID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.games[userID]))
	for g := range p.games[userID] {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// Counts returns how many tracked users play each game.
func (p *Presence) Counts() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]int)
	for _, set := range p.games {
		for g := range set {
			out[g]++
		}
	}
	return out
}

// UserCount returns the number of users currently playing anything.
func (p *Presence) UserCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.games)
}
