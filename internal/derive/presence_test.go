package derive

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graaaaa/playpulse/internal/model"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestPresence_FirstUpdateStartsGames(t *testing.T) {
	p := New()

	changes := p.Update("u1", []string{"Go", "Chess"}, t0)

	require.Len(t, changes, 2)
	assert.Equal(t, Change{UserID: "u1", Game: "Chess", Action: model.ActionStarted, At: t0}, changes[0])
	assert.Equal(t, Change{UserID: "u1", Game: "Go", Action: model.ActionStarted, At: t0}, changes[1])
	assert.Equal(t, []string{"Chess", "Go"}, p.Playing("u1"))
}

func TestPresence_SwitchGame_StopsBeforeStart(t *testing.T) {
	p := New()
	p.Update("u1", []string{"Chess"}, t0)

	at := t0.Add(10 * time.Minute)
	changes := p.Update("u1", []string{"Go"}, at)

	require.Len(t, changes, 2)
	assert.Equal(t, model.ActionStopped, changes[0].Action)
	assert.Equal(t, "Chess", changes[0].Game)
	assert.Equal(t, model.ActionStarted, changes[1].Action)
	assert.Equal(t, "Go", changes[1].Game)
	assert.Equal(t, at, changes[1].At)
}

func TestPresence_SameSet_NoChanges(t *testing.T) {
	p := New()
	p.Update("u1", []string{"Chess"}, t0)

	assert.Empty(t, p.Update("u1", []string{"Chess", "Chess"}, t0.Add(time.Minute)))
}

func TestPresence_IgnoresEmptyInput(t *testing.T) {
	p := New()

	assert.Nil(t, p.Update("", []string{"Chess"}, t0))
	assert.Empty(t, p.Update("u1", []string{""}, t0))
	assert.Equal(t, 0, p.UserCount())
}

func TestPresence_Forget(t *testing.T) {
	p := New()
	p.Update("u1", []string{"Chess", "Go"}, t0)

	changes := p.Forget("u1", t0.Add(time.Hour))

	require.Len(t, changes, 2)
	for _, c := range changes {
		assert.Equal(t, model.ActionStopped, c.Action)
	}
	assert.Empty(t, p.Playing("u1"))
	assert.Equal(t, 0, p.UserCount())
	assert.Empty(t, p.Forget("u1", t0))
}

func TestPresence_Counts(t *testing.T) {
	p := New()
	p.Update("u1", []string{"Chess"}, t0)
	p.Update("u2", []string{"Chess", "Go"}, t0)
	p.Update("u3", nil, t0)

	assert.Equal(t, map[string]int{"Chess": 2, "Go": 1}, p.Counts())
	assert.Equal(t, 2, p.UserCount())
}

func TestPresence_ConcurrentUsers(t *testing.T) {
	p := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := string(rune('a' + i%26))
			p.Update(user, []string{"Chess"}, t0)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 26, p.UserCount())
	assert.Equal(t, 26, p.Counts()["Chess"])
}
