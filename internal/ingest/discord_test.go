package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graaaaa/playpulse/internal/clock"
	"github.com/graaaaa/playpulse/internal/logging"
	"github.com/graaaaa/playpulse/internal/model"
)

var discordT0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestDiscord(t *testing.T) (*DiscordSource, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(discordT0)
	d, err := NewDiscord(DiscordConfig{Token: "test-token", GuildID: "g1"},
		WithDiscordClock(clk),
		WithDiscordLogger(logging.NewTestLogger(&discardWriter{})),
	)
	require.NoError(t, err)
	_, _, err = d.open()
	require.NoError(t, err)
	return d, clk
}

type discardWriter struct{}

func (*discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func presence(user string, status discordgo.Status, games ...string) *discordgo.Presence {
	p := &discordgo.Presence{User: &discordgo.User{ID: user}, Status: status}
	for _, g := range games {
		p.Activities = append(p.Activities, &discordgo.Activity{Name: g, Type: discordgo.ActivityTypeGame})
	}
	return p
}

func drain(d *DiscordSource) []PresenceChange {
	var out []PresenceChange
	for {
		select {
		case c := <-d.out:
			out = append(out, c)
		default:
			return out
		}
	}
}

func TestNewDiscord_RequiresTokenAndGuild(t *testing.T) {
	_, err := NewDiscord(DiscordConfig{GuildID: "g1"})
	assert.Error(t, err)

	_, err = NewDiscord(DiscordConfig{Token: "t"})
	assert.Error(t, err)
}

func TestDiscord_PresenceUpdateEmitsDiff(t *testing.T) {
	d, clk := newTestDiscord(t)

	d.onPresenceUpdate(nil, &discordgo.PresenceUpdate{GuildID: "g1", Presence: *presence("u1", discordgo.StatusOnline, "Chess")})
	clk.Advance(10 * time.Minute)
	d.onPresenceUpdate(nil, &discordgo.PresenceUpdate{GuildID: "g1", Presence: *presence("u1", discordgo.StatusOnline)})

	changes := drain(d)
	require.Len(t, changes, 2)
	assert.Equal(t, PresenceChange{UserID: "u1", Game: "Chess", Action: model.ActionStarted, At: discordT0}, changes[0])
	assert.Equal(t, PresenceChange{UserID: "u1", Game: "Chess", Action: model.ActionStopped, At: discordT0.Add(10 * time.Minute)}, changes[1])
}

func TestDiscord_IgnoresOtherGuildsAndNonGames(t *testing.T) {
	d, _ := newTestDiscord(t)

	d.onPresenceUpdate(nil, &discordgo.PresenceUpdate{GuildID: "other", Presence: *presence("u1", discordgo.StatusOnline, "Chess")})

	listening := presence("u2", discordgo.StatusOnline)
	listening.Activities = []*discordgo.Activity{{Name: "Spotify", Type: discordgo.ActivityTypeListening}}
	d.onPresenceUpdate(nil, &discordgo.PresenceUpdate{GuildID: "g1", Presence: *listening})

	assert.Empty(t, drain(d))
}

func TestDiscord_OfflineStopsGames(t *testing.T) {
	d, _ := newTestDiscord(t)

	d.onPresenceUpdate(nil, &discordgo.PresenceUpdate{GuildID: "g1", Presence: *presence("u1", discordgo.StatusOnline, "Chess")})
	d.onPresenceUpdate(nil, &discordgo.PresenceUpdate{GuildID: "g1", Presence: *presence("u1", discordgo.StatusOffline, "Chess")})

	changes := drain(d)
	require.Len(t, changes, 2)
	assert.Equal(t, model.ActionStopped, changes[1].Action)
}

func TestDiscord_GuildCreateSeedsAndMemberRemoveStops(t *testing.T) {
	d, _ := newTestDiscord(t)

	d.onGuildCreate(nil, &discordgo.GuildCreate{Guild: &discordgo.Guild{
		ID: "g1",
		Presences: []*discordgo.Presence{
			presence("u1", discordgo.StatusOnline, "Chess"),
			presence("u2", discordgo.StatusIdle),
		},
	}})
	changes := drain(d)
	require.Len(t, changes, 1)
	assert.Equal(t, "u1", changes[0].UserID)
	assert.Equal(t, model.ActionStarted, changes[0].Action)

	d.onMemberRemove(nil, &discordgo.GuildMemberRemove{Member: &discordgo.Member{GuildID: "g1", User: &discordgo.User{ID: "u1"}}})
	changes = drain(d)
	require.Len(t, changes, 1)
	assert.Equal(t, model.ActionStopped, changes[0].Action)
}

func TestDiscord_Snapshot(t *testing.T) {
	d, _ := newTestDiscord(t)

	require.NoError(t, d.session.State.GuildAdd(&discordgo.Guild{
		ID:          "g1",
		MemberCount: 30,
		Presences: []*discordgo.Presence{
			presence("u1", discordgo.StatusOnline, "Chess"),
			presence("u2", discordgo.StatusDoNotDisturb, "Chess", "Go"),
			presence("u3", discordgo.StatusIdle),
			presence("u4", discordgo.StatusOffline, "Go"),
		},
	}))

	snap, err := d.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "g1", snap.GuildScope)
	assert.Equal(t, 30, snap.TotalMembers)
	assert.Equal(t, 3, snap.OnlineMembers)
	assert.Equal(t, []model.GameCount{{Name: "Chess", Count: 2}, {Name: "Go", Count: 1}}, snap.PlayingGames)
}

func TestDiscord_SnapshotUnknownGuild(t *testing.T) {
	d, _ := newTestDiscord(t)

	_, err := d.Snapshot(context.Background())
	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "snapshot", gwErr.Op)
}

func TestDiscord_ShutdownClosesChannels(t *testing.T) {
	d, _ := newTestDiscord(t)
	out, errs := d.out, d.errs

	d.shutdown()
	d.onPresenceUpdate(nil, &discordgo.PresenceUpdate{GuildID: "g1", Presence: *presence("u1", discordgo.StatusOnline, "Chess")})

	_, ok := <-out
	assert.False(t, ok)
	_, ok = <-errs
	assert.False(t, ok)
	assert.Equal(t, []string{"Chess"}, d.presence.Playing("u1"))

	// A stopped source can be reopened.
	_, _, err := d.open()
	require.NoError(t, err)
	_, _, err = d.open()
	assert.Error(t, err)
}
