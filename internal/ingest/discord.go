package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/graaaaa/playpulse/internal/clock"
	"github.com/graaaaa/playpulse/internal/derive"
	"github.com/graaaaa/playpulse/internal/logging"
	"github.com/graaaaa/playpulse/internal/model"
)

const defaultDiscordBuffer = 256

// DiscordConfig holds the gateway settings.
type DiscordConfig struct {
	Token   string
	GuildID string
	// Buffer is the change channel capacity.
	Buffer int
}

// DiscordSource reads presence updates for one guild from the Discord
// gateway. It implements both PresenceSource and SnapshotSource.
type DiscordSource struct {
	session  *discordgo.Session
	guildID  string
	presence *derive.Presence
	clock    clock.Clock
	logger   zerolog.Logger

	buffer int

	mu      sync.RWMutex
	running bool
	out     chan PresenceChange
	errs    chan error
	done    chan struct{}
}

// DiscordOption configures a DiscordSource.
type DiscordOption func(*DiscordSource)

// WithDiscordClock overrides the clock used to stamp changes.
func WithDiscordClock(c clock.Clock) DiscordOption {
	return func(d *DiscordSource) { d.clock = c }
}

// WithDiscordLogger overrides the logger.
func WithDiscordLogger(l zerolog.Logger) DiscordOption {
	return func(d *DiscordSource) { d.logger = l }
}

// NewDiscord creates a gateway session and registers the presence handlers.
// It does not connect; Start does.
func NewDiscord(cfg DiscordConfig, opts ...DiscordOption) (*DiscordSource, error) {
	if cfg.Token == "" {
		return nil, errors.New("discord token cannot be empty")
	}
	if cfg.GuildID == "" {
		return nil, errors.New("discord guild id cannot be empty")
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultDiscordBuffer
	}

	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildPresences
	session.State.TrackPresences = true
	session.State.TrackMembers = true

	d := &DiscordSource{
		session:  session,
		guildID:  cfg.GuildID,
		presence: derive.New(),
		clock:    clock.Real{},
		logger:   logging.Logger().With().Str("component", "discord").Logger(),
		buffer:   cfg.Buffer,
	}
	for _, opt := range opts {
		opt(d)
	}

	session.AddHandler(d.onGuildCreate)
	session.AddHandler(d.onPresenceUpdate)
	session.AddHandler(d.onMemberRemove)
	return d, nil
}

// Start opens the gateway connection. Both channels close once ctx is done.
// A stopped source may be started again.
func (d *DiscordSource) Start(ctx context.Context) (<-chan PresenceChange, <-chan error, error) {
	out, errs, err := d.open()
	if err != nil {
		return nil, nil, err
	}

	if err := d.session.Open(); err != nil {
		d.shutdown()
		return nil, nil, fmt.Errorf("failed to open Discord connection: %w", err)
	}
	d.logger.Info().Str("guild_id", d.guildID).Msg("gateway connected")

	go func() {
		<-ctx.Done()
		if err := d.session.Close(); err != nil {
			d.logger.Warn().Err(err).Msg("failed to close Discord session")
		}
		d.shutdown()
		d.logger.Info().Msg("gateway disconnected")
	}()

	return out, errs, nil
}

// open allocates the channels for one run.
func (d *DiscordSource) open() (chan PresenceChange, chan error, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return nil, nil, errors.New("discord source already started")
	}
	d.running = true
	d.out = make(chan PresenceChange, d.buffer)
	d.errs = make(chan error, 16)
	d.done = make(chan struct{})
	return d.out, d.errs, nil
}

// shutdown unblocks pending sends, then closes both channels once no handler
// is inside emit.
func (d *DiscordSource) shutdown() {
	d.mu.RLock()
	running, done := d.running, d.done
	d.mu.RUnlock()
	if !running {
		return
	}
	close(done)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = false
	close(d.out)
	close(d.errs)
}

// emit forwards changes to the current run. Changes seen while no run is
// active only update the diff state.
func (d *DiscordSource) emit(changes []derive.Change) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.running {
		return
	}
	for _, c := range changes {
		select {
		case d.out <- c:
		case <-d.done:
			return
		}
	}
}

func (d *DiscordSource) reportError(op string, err error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.running {
		return
	}
	select {
	case d.errs <- &GatewayError{Op: op, Err: err}:
	default:
		d.logger.Warn().Err(err).Str("op", op).Msg("gateway error dropped")
	}
}

// gamesOf returns the names of game activities for an online presence.
func gamesOf(p *discordgo.Presence) []string {
	if p == nil || p.Status == discordgo.StatusOffline {
		return nil
	}
	var games []string
	for _, a := range p.Activities {
		if a != nil && a.Type == discordgo.ActivityTypeGame && a.Name != "" {
			games = append(games, a.Name)
		}
	}
	return games
}

// onGuildCreate seeds the tracker with the games already being played when
// the gateway (re)connects.
func (d *DiscordSource) onGuildCreate(_ *discordgo.Session, g *discordgo.GuildCreate) {
	if g == nil || g.Guild == nil || g.ID != d.guildID {
		return
	}
	now := d.clock.Now()
	for _, p := range g.Presences {
		if p == nil || p.User == nil {
			continue
		}
		d.emit(d.presence.Update(p.User.ID, gamesOf(p), now))
	}
	d.logger.Debug().Int("presences", len(g.Presences)).Msg("guild presences seeded")
}

func (d *DiscordSource) onPresenceUpdate(_ *discordgo.Session, p *discordgo.PresenceUpdate) {
	if p == nil || p.GuildID != d.guildID || p.User == nil || p.User.ID == "" {
		return
	}
	d.emit(d.presence.Update(p.User.ID, gamesOf(&p.Presence), d.clock.Now()))
}

func (d *DiscordSource) onMemberRemove(_ *discordgo.Session, m *discordgo.GuildMemberRemove) {
	if m == nil || m.Member == nil || m.GuildID != d.guildID || m.User == nil {
		return
	}
	d.emit(d.presence.Forget(m.User.ID, d.clock.Now()))
}

// Snapshot reports member and per-game counts from the gateway's cached
// guild state.
func (d *DiscordSource) Snapshot(ctx context.Context) (model.PresenceSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return model.PresenceSnapshot{}, err
	}

	guild, err := d.session.State.Guild(d.guildID)
	if err != nil {
		d.reportError("snapshot", err)
		return model.PresenceSnapshot{}, &GatewayError{Op: "snapshot", Err: err}
	}

	d.session.State.RLock()
	defer d.session.State.RUnlock()

	snap := model.PresenceSnapshot{
		GuildScope:   d.guildID,
		TotalMembers: guild.MemberCount,
		PlayingGames: []model.GameCount{},
	}
	counts := make(map[string]int)
	for _, p := range guild.Presences {
		if p == nil || p.Status == discordgo.StatusOffline || p.Status == "" {
			continue
		}
		snap.OnlineMembers++
		seen := make(map[string]bool)
		for _, g := range gamesOf(p) {
			if !seen[g] {
				seen[g] = true
				counts[g]++
			}
		}
	}
	for name, n := range counts {
		snap.PlayingGames = append(snap.PlayingGames, model.GameCount{Name: name, Count: n})
	}
	sort.Slice(snap.PlayingGames, func(i, j int) bool {
		return snap.PlayingGames[i].Name < snap.PlayingGames[j].Name
	})
	return snap, nil
}
