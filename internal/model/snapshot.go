package model

import "time"

// MemberSnapshot is a point-in-time sample of guild member counts.
type MemberSnapshot struct {
	ID            int64     `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	TotalMembers  int       `json:"total_members"`
	OnlineMembers int       `json:"online_members"`
	EventID       int64     `json:"event_id"`
}

// GameSnapshot is a point-in-time sample of how many members play a game.
type GameSnapshot struct {
	ID          int64     `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	GameName    string    `json:"game_name"`
	PlayerCount int       `json:"player_count"`
	EventID     int64     `json:"event_id"`
}

// GameCount is one entry of a presence snapshot's playing list.
type GameCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// PresenceSnapshot is what the gateway reports on each polling tick.
type PresenceSnapshot struct {
	GuildScope    string      `json:"guild_scope"`
	TotalMembers  int         `json:"total_members"`
	OnlineMembers int         `json:"online_members"`
	PlayingGames  []GameCount `json:"playing_games"`
}
