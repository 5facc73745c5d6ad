package sdk

import (
	"context"
	"time"
)

// Presence helpers built on OnlinePlayers. They degrade to "offline"
// instead of returning errors, which are logged at warn level.

// IsPlayerOnline reports whether username is in the online list
func (c *client) IsPlayerOnline(ctx context.Context, username string) bool {
	online, err := c.OnlinePlayers(ctx)
	if err != nil {
		c.log.WithError(err).WithField("username", username).Warn("presence lookup failed, reporting offline")
		return false
	}
	_, ok := online.Find(username)
	return ok
}

// PlayerOnlineTime returns the current session length of username
func (c *client) PlayerOnlineTime(ctx context.Context, username string) (time.Duration, bool) {
	online, err := c.OnlinePlayers(ctx)
	if err != nil {
		c.log.WithError(err).WithField("username", username).Warn("presence lookup failed, reporting offline")
		return 0, false
	}
	player, ok := online.Find(username)
	if !ok || player.OnlineTime == nil {
		return 0, false
	}
	return time.Duration(*player.OnlineTime) * time.Second, true
}

// OnlineStatuses maps each username to whether it is online
func (c *client) OnlineStatuses(ctx context.Context, usernames []string) map[string]bool {
	statuses := make(map[string]bool, len(usernames))
	for _, name := range usernames {
		statuses[name] = false
	}

	online, err := c.OnlinePlayers(ctx)
	if err != nil {
		c.log.WithError(err).WithField("players", len(usernames)).Warn("presence lookup failed, reporting everyone offline")
		return statuses
	}
	for _, p := range online.Players {
		if _, tracked := statuses[p.Username]; tracked {
			statuses[p.Username] = true
		}
	}
	return statuses
}

// ServerSummary fetches status, online players and security info in turn.
// The first failure is returned wrapped.
func (c *client) ServerSummary(ctx context.Context) (*ServerSummary, error) {
	status, err := c.ServerStatus(ctx)
	if err != nil {
		return nil, WrapError(err, ErrorTypeUnknown, "failed to fetch server summary")
	}
	online, err := c.OnlinePlayers(ctx)
	if err != nil {
		return nil, WrapError(err, ErrorTypeUnknown, "failed to fetch server summary")
	}
	security, err := c.SecurityInfo(ctx)
	if err != nil {
		return nil, WrapError(err, ErrorTypeUnknown, "failed to fetch server summary")
	}

	return &ServerSummary{
		ServerStatus:  status,
		OnlinePlayers: online,
		SecurityInfo:  security,
		Timestamp:     time.Now(),
	}, nil
}
