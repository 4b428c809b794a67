// Package discord looks up guild member roles through the Discord REST API.
// The gateway connection lives in the bot process; the core only needs role
// snapshots for eligibility checks, cached briefly in Redis to stay inside
// rate limits.
package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	apiBase       = "https://discord.com/api/v10"
	roleCacheTTL  = 60 * time.Second
	rolePrefix    = "guild:roles:"
	clientTimeout = 10 * time.Second
)

// RoleClient fetches member roles with a Redis-backed cache. redis may be nil
// to disable caching (tests).
type RoleClient struct {
	token  string
	http   *http.Client
	redis  *redis.Client
	logger *zap.Logger
}

// NewRoleClient creates a role lookup client using the bot token.
func NewRoleClient(token string, rdb *redis.Client, logger *zap.Logger) *RoleClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoleClient{
		token:  token,
		http:   &http.Client{Timeout: clientTimeout},
		redis:  rdb,
		logger: logger,
	}
}

type memberResponse struct {
	Roles []string `json:"roles"`
}

// MemberRoles returns the role IDs the user holds in the guild.
func (c *RoleClient) MemberRoles(ctx context.Context, guildID, userID string) ([]string, error) {
	cacheKey := rolePrefix + guildID + ":" + userID
	if c.redis != nil {
		if raw, err := c.redis.Get(ctx, cacheKey).Result(); err == nil {
			var roles []string
			if json.Unmarshal([]byte(raw), &roles) == nil {
				return roles, nil
			}
		}
	}

	url := fmt.Sprintf("%s/guilds/%s/members/%s", apiBase, guildID, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bot "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("member lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// Not a guild member: no roles.
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("member lookup: discord returned %d", resp.StatusCode)
	}

	var member memberResponse
	if err := json.NewDecoder(resp.Body).Decode(&member); err != nil {
		return nil, fmt.Errorf("member lookup: %w", err)
	}

	if c.redis != nil {
		if raw, err := json.Marshal(member.Roles); err == nil {
			if err := c.redis.Set(ctx, cacheKey, raw, roleCacheTTL).Err(); err != nil {
				c.logger.Warn("role cache write failed", zap.Error(err))
			}
		}
	}
	return member.Roles, nil
}
