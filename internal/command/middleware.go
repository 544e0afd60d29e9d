package command

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/time/rate"

	"server-warden/internal/audit"
	"server-warden/internal/limits"
	"server-warden/internal/locale"
	"server-warden/pkg/cmd"
)

// Middlewares is the stack every built-in command runs behind, outermost
// first: the log sees every outcome, cooldowns apply before any check
// replies, and the global check guards the command itself.
func Middlewares() []cmd.Middleware {
	return []cmd.Middleware{
		WithCommandLogger(),
		WithCooldown(),
		WithGlobalCheck(),
	}
}

// WithCommandLogger records every invocation to the audit store.
func WithCommandLogger() cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			mc, err := From(inv)
			if err != nil {
				return c.Run(ctx, inv)
			}

			start := time.Now()
			runErr := c.Run(ctx, inv)

			entry := &audit.CommandLog{
				GuildID:   mc.GuildID,
				ChannelID: mc.ChannelID,
				UserID:    mc.UserID,
				Command:   c.Name(),
				Args:      inv.Raw,
				Outcome:   "ok",
				Duration:  time.Since(start).Milliseconds(),
			}
			var denied *Denied
			switch {
			case errors.As(runErr, &denied):
				entry.Outcome = denied.Key
			case runErr != nil:
				entry.Outcome = "error"
				entry.Error = runErr.Error()
			}

			if mc.Audit != nil {
				if err := mc.Audit.LogCommand(context.WithoutCancel(ctx), entry); err != nil {
					mc.Log.Warn("failed to log command", "command", c.Name(), tint.Err(err))
				}
			}
			mc.Log.Debug("command finished",
				"command", c.Name(),
				"guild_id", mc.GuildID,
				"user_id", mc.UserID,
				"outcome", entry.Outcome,
				"duration_ms", entry.Duration,
			)
			return runErr
		})
	}
}

// WithCooldown rate limits each user. Developers are exempt.
func WithCooldown() cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			mc, err := From(inv)
			if err != nil || mc.Cooldowns == nil || mc.IsDeveloper {
				return c.Run(ctx, inv)
			}
			if !mc.Cooldowns.Allow(mc.UserID) {
				if mc.Cooldowns.Warn(mc.UserID) {
					_ = mc.Reply(ctx, mc.T("errors", "cooldown"))
				}
				return &Denied{Key: "cooldown"}
			}
			return c.Run(ctx, inv)
		})
	}
}

// WithGlobalCheck evaluates the guild's limits for the invocation and
// explains a denial to the user.
func WithGlobalCheck() cmd.Middleware {
	return func(c cmd.Command) cmd.Command {
		return cmd.Wrap(c, func(ctx context.Context, inv *cmd.Invocation) error {
			mc, err := From(inv)
			if err != nil {
				return c.Run(ctx, inv)
			}
			meta, _ := MetaOf(c)

			d := limits.Evaluate(&mc.Guild.Limits, mc.Subject(), limits.Target{
				Command:       c.Name(),
				Category:      meta.Category,
				GuildOnly:     meta.GuildOnly,
				AdminOnly:     meta.AdminOnly,
				DeveloperOnly: meta.DeveloperOnly,
			})
			if d.Allowed() {
				return c.Run(ctx, inv)
			}

			// Developer commands stay invisible to everyone else.
			if d.Code != limits.DeveloperOnly {
				_ = mc.Reply(ctx, mc.Tf("errors", d.Key(), locale.Args{
					"command":  c.Name(),
					"category": mc.T("categories", strings.ToLower(meta.Category)),
				}))
			}
			return &Denied{Key: d.Key()}
		})
	}
}

// Cooldowns holds one token bucket per user.
type Cooldowns struct {
	mu    sync.Mutex
	rate  rate.Limit
	burst int
	users map[string]*cooldown
	now   func() time.Time
}

type cooldown struct {
	limiter *rate.Limiter
	seen    time.Time
	warned  bool
}

// NewCooldowns allows each user burst commands at once, refilled at
// perSecond.
func NewCooldowns(perSecond float64, burst int) *Cooldowns {
	return &Cooldowns{
		rate:  rate.Limit(perSecond),
		burst: burst,
		users: make(map[string]*cooldown),
		now:   time.Now,
	}
}

func (c *Cooldowns) get(userID string) *cooldown {
	cd, ok := c.users[userID]
	if !ok {
		cd = &cooldown{limiter: rate.NewLimiter(c.rate, c.burst)}
		c.users[userID] = cd
	}
	cd.seen = c.now()
	return cd
}

// Allow takes a token for userID.
func (c *Cooldowns) Allow(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cd := c.get(userID)
	ok := cd.limiter.AllowN(cd.seen, 1)
	if ok {
		cd.warned = false
	}
	return ok
}

// Warn reports whether the user should be told about the cooldown. It
// returns true once per throttled streak.
func (c *Cooldowns) Warn(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cd := c.get(userID)
	if cd.warned {
		return false
	}
	cd.warned = true
	return true
}

// Cleanup forgets users idle for longer than idle and returns how many.
func (c *Cooldowns) Cleanup(idle time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := c.now().Add(-idle)
	n := 0
	for id, cd := range c.users {
		if cd.seen.Before(cutoff) {
			delete(c.users, id)
			n++
		}
	}
	return n
}

// Len returns the number of tracked users.
func (c *Cooldowns) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.users)
}

// RunCleaner drops idle buckets every interval until ctx is done.
func (c *Cooldowns) RunCleaner(ctx context.Context, every, idle time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Cleanup(idle)
		}
	}
}
