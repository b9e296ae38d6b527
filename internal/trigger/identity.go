// internal/trigger/identity.go
package trigger

/*
 * Identity resolution.
 *
 * Enriches a firing with the acting user's capability flags ("is") and, for
 * gift-like events, the recipient's ("recipientis"). A principal missing
 * from the user store is looked up on the platform at most once per Resolve;
 * a failed lookup puts the name in the exclusion cache and aborts the
 * firing. Excluded names abort without a remote call until they resolve
 * locally or the cache is cleared.
 */

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/AnotherFoxGuy/sogeBot/internal/types"
)

// UserStore is the identity store surface used by the resolver.
type UserStore interface {
	FindByID(ctx context.Context, userID string) (*types.Identity, error)
	FindByName(ctx context.Context, userName string) (*types.Identity, error)
	Upsert(userID, userName string)
	Flush(ctx context.Context) error
}

// PrincipalLookup resolves a platform login to its id.
type PrincipalLookup interface {
	LookupIDByName(ctx context.Context, name string) (string, error)
}

// BotIdentity names the accounts with special capabilities.
type BotIdentity struct {
	BotName     string
	Broadcaster string
	Owners      []string
}

// Capabilities computes the flags for identity acting under name.
func (b BotIdentity) Capabilities(ident *types.Identity, name string) types.Capabilities {
	broadcaster := b.Broadcaster != "" && strings.EqualFold(name, b.Broadcaster)
	owner := broadcaster
	for _, o := range b.Owners {
		if strings.EqualFold(strings.TrimSpace(o), name) {
			owner = true
		}
	}
	return types.Capabilities{
		Moderator:   ident.IsModerator,
		Subscriber:  ident.IsSubscriber,
		VIP:         ident.IsVIP,
		Broadcaster: broadcaster,
		Bot:         b.BotName != "" && strings.EqualFold(name, b.BotName),
		Owner:       owner,
	}
}

// Resolver enriches firings with principal identities.
type Resolver struct {
	users    UserStore
	lookup   PrincipalLookup
	excluded *ExclusionCache
	bot      BotIdentity
	logger   *slog.Logger
	metrics  *Metrics
}

// NewResolver creates a resolver.
func NewResolver(users UserStore, lookup PrincipalLookup, excluded *ExclusionCache, bot BotIdentity, logger *slog.Logger, metrics *Metrics) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if excluded == nil {
		excluded = NewExclusionCache()
	}
	return &Resolver{users: users, lookup: lookup, excluded: excluded, bot: bot, logger: logger, metrics: metrics}
}

// Resolve enriches attrs in place. It returns false when the firing must be
// dropped; err is set only for store failures.
func (r *Resolver) Resolve(ctx context.Context, eventID string, attrs types.Attributes) (bool, error) {
	if attrs.Bool(types.AttrIsAnonymous) {
		return true, nil
	}

	if userName := attrs.String(types.AttrUserName); userName != "" {
		ident, ok, err := r.resolve(ctx, eventID, attrs.String(types.AttrUserID), userName)
		if err != nil || !ok {
			return false, err
		}
		attrs[types.AttrEventID] = eventID
		if attrs.String(types.AttrUserID) == "" {
			attrs[types.AttrUserID] = ident.UserID
		}
		if _, ok := attrs[types.AttrUsername]; !ok {
			attrs[types.AttrUsername] = userName
		}
		attrs[types.AttrIs] = r.bot.Capabilities(ident, userName).Map()
	}

	if recipient := attrs.String(types.AttrRecipient); recipient != "" {
		ident, ok, err := r.resolve(ctx, eventID, "", recipient)
		if err != nil || !ok {
			return false, err
		}
		attrs[types.AttrRecipientIs] = r.bot.Capabilities(ident, recipient).Map()
	}
	return true, nil
}

// resolve finds the identity for a principal. The loop runs at most twice:
// a miss is followed by one upsert (from the known id or one remote lookup)
// and one more local read. The exclusion cache is consulted only after a
// local miss, so a name stored meanwhile by another subsystem resolves again.
func (r *Resolver) resolve(ctx context.Context, eventID, userID, userName string) (*types.Identity, bool, error) {
	for attempt := 0; attempt < 2; attempt++ {
		if err := r.users.Flush(ctx); err != nil {
			return nil, false, err
		}
		var (
			ident *types.Identity
			err   error
		)
		if userID != "" {
			ident, err = r.users.FindByID(ctx, userID)
		} else {
			ident, err = r.users.FindByName(ctx, userName)
		}
		if err == nil {
			r.excluded.Remove(userName)
			return ident, true, nil
		}
		if !errors.Is(err, types.ErrUserNotFound) {
			return nil, false, err
		}
		if attempt > 0 {
			break
		}

		if userID == "" {
			if r.excluded.Contains(userName) {
				r.abort("excluded")
				return nil, false, nil
			}
			id, err := r.lookup.LookupIDByName(ctx, userName)
			if err != nil {
				r.excluded.Add(userName)
				r.lookupResult("failed")
				r.abort("lookup_failed")
				r.logger.Warn("user not found on platform, excluding from events until stream ends or user is saved",
					"user", userName, "event", eventID, "error", err)
				return nil, false, nil
			}
			r.lookupResult("ok")
			userID = id
		}
		r.users.Upsert(userID, userName)
	}

	// The name stays excluded so later firings do not repeat the remote lookup.
	r.excluded.Add(userName)
	r.abort("unresolved")
	r.logger.Warn("user could not be resolved after upsert", "user", userName, "event", eventID)
	return nil, false, nil
}

func (r *Resolver) abort(reason string) {
	if r.metrics != nil {
		r.metrics.aborted.WithLabelValues(reason).Inc()
	}
}

func (r *Resolver) lookupResult(result string) {
	if r.metrics != nil {
		r.metrics.remoteLookups.WithLabelValues(result).Inc()
	}
}
