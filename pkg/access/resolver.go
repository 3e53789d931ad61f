// Package access resolves a user's effective permissions through the
// group/role membership chain, with an optional Redis cache in front of the
// database. It also implements the invalidation hooks the mutating services
// call when memberships or role contents change.
package access

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/atrium-works/atrium/pkg/observability"
	"github.com/atrium-works/atrium/pkg/permissions"
)

// DefaultCacheTTL bounds staleness for cache entries that escape explicit
// invalidation.
const DefaultCacheTTL = 5 * time.Minute

const cacheKeyPrefix = "atrium:perms:"

// Resolver answers "what can this user do" with cached reads. A nil Redis
// client degrades to direct database resolution.
type Resolver struct {
	store   *Store
	redis   *redis.Client
	ttl     time.Duration
	metrics *observability.Metrics
	log     *observability.Logger
}

// NewResolver creates a permission resolver. The Redis client and metrics
// may be nil.
func NewResolver(st *Store, client *redis.Client, ttl time.Duration, metrics *observability.Metrics, log *observability.Logger) *Resolver {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Resolver{store: st, redis: client, ttl: ttl, metrics: metrics, log: log}
}

func cacheKey(userID string) string {
	return cacheKeyPrefix + userID
}

// EffectivePermissions returns the user's deduplicated permission set.
func (r *Resolver) EffectivePermissions(ctx context.Context, userID string) ([]permissions.Permission, error) {
	if r.redis != nil {
		cached, err := r.redis.Get(ctx, cacheKey(userID)).Result()
		if err == nil {
			var perms []permissions.Permission
			if err := json.Unmarshal([]byte(cached), &perms); err == nil {
				if r.metrics != nil {
					r.metrics.CacheHitsTotal.Inc()
				}
				return perms, nil
			}
		} else if err != redis.Nil {
			r.log.WithError(err).Warn("permission cache read failed")
		}
		if r.metrics != nil {
			r.metrics.CacheMissesTotal.Inc()
		}
	}

	perms, err := r.store.ListEffectivePermissions(ctx, userID)
	if err != nil {
		return nil, err
	}

	if r.redis != nil {
		if data, err := json.Marshal(perms); err == nil {
			if err := r.redis.Set(ctx, cacheKey(userID), data, r.ttl).Err(); err != nil {
				r.log.WithError(err).Warn("permission cache write failed")
			}
		}
	}
	return perms, nil
}

// HasPermission reports whether the user's effective set contains the
// module/action pair.
func (r *Resolver) HasPermission(ctx context.Context, userID string, module permissions.Module, action permissions.Action) (bool, error) {
	perms, err := r.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if p.Module == module && p.Action == action {
			return true, nil
		}
	}
	return false, nil
}

// InvalidateUser drops the user's cached permission set.
func (r *Resolver) InvalidateUser(ctx context.Context, userID string) error {
	if r.redis == nil {
		return nil
	}
	if err := r.redis.Del(ctx, cacheKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate user cache: %w", err)
	}
	return nil
}

// InvalidateGroupMembers drops the cached sets of every member of the group.
func (r *Resolver) InvalidateGroupMembers(ctx context.Context, groupID string) error {
	if r.redis == nil {
		return nil
	}

	userIDs, err := r.store.ListGroupMemberIDs(ctx, groupID)
	if err != nil {
		return err
	}
	return r.invalidateUsers(ctx, userIDs)
}

// InvalidateRoleHolders drops the cached sets of every user holding the role.
func (r *Resolver) InvalidateRoleHolders(ctx context.Context, roleID string) error {
	if r.redis == nil {
		return nil
	}

	userIDs, err := r.store.ListRoleHolderIDs(ctx, roleID)
	if err != nil {
		return err
	}
	return r.invalidateUsers(ctx, userIDs)
}

func (r *Resolver) invalidateUsers(ctx context.Context, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = cacheKey(id)
	}
	if err := r.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate permission cache: %w", err)
	}
	return nil
}
