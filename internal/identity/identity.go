// Package identity implements the identity/claims store on Redis. Each
// account has one hash keyed by uid holding its email, last-sign-in time and
// an opaque JSON claims blob; the premium entitlement is a claim. The store
// is a transactional domain of its own, deliberately independent from the
// account store.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pairlink/pairlink/internal/model"
)

// ErrIdentityNotFound is returned when no identity record exists for a uid.
var ErrIdentityNotFound = errors.New("identity not found")

const (
	keyPrefix = "identity:"

	fieldUID        = "uid"
	fieldEmail      = "email"
	fieldLastSignIn = "last_sign_in"
	fieldClaims     = "claims"
)

// Store provides identity record access methods.
type Store struct {
	client *redis.Client
}

// New creates a new Store with a Redis client.
func New(ctx context.Context, redisURL string) (*Store, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Connection pool settings
	opt.PoolSize = 10
	opt.MinIdleConns = 2
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute

	client := redis.NewClient(opt)

	// Verify connection
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &Store{client: client}, nil
}

// Ping checks Redis connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Client exposes the underlying Redis client, used by integration tests.
func (s *Store) Client() *redis.Client {
	return s.client
}

// Put writes a full identity record, replacing any previous one.
func (s *Store) Put(ctx context.Context, id model.Identity) error {
	claims, err := json.Marshal(id.Claims)
	if err != nil {
		return fmt.Errorf("failed to encode claims: %w", err)
	}

	fields := map[string]any{
		fieldUID:        id.UID,
		fieldEmail:      id.Email,
		fieldLastSignIn: id.LastSignIn.UTC().Format(time.RFC3339Nano),
		fieldClaims:     string(claims),
	}
	if err := s.client.HSet(ctx, keyPrefix+id.UID, fields).Err(); err != nil {
		return fmt.Errorf("failed to put identity %s: %w", id.UID, err)
	}
	return nil
}

// Get reads one identity record, or ErrIdentityNotFound.
func (s *Store) Get(ctx context.Context, uid string) (*model.Identity, error) {
	values, err := s.client.HGetAll(ctx, keyPrefix+uid).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get identity %s: %w", uid, err)
	}
	if len(values) == 0 {
		return nil, ErrIdentityNotFound
	}
	return decodeIdentity(uid, values)
}

// Delete removes an identity record. Deleting a missing record is success,
// so retries of a partially failed account deletion converge.
func (s *Store) Delete(ctx context.Context, uid string) error {
	if err := s.client.Del(ctx, keyPrefix+uid).Err(); err != nil {
		return fmt.Errorf("failed to delete identity %s: %w", uid, err)
	}
	return nil
}

// Entitlement returns the premium entitlement for uid. A missing identity or
// a missing claim both yield nil without error.
func (s *Store) Entitlement(ctx context.Context, uid string) (*model.Entitlement, error) {
	id, err := s.Get(ctx, uid)
	if errors.Is(err, ErrIdentityNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return id.Entitlement(), nil
}

// SetEntitlement sets the premium claim for uid, preserving any other claims.
func (s *Store) SetEntitlement(ctx context.Context, uid string, e model.Entitlement) error {
	return s.updateClaims(ctx, uid, func(c *model.Claims) {
		ent := e
		c.Premium = &ent
	})
}

// RemoveEntitlement strips the premium claim for uid, preserving any other
// claims. Removing an absent claim is success.
func (s *Store) RemoveEntitlement(ctx context.Context, uid string) error {
	return s.updateClaims(ctx, uid, func(c *model.Claims) {
		c.Premium = nil
	})
}

// updateClaims performs a read-modify-write of the claims blob. The identity
// store offers no multi-key transactions and none are needed here; a claim
// update touches a single record.
func (s *Store) updateClaims(ctx context.Context, uid string, mutate func(*model.Claims)) error {
	key := keyPrefix + uid

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to check identity %s: %w", uid, err)
	}
	if exists == 0 {
		return ErrIdentityNotFound
	}

	raw, err := s.client.HGet(ctx, key, fieldClaims).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to read claims for %s: %w", uid, err)
	}

	var claims model.Claims
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &claims); err != nil {
			return fmt.Errorf("failed to decode claims for %s: %w", uid, err)
		}
	}

	mutate(&claims)

	encoded, err := json.Marshal(claims)
	if err != nil {
		return fmt.Errorf("failed to encode claims for %s: %w", uid, err)
	}
	if err := s.client.HSet(ctx, key, fieldClaims, string(encoded)).Err(); err != nil {
		return fmt.Errorf("failed to write claims for %s: %w", uid, err)
	}
	return nil
}

// List enumerates identity records one page at a time. An empty pageToken
// starts the scan; the returned token continues it and is empty once the
// keyspace is exhausted. Page sizes are approximate, as usual for cursor
// scans.
func (s *Store) List(ctx context.Context, pageToken string, pageSize int64) ([]model.Identity, string, error) {
	var cursor uint64
	if pageToken != "" {
		parsed, err := strconv.ParseUint(pageToken, 10, 64)
		if err != nil {
			return nil, "", fmt.Errorf("invalid page token %q: %w", pageToken, err)
		}
		cursor = parsed
	}

	keys, next, err := s.client.Scan(ctx, cursor, keyPrefix+"*", pageSize).Result()
	if err != nil {
		return nil, "", fmt.Errorf("failed to scan identities: %w", err)
	}

	records := make([]model.Identity, 0, len(keys))
	for _, key := range keys {
		values, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, "", fmt.Errorf("failed to read identity %s: %w", key, err)
		}
		if len(values) == 0 {
			// deleted between scan and read
			continue
		}
		id, err := decodeIdentity(values[fieldUID], values)
		if err != nil {
			return nil, "", err
		}
		records = append(records, *id)
	}

	nextToken := ""
	if next != 0 {
		nextToken = strconv.FormatUint(next, 10)
	}
	return records, nextToken, nil
}

func decodeIdentity(uid string, values map[string]string) (*model.Identity, error) {
	id := model.Identity{
		UID:   uid,
		Email: values[fieldEmail],
	}

	if raw := values[fieldLastSignIn]; raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse last sign-in for %s: %w", uid, err)
		}
		id.LastSignIn = t
	}

	if raw := values[fieldClaims]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &id.Claims); err != nil {
			return nil, fmt.Errorf("failed to decode claims for %s: %w", uid, err)
		}
	}

	return &id, nil
}
