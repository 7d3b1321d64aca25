package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ocx/econcore/internal/core"
)

// KV is the slice of the Redis adapter the store needs.
type KV interface {
	PutIndexed(ctx context.Context, key string, value []byte, indexKey, member string) error
	MGet(ctx context.Context, keys ...string) ([][]byte, error)
	SMembers(ctx context.Context, key string) ([]string, error)
}

// RedisStore writes each record as JSON under econ:<scope>:<kind>:<id> and
// indexes the ids in a set per kind.
type RedisStore struct {
	kv    KV
	scope string
}

func NewRedisStore(kv KV, scope string) *RedisStore {
	return &RedisStore{kv: kv, scope: scope}
}

func (s *RedisStore) key(kind, id string) string {
	return fmt.Sprintf("econ:%s:%s:%s", s.scope, kind, id)
}

func (s *RedisStore) index(kind string) string {
	return fmt.Sprintf("econ:%s:%s", s.scope, kind)
}

func (s *RedisStore) put(ctx context.Context, kind, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s %s: %w", kind, id, err)
	}
	if err := s.kv.PutIndexed(ctx, s.key(kind, id), data, s.index(kind), id); err != nil {
		return fmt.Errorf("save %s %s: %w", kind, id, err)
	}
	return nil
}

func (s *RedisStore) SavePolicy(ctx context.Context, p core.Policy) (core.Policy, error) {
	p = assignPolicyID(p)
	if err := s.put(ctx, "policy", p.ID, p); err != nil {
		return core.Policy{}, err
	}
	return p, nil
}

func (s *RedisStore) SaveProfile(ctx context.Context, u core.UtilityProfile) (core.UtilityProfile, error) {
	u = assignProfileID(u)
	if err := s.put(ctx, "profile", u.ID, u); err != nil {
		return core.UtilityProfile{}, err
	}
	return u, nil
}

// Policies returns every stored policy for the scope, in no particular order.
// Index members without a record are skipped.
func (s *RedisStore) Policies(ctx context.Context) ([]core.Policy, error) {
	ids, err := s.kv.SMembers(ctx, s.index("policy"))
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key("policy", id)
	}
	values, err := s.kv.MGet(ctx, keys...)
	if err != nil {
		return nil, fmt.Errorf("load policies: %w", err)
	}
	out := make([]core.Policy, 0, len(ids))
	for i, data := range values {
		if data == nil {
			continue
		}
		id := ids[i]
		var p core.Policy
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode policy %s: %w", id, err)
		}
		out = append(out, p)
	}
	return out, nil
}
