package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// decrGuardScript enforces AtomicAdd's "post-image >= 0" condition
// atomically: Redis itself has no conditional-decrement primitive, so the
// guard is expressed as a small Lua script evaluated server-side, mirroring
// the conditional-write idiom section 4.A calls out for AtomicAdd.
const decrGuardScript = `
local v = tonumber(redis.call("GET", KEYS[1]) or "0")
local delta = tonumber(ARGV[1])
local nv = v + delta
if nv < 0 then
	return {-1, v}
end
redis.call("SET", KEYS[1], nv)
return {1, nv}
`

// RedisKV is the production KV backend for component A's hot, TTL-bearing
// paths (session and connection records, listener counters, language
// indexes), grounded on
// the reference repo's cache.go TTL idiom but moved out of an in-process
// sync.Map and into Redis so state in section 5's sense is truly
// process-external and survives a server restart.
type RedisKV struct {
	client     *redis.Client
	decrScript *redis.Script
}

func NewRedisKV(client *redis.Client) *RedisKV {
	return &RedisKV{
		client:     client,
		decrScript: redis.NewScript(decrGuardScript),
	}
}

func (r *RedisKV) Put(ctx context.Context, key string, item []byte, ttl time.Duration, condition Condition) error {
	switch condition {
	case IfNotExists:
		ok, err := r.client.SetNX(ctx, key, item, ttl).Result()
		if err != nil {
			return &TransientStoreError{Op: "Put(IfNotExists)", Err: err}
		}
		if !ok {
			return &ConditionFailedError{Op: "Put(IfNotExists): " + key}
		}
		return nil
	case IfExists:
		ok, err := r.client.SetXX(ctx, key, item, ttl).Result()
		if err != nil {
			return &TransientStoreError{Op: "Put(IfExists)", Err: err}
		}
		if !ok {
			return &ConditionFailedError{Op: "Put(IfExists): " + key}
		}
		return nil
	default:
		if err := r.client.Set(ctx, key, item, ttl).Err(); err != nil {
			return &TransientStoreError{Op: "Put", Err: err}
		}
		return nil
	}
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &TransientStoreError{Op: "Get", Err: err}
	}
	return b, nil
}

func (r *RedisKV) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return &TransientStoreError{Op: "Delete", Err: err}
	}
	return nil
}

func (r *RedisKV) AtomicAdd(ctx context.Context, key, attribute string, delta int64) (int64, error) {
	fullKey := key + ":" + attribute
	if delta >= 0 {
		v, err := r.client.IncrBy(ctx, fullKey, delta).Result()
		if err != nil {
			return 0, &TransientStoreError{Op: "AtomicAdd", Err: err}
		}
		return v, nil
	}

	res, err := r.decrScript.Run(ctx, r.client, []string{fullKey}, delta).Result()
	if err != nil {
		return 0, &TransientStoreError{Op: "AtomicAdd(decr)", Err: err}
	}
	pair, ok := res.([]interface{})
	if !ok || len(pair) != 2 {
		return 0, &TransientStoreError{Op: "AtomicAdd(decr)", Err: redis.Nil}
	}
	ok1, _ := pair[0].(int64)
	nv, _ := pair[1].(int64)
	if ok1 < 0 {
		return nv, &NegativeCountError{Key: key, Attribute: attribute}
	}
	return nv, nil
}

func (r *RedisKV) IndexAdd(ctx context.Context, indexKey, member string) error {
	return r.SetAdd(ctx, indexKey, member)
}

func (r *RedisKV) IndexRemove(ctx context.Context, indexKey, member string) error {
	return r.SetRemove(ctx, indexKey, member)
}

func (r *RedisKV) IndexMembers(ctx context.Context, indexKey string) ([]string, error) {
	return r.SetMembers(ctx, indexKey)
}

func (r *RedisKV) SetAdd(ctx context.Context, setKey, member string) error {
	if err := r.client.SAdd(ctx, setKey, member).Err(); err != nil {
		return &TransientStoreError{Op: "SetAdd", Err: err}
	}
	return nil
}

func (r *RedisKV) SetRemove(ctx context.Context, setKey, member string) error {
	if err := r.client.SRem(ctx, setKey, member).Err(); err != nil {
		return &TransientStoreError{Op: "SetRemove", Err: err}
	}
	return nil
}

func (r *RedisKV) SetMembers(ctx context.Context, setKey string) ([]string, error) {
	members, err := r.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, &TransientStoreError{Op: "SetMembers", Err: err}
	}
	return members, nil
}

func (r *RedisKV) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := r.client.Expire(ctx, key, ttl).Err(); err != nil {
		return &TransientStoreError{Op: "Expire", Err: err}
	}
	return nil
}
