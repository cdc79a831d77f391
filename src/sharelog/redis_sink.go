package sharelog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

const shareLogKey = "share_log"

// RedisSink appends shares to a sorted set scored by unix time.
type RedisSink struct {
	client *redis.Client
	shares ZSet
}

func ConfigureRedis(addr string) (*redis.Client, error) {
	rd := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   0, // use default DB
	})
	if err := rd.Ping(context.Background()); err.Err() != nil {
		return nil, errors.Wrap(err.Err(), "failed to ping redis")
	}
	return rd, nil
}

func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{
		client: client,
		shares: NewZSet(client, shareLogKey),
	}
}

func (rs *RedisSink) Name() string {
	return "redis"
}

func (rs *RedisSink) Write(ctx context.Context, shares []Share) error {
	members := make([]ZSetKVP, 0, len(shares))
	for _, s := range shares {
		encoded, err := json.Marshal(s)
		if err != nil {
			return errors.Wrap(err, "failed encoding share")
		}
		members = append(members, ZSetKVP{
			Score:  float64(s.Time.Unix()),
			Member: string(encoded),
		})
	}
	_, err := rs.shares.AddValues(ctx, members...)
	return errors.Wrap(err, "failed writing shares to redis")
}

func (rs *RedisSink) Prune(ctx context.Context, before time.Time) (int64, error) {
	return rs.shares.RemoveByScore(ctx, 0, before.Unix())
}

func (rs *RedisSink) Ping(ctx context.Context) error {
	return rs.client.Ping(ctx).Err()
}

// Count is the number of shares currently journaled.
func (rs *RedisSink) Count(ctx context.Context) (int64, error) {
	return rs.shares.Count(ctx)
}

// Recent returns the shares recorded between since and now, oldest first.
func (rs *RedisSink) Recent(ctx context.Context, since time.Time, limit int64) ([]Share, error) {
	raw, err := rs.shares.GetValuesByScore(ctx, since.Unix(), time.Now().Unix(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed reading shares from redis")
	}
	out := make([]Share, 0, len(raw))
	for _, r := range raw {
		s := Share{}
		if err := json.Unmarshal([]byte(r), &s); err != nil {
			return nil, errors.Wrap(err, "failed decoding share")
		}
		out = append(out, s)
	}
	return out, nil
}
