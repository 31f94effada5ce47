package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wifi-slicing/slicectl/slicing"
)

// DefaultKeyPrefix namespaces the Redis keys written by Redis.
const DefaultKeyPrefix = "slicectl"

// Redis keeps one sorted set per station, scored by the record time in unix
// milliseconds. Appends prune entries older than retention and refresh the
// key's expiry, so idle stations disappear on their own.
type Redis struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

// NewRedis connects to the server at url and verifies it with a ping.
func NewRedis(ctx context.Context, url string, retention time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return NewRedisWithClient(client, DefaultKeyPrefix, retention), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, prefix string, retention time.Duration) *Redis {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Redis{client: client, prefix: prefix, retention: retention}
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) key(sta slicing.StationID) string {
	return r.prefix + ":handovers:" + string(sta)
}

// Append stores rec and prunes the station's entries outside retention.
func (r *Redis) Append(ctx context.Context, rec slicing.HandoverRecord) error {
	member, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	key := r.key(rec.Station)

	pipe := r.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(rec.At.UnixMilli()), Member: member})
	if r.retention > 0 {
		cutoff := rec.At.Add(-r.retention).UnixMilli()
		pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(cutoff, 10))
		pipe.Expire(ctx, key, r.retention)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append handover %s: %w", rec.Station, err)
	}
	return nil
}

// Recent returns the station's records with At >= since, oldest first.
func (r *Redis) Recent(ctx context.Context, sta slicing.StationID, since time.Time) ([]slicing.HandoverRecord, error) {
	members, err := r.client.ZRangeByScore(ctx, r.key(sta), &redis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("read handovers %s: %w", sta, err)
	}
	return decodeMembers(sta, members, since)
}

// decodeMembers decodes sorted-set members into records with At >= since,
// oldest first. Members sharing a millisecond score come back from Redis in
// lexical order, so the records are re-sorted by their full timestamp.
func decodeMembers(sta slicing.StationID, members []string, since time.Time) ([]slicing.HandoverRecord, error) {
	out := make([]slicing.HandoverRecord, 0, len(members))
	for _, m := range members {
		rec, err := decodeRecord(sta, m)
		if err != nil {
			return nil, err
		}
		if rec.At.Before(since) {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

// storedRecord is the sorted-set member encoding. The nanosecond timestamp
// keeps members distinct when a station returns to the same radio.
type storedRecord struct {
	AP    string `json:"ap"`
	Block int    `json:"block"`
	At    int64  `json:"at"`
}

func encodeRecord(rec slicing.HandoverRecord) (string, error) {
	b, err := json.Marshal(storedRecord{AP: string(rec.AP), Block: rec.Block, At: rec.At.UnixNano()})
	if err != nil {
		return "", fmt.Errorf("encode handover record: %w", err)
	}
	return string(b), nil
}

func decodeRecord(sta slicing.StationID, member string) (slicing.HandoverRecord, error) {
	var s storedRecord
	if err := json.Unmarshal([]byte(member), &s); err != nil {
		return slicing.HandoverRecord{}, fmt.Errorf("decode handover record %q: %w", member, err)
	}
	return slicing.HandoverRecord{
		Station: sta,
		AP:      slicing.AccessPointID(s.AP),
		Block:   s.Block,
		At:      time.Unix(0, s.At),
	}, nil
}
