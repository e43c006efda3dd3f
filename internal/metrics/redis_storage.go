package metrics

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces metric keys.
const DefaultRedisPrefix = "tbe:metrics:"

// RedisStorage persists metric history as sorted sets scored by Unix time.
type RedisStorage struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStorage connects and pings Redis.
func NewRedisStorage(url string) (*RedisStorage, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &RedisStorage{client: client, prefix: DefaultRedisPrefix, ttl: 24 * time.Hour}, nil
}

// member encodes a point so equal values at different times stay distinct
// members of the set.
func member(dp DataPoint) string {
	return strconv.FormatInt(dp.Timestamp.Unix(), 10) + ":" + strconv.FormatFloat(dp.Value, 'f', -1, 64)
}

func parseMember(s string) (float64, bool) {
	_, v, ok := strings.Cut(s, ":")
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	return f, err == nil
}

// SaveDataPoint stores one point and drops points older than the TTL.
func (rs *RedisStorage) SaveDataPoint(ctx context.Context, metric string, dp DataPoint) error {
	return rs.SaveBatch(ctx, metric, []DataPoint{dp})
}

// SaveBatch stores several points in one pipeline.
func (rs *RedisStorage) SaveBatch(ctx context.Context, metric string, points []DataPoint) error {
	if len(points) == 0 {
		return nil
	}
	key := rs.prefix + metric

	zs := make([]redis.Z, len(points))
	for i, dp := range points {
		zs[i] = redis.Z{Score: float64(dp.Timestamp.Unix()), Member: member(dp)}
	}

	pipe := rs.client.Pipeline()
	pipe.ZAdd(ctx, key, zs...)
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(time.Now().Add(-rs.ttl).Unix(), 10))
	pipe.Expire(ctx, key, rs.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving data points: %w", err)
	}
	return nil
}

// LoadHistory returns points at or after since in time order.
func (rs *RedisStorage) LoadHistory(ctx context.Context, metric string, since time.Time) ([]DataPoint, error) {
	zs, err := rs.client.ZRangeByScoreWithScores(ctx, rs.prefix+metric, &redis.ZRangeBy{
		Min: strconv.FormatInt(since.Unix(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	points := make([]DataPoint, 0, len(zs))
	for _, z := range zs {
		s, ok := z.Member.(string)
		if !ok {
			continue
		}
		v, ok := parseMember(s)
		if !ok {
			continue
		}
		points = append(points, DataPoint{Timestamp: time.Unix(int64(z.Score), 0), Value: v})
	}
	return points, nil
}

// MetricNames lists stored series using SCAN.
func (rs *RedisStorage) MetricNames(ctx context.Context) ([]string, error) {
	var names []string
	iter := rs.client.Scan(ctx, 0, rs.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		names = append(names, strings.TrimPrefix(iter.Val(), rs.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("listing metrics: %w", err)
	}
	return names, nil
}

// DeleteMetric removes one series.
func (rs *RedisStorage) DeleteMetric(ctx context.Context, metric string) error {
	if err := rs.client.Del(ctx, rs.prefix+metric).Err(); err != nil {
		return fmt.Errorf("deleting metric: %w", err)
	}
	return nil
}

// SetTTL sets how long points are kept.
func (rs *RedisStorage) SetTTL(ttl time.Duration) {
	rs.ttl = ttl
}

// SetPrefix changes the key namespace.
func (rs *RedisStorage) SetPrefix(prefix string) {
	rs.prefix = prefix
}

// Close closes the Redis connection.
func (rs *RedisStorage) Close() error {
	return rs.client.Close()
}
