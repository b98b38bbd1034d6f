package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/sawpanic/orthofit/internal/sweep"
)

// RedisOptions configures a RedisSink.
type RedisOptions struct {
	KeyPrefix string
	TTL       time.Duration
	// RowsPerSecond paces row writes; 0 disables pacing.
	RowsPerSecond float64
	Burst         int
}

// RedisSink stores a run in the hash <prefix><run_id>, one field per grid
// point holding the point as JSON. Each grid row is a single HSET.
type RedisSink struct {
	client  redis.Cmdable
	opts    RedisOptions
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

type redisPoint struct {
	Coefficients []jsonFloat `json:"coefficients"`
	Error        jsonFloat   `json:"error"`
	Degenerate   int         `json:"degenerate"`
}

// NewRedisSink wraps client. The client is closed by Close when it
// implements io.Closer.
func NewRedisSink(client redis.Cmdable, opts RedisOptions) *RedisSink {
	limit := rate.Inf
	if opts.RowsPerSecond > 0 {
		limit = rate.Limit(opts.RowsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	return &RedisSink{
		client:  client,
		opts:    opts,
		limiter: rate.NewLimiter(limit, burst),
		breaker: newBreaker("redis-sink"),
	}
}

// DialRedis connects to addr and verifies the connection with PING.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

// Key returns the hash key of a run.
func (s *RedisSink) Key(runID string) string {
	return s.opts.KeyPrefix + runID
}

// Name implements Sink.
func (s *RedisSink) Name() string { return "redis" }

// Write implements Sink.
func (s *RedisSink) Write(ctx context.Context, res *Result) error {
	key := s.Key(res.RunID)
	written := 0
	for _, row := range res.Grid.Rows {
		if len(row.Cells) == 0 {
			continue
		}
		values, err := rowFields(row)
		if err != nil {
			return err
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		_, err = s.breaker.Execute(func() (interface{}, error) {
			return nil, s.client.HSet(ctx, key, values...).Err()
		})
		if err != nil {
			return fmt.Errorf("hset %s row %d: %w", key, row.Index, err)
		}
		written++
	}

	if s.opts.TTL > 0 && written > 0 {
		if err := s.client.Expire(ctx, key, s.opts.TTL).Err(); err != nil {
			return fmt.Errorf("expire %s: %w", key, err)
		}
	}
	log.Debug().Str("key", key).Int("rows", written).Msg("Redis hash written")
	return nil
}

func rowFields(row sweep.Row) ([]interface{}, error) {
	values := make([]interface{}, 0, 2*len(row.Cells))
	for _, cell := range row.Cells {
		data, err := json.Marshal(redisPoint{
			Coefficients: jsonFloats(cell.Coefficients),
			Error:        jsonFloat(cell.Error),
			Degenerate:   cell.Degenerate,
		})
		if err != nil {
			return nil, err
		}
		values = append(values, PointKey(cell.Row, cell.Col), string(data))
	}
	return values, nil
}

// Close implements Sink.
func (s *RedisSink) Close() error {
	if c, ok := s.client.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
