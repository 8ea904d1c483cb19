package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"stream-anomaly-detector/models"
)

const (
	keyPrefix  = "record:"
	DefaultTTL = 5 * time.Minute
)

// store is the subset of redis.Cmdable the cache needs.
type store interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisClient keeps the most recent classification record of every stream
// so dashboards outside the process can poll it. Window state is never
// written here.
type RedisClient struct {
	store  store
	closer func() error
	ttl    time.Duration
}

func NewRedisClient(ctx context.Context, addr, password string, db int) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "ping redis at %s", addr)
	}

	return &RedisClient{
		store:  rdb,
		closer: rdb.Close,
		ttl:    DefaultTTL,
	}, nil
}

func (rc *RedisClient) Close() error {
	if rc.closer == nil {
		return nil
	}
	return rc.closer()
}

func (rc *RedisClient) Ping(ctx context.Context) error {
	return rc.store.Ping(ctx).Err()
}

func recordKey(stream string) string {
	return keyPrefix + stream
}

func (rc *RedisClient) SaveRecord(ctx context.Context, record models.ClassificationRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "marshal record")
	}

	if err := rc.store.Set(ctx, recordKey(record.Stream), data, rc.ttl).Err(); err != nil {
		return errors.Wrapf(err, "save record for stream %q", record.Stream)
	}
	return nil
}

// GetRecord returns nil without an error when nothing is cached for stream.
func (rc *RedisClient) GetRecord(ctx context.Context, stream string) (*models.ClassificationRecord, error) {
	val, err := rc.store.Get(ctx, recordKey(stream)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get record for stream %q", stream)
	}

	var record models.ClassificationRecord
	if err := json.Unmarshal(val, &record); err != nil {
		return nil, errors.Wrap(err, "unmarshal record")
	}
	return &record, nil
}

// RedisSink publishes every record to the cache. Failures are logged and
// never reach the classification path.
type RedisSink struct {
	client  *RedisClient
	timeout time.Duration
	logger  logrus.FieldLogger
}

func NewRedisSink(client *RedisClient, timeout time.Duration, logger logrus.FieldLogger) *RedisSink {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RedisSink{client: client, timeout: timeout, logger: logger}
}

func (s *RedisSink) Emit(record models.ClassificationRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.client.SaveRecord(ctx, record); err != nil {
		s.logger.WithError(err).WithField("stream", record.Stream).Warn("failed to cache record")
	}
}
