package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/RahulByline/pdf-to-epub-sub002/models"
)

const jobKeyPrefix = "conversion_job:"

// RedisStore persists job records as JSON values with an expiration
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(ctx context.Context, addr string, db int, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("unable to connect to redis: %w", err)
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

// Save writes the job record with the configured TTL
func (s *RedisStore) Save(ctx context.Context, job *models.ConversionJob) error {
	record, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job data: %w", err)
	}
	if err := s.client.Set(ctx, jobKeyPrefix+job.ID, record, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	return nil
}

// LoadAll scans all persisted job records
func (s *RedisStore) LoadAll(ctx context.Context) ([]*models.ConversionJob, error) {
	var jobs []*models.ConversionJob
	iter := s.client.Scan(ctx, 0, jobKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		record, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return nil, fmt.Errorf("failed to read job %s: %w", iter.Val(), err)
		}
		var job models.ConversionJob
		if err := json.Unmarshal(record, &job); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job record: %w", err)
		}
		jobs = append(jobs, &job)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan jobs: %w", err)
	}
	return jobs, nil
}

// Delete removes the job record
func (s *RedisStore) Delete(ctx context.Context, jobID string) error {
	if err := s.client.Del(ctx, jobKeyPrefix+jobID).Err(); err != nil {
		return fmt.Errorf("failed to delete job %s: %w", jobID, err)
	}
	return nil
}

// Close releases the Redis client
func (s *RedisStore) Close() error {
	return s.client.Close()
}
