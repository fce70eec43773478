// Package events publishes committed finalization results to a Redis stream for downstream
// consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"mentor_match/internal/app"
)

// FinalizedResult is the JSON body of one stream entry.
type FinalizedResult struct {
	CycleID     string              `json:"cycle_id"`
	CycleName   string              `json:"cycle_name"`
	FinalizedAt time.Time           `json:"finalized_at"`
	Assignments map[string][]string `json:"assignments"` // sponsor ID -> applicant IDs
	Unmatched   []string            `json:"unmatched"`
	Passes      int                 `json:"passes"`
	Proposals   int                 `json:"proposals"`
}

// ResultPublisher appends one entry per finalized cycle to a Redis stream.
type ResultPublisher struct {
	client *redis.Client
	stream string
	logger *logrus.Entry
}

func NewResultPublisher(client *redis.Client, stream string, logger *logrus.Entry) *ResultPublisher {
	return &ResultPublisher{client: client, stream: stream, logger: logger}
}

func newFinalizedResult(f *app.Finalization) FinalizedResult {
	res := FinalizedResult{
		CycleID:     f.Cycle.ID,
		CycleName:   f.Cycle.Name,
		FinalizedAt: f.FinalizedAt.UTC(),
		Assignments: make(map[string][]string, len(f.Sponsors)),
		Unmatched:   f.Unmatched,
		Passes:      f.Passes,
		Proposals:   f.Proposals,
	}
	for _, s := range f.Sponsors {
		matches := s.Matches
		if matches == nil {
			matches = []string{}
		}
		res.Assignments[s.ID] = matches
	}
	if res.Unmatched == nil {
		res.Unmatched = []string{}
	}
	return res
}

// NotifyFinalized implements app.FinalizationNotifier.
func (p *ResultPublisher) NotifyFinalized(ctx context.Context, f *app.Finalization) error {
	body, err := json.Marshal(newFinalizedResult(f))
	if err != nil {
		return fmt.Errorf("failed to encode finalized result: %w", err)
	}

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"cycle_id":  f.Cycle.ID,
			"data":      string(body),
			"timestamp": f.FinalizedAt.Unix(),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to publish finalized result to %s: %w", p.stream, err)
	}

	p.logger.WithFields(logrus.Fields{"cycle_id": f.Cycle.ID, "stream": p.stream, "message_id": id}).Info("Finalized result published")
	return nil
}

// NewRedisClient connects to Redis and pings it.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}
	return client, nil
}
