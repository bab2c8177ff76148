//go:build integration

package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	audit "catalog/pkg/platform/audit"
	"catalog/pkg/testutil/containers"
)

type RedisQueueSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	queue *RedisQueue
	now   time.Time
	ctx   context.Context
}

func TestRedisQueueSuite(t *testing.T) {
	suite.Run(t, new(RedisQueueSuite))
}

func (s *RedisQueueSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.ctx = context.Background()
}

func (s *RedisQueueSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.queue = NewRedis(s.redis.Client, "activity-log", DefaultPolicy(),
		WithClock(func() time.Time { return s.now }))
}

func (s *RedisQueueSuite) reserve() *Job {
	ctx, cancel := context.WithTimeout(s.ctx, 3*time.Second)
	defer cancel()
	job, err := s.queue.Reserve(ctx)
	s.Require().NoError(err)
	return job
}

func (s *RedisQueueSuite) TestEnqueueReserveComplete() {
	event := audit.Event{ActorID: "user-1", Action: audit.ActionRecordCreated, Detail: "Created product Laptop", ClientIP: "10.0.0.1"}
	s.Require().NoError(s.queue.Enqueue(s.ctx, event))

	job := s.reserve()
	s.Equal(event, job.Event)
	s.Equal(1, job.Attempts)
	s.Equal(StateActive, job.State)
	s.True(s.now.Equal(job.EnqueuedAt))

	s.Require().NoError(s.queue.Complete(s.ctx, job))

	active, err := s.redis.Client.LLen(s.ctx, s.queue.key("active")).Result()
	s.Require().NoError(err)
	s.Zero(active)

	completed, err := s.queue.Completed(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(completed, 1)
	s.Equal(StateCompleted, completed[0].State)
}

func (s *RedisQueueSuite) TestRetriesThenFails() {
	s.Require().NoError(s.queue.Enqueue(s.ctx, audit.Event{Action: audit.ActionRecordCreated}))
	boom := errors.New("insert failed")

	job := s.reserve()
	retrying, err := s.queue.Fail(s.ctx, job, boom)
	s.Require().NoError(err)
	s.True(retrying)

	score, err := s.redis.Client.ZScore(s.ctx, s.queue.key("delayed"), job.ID).Result()
	s.Require().NoError(err)
	s.Equal(float64(s.now.Add(2*time.Second).UnixMilli()), score)

	s.now = s.now.Add(2 * time.Second)
	job = s.reserve()
	s.Equal(2, job.Attempts)
	retrying, err = s.queue.Fail(s.ctx, job, boom)
	s.Require().NoError(err)
	s.True(retrying)

	s.now = s.now.Add(4 * time.Second)
	job = s.reserve()
	s.Equal(3, job.Attempts)
	retrying, err = s.queue.Fail(s.ctx, job, boom)
	s.Require().NoError(err)
	s.False(retrying)

	failed, err := s.queue.Failed(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(failed, 1)
	s.Equal("insert failed", failed[0].LastError)

	s.now = s.now.Add(25 * time.Hour)
	failed, err = s.queue.Failed(s.ctx)
	s.Require().NoError(err)
	s.Empty(failed)

	exists, err := s.redis.Client.Exists(s.ctx, s.queue.jobKey(job.ID)).Result()
	s.Require().NoError(err)
	s.Zero(exists, "trimmed job payload is deleted")
}

func (s *RedisQueueSuite) TestCompletedTrimmedByCount() {
	s.queue.policy.CompletedMaxCount = 2
	for i := 0; i < 3; i++ {
		s.Require().NoError(s.queue.Enqueue(s.ctx, audit.Event{Action: audit.ActionRecordCreated}))
		s.Require().NoError(s.queue.Complete(s.ctx, s.reserve()))
		s.now = s.now.Add(time.Second)
	}

	completed, err := s.queue.Completed(s.ctx)
	s.Require().NoError(err)
	s.Len(completed, 2)
}

func (s *RedisQueueSuite) TestRequeueStalled() {
	s.Require().NoError(s.queue.Enqueue(s.ctx, audit.Event{Action: audit.ActionRecordCreated, Detail: "stalled"}))
	_ = s.reserve()

	n, err := s.queue.RequeueStalled(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, n)

	job := s.reserve()
	s.Equal("stalled", job.Event.Detail)
	s.Equal(2, job.Attempts)
}

func (s *RedisQueueSuite) TestReserveHonoursContext() {
	ctx, cancel := context.WithTimeout(s.ctx, 100*time.Millisecond)
	defer cancel()

	_, err := s.queue.Reserve(ctx)
	s.Error(err)
}
