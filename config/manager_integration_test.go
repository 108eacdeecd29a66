//go:build integration

package config

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/suite"

	"github.com/c360/docmesh/natsclient"
)

type ManagerKVSuite struct {
	suite.Suite
	tc     *natsclient.TestClient
	bucket jetstream.KeyValue
}

func (s *ManagerKVSuite) SetupSuite() {
	s.tc = natsclient.NewTestClient(s.T())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	bucket, err := s.tc.Client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{Bucket: "docmesh-config"})
	s.Require().NoError(err)
	s.bucket = bucket
}

func (s *ManagerKVSuite) TestPushedConfigReachesOtherReplica() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := Defaults()
	cfg.Aggregation.MaxParallelism = 3
	cfg.Aggregation.RefreshInterval = 2 * time.Minute
	publisher, err := NewManager(cfg, nil)
	s.Require().NoError(err)

	follower, err := NewManager(Defaults(), nil)
	s.Require().NoError(err)
	defer func() { _ = follower.Stop(time.Second) }()
	updates := follower.OnChange()

	s.Require().NoError(follower.WatchKV(ctx, s.bucket, "config", NewLoader()))
	s.Require().NoError(publisher.PushToKV(ctx, s.bucket, "config"))

	select {
	case u := <-updates:
		s.Equal(SourceKV, u.Source)
		s.Equal(3, u.Config.Aggregation.MaxParallelism)
		s.Equal(2*time.Minute, u.Config.Aggregation.RefreshInterval)
	case <-ctx.Done():
		s.Fail("follower never received the pushed configuration")
	}
}

func (s *ManagerKVSuite) TestInvalidValueKeepsCurrent() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	m, err := NewManager(Defaults(), nil)
	s.Require().NoError(err)
	defer func() { _ = m.Stop(time.Second) }()

	s.Require().NoError(m.WatchKV(ctx, s.bucket, "invalid", NewLoader()))
	_, err = s.bucket.Put(ctx, "invalid", []byte(`{"aggregation": {"max_parallelism": 999}}`))
	s.Require().NoError(err)

	time.Sleep(200 * time.Millisecond)
	s.Equal(10, m.Options().MaxParallelism)
}

func TestManagerKVSuite(t *testing.T) {
	suite.Run(t, new(ManagerKVSuite))
}
