//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"veridoc/internal/platform/kafka/producer"
	audit "veridoc/pkg/platform/audit"
	auditkafka "veridoc/pkg/platform/audit/kafka"
	"veridoc/pkg/testutil/containers"
)

type KafkaAuditStoreSuite struct {
	suite.Suite
	kafka    *containers.KafkaContainer
	producer *producer.Producer
}

func TestKafkaAuditStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaAuditStoreSuite))
}

func (s *KafkaAuditStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.kafka = mgr.GetKafka(s.T())

	prod, err := producer.New(producer.Config{
		Brokers:         s.kafka.Brokers,
		Acks:            "all",
		Retries:         3,
		DeliveryTimeout: 10 * time.Second,
	}, nil)
	s.Require().NoError(err)
	s.producer = prod
}

func (s *KafkaAuditStoreSuite) TearDownSuite() {
	if s.producer != nil {
		s.producer.Close()
	}
}

// TestAppendProducesConsumableEvent verifies the event round-trips through the
// broker keyed by request ID with action and outcome headers.
func (s *KafkaAuditStoreSuite) TestAppendProducesConsumableEvent() {
	ctx := context.Background()
	topic := "audit-events-roundtrip"

	s.Require().NoError(s.kafka.CreateTopic(ctx, topic, 1, 1))

	store := auditkafka.NewStore(s.producer, topic)
	event := audit.Event{
		Timestamp: time.Now().UTC().Truncate(time.Second),
		RequestID: "req-kafka-1",
		Action:    audit.ActionDocumentIssue,
		EntityID:  "doc-42",
		Outcome:   audit.OutcomeCompleted,
		Details:   map[string]string{"stage": "anchored"},
	}

	s.Require().NoError(store.Append(ctx, event))

	consumer, err := s.kafka.NewConsumer(ctx, "audit-roundtrip-group", topic)
	s.Require().NoError(err)
	defer consumer.Close()

	record := s.kafka.WaitForMessage(ctx, consumer, 10*time.Second, func(r *kgo.Record) bool {
		return string(r.Key) == "req-kafka-1"
	})
	s.Require().NotNil(record, "audit event should be consumable")

	var got audit.Event
	s.Require().NoError(json.Unmarshal(record.Value, &got))
	s.Equal(event.Action, got.Action)
	s.Equal(event.EntityID, got.EntityID)
	s.Equal(event.Outcome, got.Outcome)
	s.Equal("anchored", got.Details["stage"])

	headers := make(map[string]string)
	for _, h := range record.Headers {
		headers[h.Key] = string(h.Value)
	}
	s.Equal(string(audit.ActionDocumentIssue), headers["action"])
	s.Equal(string(audit.OutcomeCompleted), headers["outcome"])
}

// TestEventsShareAPartitionByRequestID verifies ordering for one orchestration:
// events with the same request ID land on the same partition in append order.
func (s *KafkaAuditStoreSuite) TestEventsShareAPartitionByRequestID() {
	ctx := context.Background()
	topic := "audit-events-ordering"

	s.Require().NoError(s.kafka.CreateTopic(ctx, topic, 3, 1))

	store := auditkafka.NewStore(s.producer, topic)
	outcomes := []audit.Outcome{audit.OutcomeStarted, audit.OutcomeCompleted}
	for _, outcome := range outcomes {
		s.Require().NoError(store.Append(ctx, audit.Event{
			RequestID: "req-ordering",
			Action:    audit.ActionTransition,
			Outcome:   outcome,
		}))
	}

	consumer, err := s.kafka.NewConsumer(ctx, "audit-ordering-group", topic)
	s.Require().NoError(err)
	defer consumer.Close()

	var records []*kgo.Record
	deadline := time.Now().Add(10 * time.Second)
	for len(records) < 2 && time.Now().Before(deadline) {
		fetches := consumer.PollFetches(ctx)
		fetches.EachRecord(func(r *kgo.Record) {
			if string(r.Key) == "req-ordering" {
				records = append(records, r)
			}
		})
	}

	s.Require().Len(records, 2)
	s.Equal(records[0].Partition, records[1].Partition)
	s.Less(records[0].Offset, records[1].Offset)

	var first, second audit.Event
	s.Require().NoError(json.Unmarshal(records[0].Value, &first))
	s.Require().NoError(json.Unmarshal(records[1].Value, &second))
	s.Equal(audit.OutcomeStarted, first.Outcome)
	s.Equal(audit.OutcomeCompleted, second.Outcome)
}
