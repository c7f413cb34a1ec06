package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	kafkamodule "github.com/testcontainers/testcontainers-go/modules/kafka"

	adapterskafka "github.com/nimafallahian/go-indexsync/internal/adapters/kafka"
	"github.com/nimafallahian/go-indexsync/internal/domain"
	"github.com/nimafallahian/go-indexsync/internal/ports"
)

var (
	kafkaContainer *kafkamodule.KafkaContainer
	kafkaBrokers   []string
)

func TestMain(m *testing.M) {
	// If Docker is not available (common in restricted CI or IDE sandboxes),
	// skip spinning up Kafka and let tests decide whether to run.
	if _, err := os.Stat("/var/run/docker.sock"); err != nil {
		os.Exit(m.Run())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var err error
	kafkaContainer, err = kafkamodule.Run(ctx,
		"confluentinc/confluent-local:7.5.0",
		kafkamodule.WithClusterID("test-cluster"),
	)
	if err != nil {
		panic(err)
	}

	kafkaBrokers, err = kafkaContainer.Brokers(ctx)
	if err != nil {
		_ = kafkaContainer.Terminate(ctx)
		panic(err)
	}

	code := m.Run()

	_ = kafkaContainer.Terminate(context.Background())

	os.Exit(code)
}

type wireChange struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

func produceChanges(t *testing.T, ctx context.Context, topic string, events []wireChange) {
	t.Helper()

	// Ensure the topic exists before producing to avoid UNKNOWN_TOPIC_OR_PARTITION.
	adminConn, err := kafkago.Dial("tcp", kafkaBrokers[0])
	require.NoError(t, err)
	err = adminConn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	require.NoError(t, err)
	require.NoError(t, adminConn.Close())

	writer := &kafkago.Writer{
		Addr:         kafkago.TCP(kafkaBrokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	defer func() { _ = writer.Close() }()

	msgs := make([]kafkago.Message, 0, len(events))
	for _, ev := range events {
		value, err := json.Marshal(ev)
		require.NoError(t, err)
		msgs = append(msgs, kafkago.Message{Value: value, Time: ev.Timestamp})
	}
	require.NoError(t, writer.WriteMessages(ctx, msgs...))
}

func TestChangeLogReadsRecordsInOrder(t *testing.T) {
	if len(kafkaBrokers) == 0 {
		t.Skip("kafka container not available")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	base := time.Now().UTC().Truncate(time.Second)
	produceChanges(t, ctx, "changes.item", []wireChange{
		{ID: "item-1", Kind: "created", Timestamp: base},
		{ID: "item-2", Kind: "modified", Timestamp: base.Add(time.Second)},
		{ID: "item-1", Kind: "deleted", Timestamp: base.Add(2 * time.Second)},
	})

	log, err := adapterskafka.NewChangeLog(kafkaBrokers, "changes")
	require.NoError(t, err)
	defer func() { _ = log.Close() }()

	records, next, total, err := log.Changes(ctx, "item", ports.Window{}, "", 10)
	require.NoError(t, err)
	require.Nil(t, total, "kafka topics cannot report a total")
	require.Empty(t, next, "caught up with the topic head")
	require.Len(t, records, 3)

	require.Equal(t, "item-1", records[0].ID)
	require.Equal(t, domain.ChangeCreated, records[0].Kind)
	require.Equal(t, "item-2", records[1].ID)
	require.Equal(t, domain.ChangeModified, records[1].Kind)
	require.Equal(t, "item-1", records[2].ID)
	require.Equal(t, domain.ChangeDeleted, records[2].Kind)
	require.Equal(t, "item", records[0].Source)
	require.True(t, records[0].Timestamp.Equal(base))
}

func TestChangeLogPagesWithCursor(t *testing.T) {
	if len(kafkaBrokers) == 0 {
		t.Skip("kafka container not available")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	base := time.Now().UTC().Truncate(time.Second)
	events := make([]wireChange, 0, 5)
	for i := 0; i < 5; i++ {
		events = append(events, wireChange{
			ID:        fmt.Sprintf("page-%d", i),
			Kind:      "modified",
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
	}
	produceChanges(t, ctx, "changes.paged", events)

	log, err := adapterskafka.NewChangeLog(kafkaBrokers, "changes")
	require.NoError(t, err)
	defer func() { _ = log.Close() }()

	var all []domain.ChangeRecord
	cursor := ""
	for {
		records, next, _, err := log.Changes(ctx, "paged", ports.Window{}, cursor, 2)
		require.NoError(t, err)
		all = append(all, records...)
		if next == "" {
			break
		}
		require.LessOrEqual(t, len(records), 2)
		cursor = next
	}

	require.Len(t, all, 5)
	for i, r := range all {
		require.Equal(t, fmt.Sprintf("page-%d", i), r.ID)
	}
}

func TestChangeLogHonoursWindowEnd(t *testing.T) {
	if len(kafkaBrokers) == 0 {
		t.Skip("kafka container not available")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	produceChanges(t, ctx, "changes.windowed", []wireChange{
		{ID: "w-1", Kind: "modified", Timestamp: base},
		{ID: "w-2", Kind: "modified", Timestamp: base.Add(time.Minute)},
		{ID: "w-3", Kind: "modified", Timestamp: base.Add(2 * time.Minute)},
	})

	log, err := adapterskafka.NewChangeLog(kafkaBrokers, "changes")
	require.NoError(t, err)
	defer func() { _ = log.Close() }()

	end := base.Add(90 * time.Second)
	records, next, _, err := log.Changes(ctx, "windowed", ports.Window{End: &end}, "", 10)
	require.NoError(t, err)
	require.Empty(t, next, "reaching the end bound exhausts the window")
	require.Len(t, records, 2)
	require.Equal(t, "w-1", records[0].ID)
	require.Equal(t, "w-2", records[1].ID)
}
