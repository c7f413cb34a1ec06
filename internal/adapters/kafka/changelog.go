// Package kafka implements ports.ChangeLog on Kafka topics. Each source
// reference maps to one single-partition topic so change order is total per
// source.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/nimafallahian/go-indexsync/internal/domain"
	"github.com/nimafallahian/go-indexsync/internal/ports"
)

const defaultPollTimeout = 2 * time.Second

// changeEvent is the wire representation of one change record.
type changeEvent struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

// ChangeLog reads change records from per-source Kafka topics. Cursors are
// partition offsets; the log cannot report a total, so feeds over it deliver
// counts-only progress.
type ChangeLog struct {
	brokers     []string
	topicPrefix string
	pollTimeout time.Duration

	mu      sync.Mutex
	readers map[string]*kafkago.Reader
}

// NewChangeLog constructs a ChangeLog. A non-empty topicPrefix namespaces
// topics as "<prefix>.<source>".
func NewChangeLog(brokers []string, topicPrefix string) (*ChangeLog, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("brokers must not be empty")
	}
	return &ChangeLog{
		brokers:     brokers,
		topicPrefix: topicPrefix,
		pollTimeout: defaultPollTimeout,
		readers:     make(map[string]*kafkago.Reader),
	}, nil
}

func (c *ChangeLog) topic(source string) string {
	if c.topicPrefix == "" {
		return source
	}
	return c.topicPrefix + "." + source
}

func (c *ChangeLog) reader(source string) *kafkago.Reader {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.readers[source]; ok {
		return r
	}
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:   c.brokers,
		Topic:     c.topic(source),
		Partition: 0,
	})
	c.readers[source] = r
	return r
}

// Changes implements ports.ChangeLog. An empty next cursor means the window
// is exhausted: either the end bound was reached or the topic is caught up
// (no message within the poll timeout).
func (c *ChangeLog) Changes(ctx context.Context, source string, window ports.Window, cursor string, limit int) ([]domain.ChangeRecord, string, *int64, error) {
	if limit < 1 {
		return nil, "", nil, fmt.Errorf("limit must be at least 1, got %d", limit)
	}

	r := c.reader(source)
	if cursor == "" {
		if window.Start != nil {
			if err := r.SetOffsetAt(ctx, *window.Start); err != nil {
				return nil, "", nil, fmt.Errorf("seek %s to window start: %w", c.topic(source), err)
			}
		} else if err := r.SetOffset(kafkago.FirstOffset); err != nil {
			return nil, "", nil, fmt.Errorf("rewind %s: %w", c.topic(source), err)
		}
	} else {
		offset, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return nil, "", nil, fmt.Errorf("malformed cursor %q: %w", cursor, err)
		}
		if err := r.SetOffset(offset); err != nil {
			return nil, "", nil, fmt.Errorf("seek %s to cursor: %w", c.topic(source), err)
		}
	}

	var records []domain.ChangeRecord
	next := int64(-1)
	for len(records) < limit {
		fetchCtx, cancel := context.WithTimeout(ctx, c.pollTimeout)
		m, err := r.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				// Caught up with the topic head.
				return records, "", nil, nil
			}
			if errors.Is(err, io.EOF) {
				return records, "", nil, nil
			}
			return nil, "", nil, fmt.Errorf("fetch from %s: %w", c.topic(source), err)
		}

		var ev changeEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			return nil, "", nil, fmt.Errorf("decode change event at offset %d: %w", m.Offset, err)
		}

		ts := ev.Timestamp
		if ts.IsZero() {
			ts = m.Time
		}
		if window.End != nil && !ts.Before(*window.End) {
			return records, "", nil, nil
		}

		records = append(records, domain.ChangeRecord{
			ID:        ev.ID,
			Kind:      domain.ParseChangeKind(ev.Kind),
			Timestamp: ts,
			Source:    source,
		})
		next = m.Offset + 1
	}
	return records, strconv.FormatInt(next, 10), nil, nil
}

// Close releases all underlying readers.
func (c *ChangeLog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for source, r := range c.readers {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.readers, source)
	}
	return firstErr
}
