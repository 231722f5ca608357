package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/stratamed/journeysim/internal/cohort"
	"github.com/stratamed/journeysim/internal/journey"
	"github.com/stratamed/journeysim/internal/metrics"
)

// NATS subjects published by the sink.
const (
	SubjectTimelineCompleted = "journeysim.timelines.completed"
	SubjectLinkCreated       = "journeysim.links.created"
	SubjectRunCompleted      = "journeysim.runs.completed"
)

// NATSConfig holds NATS sink configuration.
type NATSConfig struct {
	URL           string
	Name          string
	Timeout       time.Duration
	MaxReconnects int
}

// DefaultNATSConfig returns a config with sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Name:          "journeysim",
		Timeout:       5 * time.Second,
		MaxReconnects: -1,
	}
}

// NATSSink publishes finalized timelines and links as messages.
type NATSSink struct {
	conn *nats.Conn
}

// NewNATSSink connects to the NATS server.
func NewNATSSink(cfg NATSConfig) (*NATSSink, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.Timeout),
	}
	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSSink{conn: conn}, nil
}

type timelineMessage struct {
	RunID    string          `json:"run_id"`
	EntityID string          `json:"entity_id"`
	Vertical string          `json:"vertical"`
	Anchor   time.Time       `json:"anchor"`
	Events   []journey.Event `json:"events"`
}

type runMessage struct {
	RunID string       `json:"run_id"`
	Stats cohort.Stats `json:"stats"`
}

// WriteResult publishes one message per timeline, one per link, and a run
// summary. Timelines are complete when published; the engine defers all
// output until an entity is finalized.
func (s *NATSSink) WriteResult(ctx context.Context, res *cohort.Result) error {
	start := time.Now()

	for _, entityID := range res.Entities {
		if err := ctx.Err(); err != nil {
			return err
		}
		tl := res.Timelines[entityID]
		vertical := ""
		if st, ok := res.States[entityID]; ok {
			vertical = string(st.Vertical)
		}
		msg := timelineMessage{
			RunID:    res.RunID,
			EntityID: entityID,
			Vertical: vertical,
			Anchor:   tl.Anchor,
			Events:   tl.Events(),
		}
		if err := s.publish(SubjectTimelineCompleted, msg); err != nil {
			return err
		}
	}

	for _, le := range res.OrderedLinks() {
		if err := s.publish(SubjectLinkCreated, le); err != nil {
			return err
		}
	}

	if err := s.publish(SubjectRunCompleted, runMessage{RunID: res.RunID, Stats: res.Stats}); err != nil {
		return err
	}

	if err := s.conn.FlushTimeout(5 * time.Second); err != nil {
		metrics.SinkErrors.Inc()
		return fmt.Errorf("flush: %w", err)
	}
	metrics.SinkWriteDuration.Observe(time.Since(start).Seconds())
	return nil
}

func (s *NATSSink) publish(subject string, data any) error {
	bytes, err := json.Marshal(data)
	if err != nil {
		metrics.SinkErrors.Inc()
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := s.conn.Publish(subject, bytes); err != nil {
		metrics.SinkErrors.Inc()
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close drains and closes the connection.
func (s *NATSSink) Close() error {
	s.conn.Close()
	return nil
}
