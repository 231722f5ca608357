package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/stratamed/journeysim/internal/cohort"
	"github.com/stratamed/journeysim/internal/journey"
	"github.com/stratamed/journeysim/internal/metrics"
)

// JSONLSink writes one JSON document per line: a record per timeline event,
// then a record per linked entity, then the run summary.
type JSONLSink struct {
	path string
}

// NewJSONLSink creates a sink writing to the given path.
func NewJSONLSink(path string) *JSONLSink {
	return &JSONLSink{path: path}
}

type eventRecord struct {
	Record   string        `json:"record"`
	RunID    string        `json:"run_id"`
	EntityID string        `json:"entity_id"`
	Vertical string        `json:"vertical"`
	Event    journey.Event `json:"event"`
}

type linkRecord struct {
	Record string `json:"record"`
	RunID  string `json:"run_id"`
	Link   any    `json:"link"`
}

type summaryRecord struct {
	Record string       `json:"record"`
	RunID  string       `json:"run_id"`
	Stats  cohort.Stats `json:"stats"`
}

// WriteResult writes the run as JSON lines.
func (s *JSONLSink) WriteResult(ctx context.Context, res *cohort.Result) error {
	start := time.Now()
	f, err := os.Create(s.path)
	if err != nil {
		metrics.SinkErrors.Inc()
		return fmt.Errorf("create %s: %w", s.path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)

	for _, entityID := range res.Entities {
		if err := ctx.Err(); err != nil {
			return err
		}
		tl := res.Timelines[entityID]
		vertical := ""
		if st, ok := res.States[entityID]; ok {
			vertical = string(st.Vertical)
		}
		for _, ev := range tl.Events() {
			rec := eventRecord{Record: "event", RunID: res.RunID, EntityID: entityID, Vertical: vertical, Event: ev}
			if err := enc.Encode(rec); err != nil {
				metrics.SinkErrors.Inc()
				return fmt.Errorf("encode event: %w", err)
			}
		}
	}

	for _, le := range res.OrderedLinks() {
		if err := enc.Encode(linkRecord{Record: "link", RunID: res.RunID, Link: le}); err != nil {
			metrics.SinkErrors.Inc()
			return fmt.Errorf("encode link: %w", err)
		}
	}

	if err := enc.Encode(summaryRecord{Record: "summary", RunID: res.RunID, Stats: res.Stats}); err != nil {
		metrics.SinkErrors.Inc()
		return fmt.Errorf("encode summary: %w", err)
	}

	if err := w.Flush(); err != nil {
		metrics.SinkErrors.Inc()
		return fmt.Errorf("flush %s: %w", s.path, err)
	}
	metrics.SinkWriteDuration.Observe(time.Since(start).Seconds())
	return nil
}

// Close is a no-op; the file handle is per-write.
func (s *JSONLSink) Close() error { return nil }
