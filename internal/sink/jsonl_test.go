package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratamed/journeysim/internal/cohort"
	"github.com/stratamed/journeysim/internal/entity"
	"github.com/stratamed/journeysim/internal/journey"
	"github.com/stratamed/journeysim/internal/trigger"
)

func fixtureResult(t *testing.T) *cohort.Result {
	t.Helper()
	anchor := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	st := entity.NewState("pat-1", entity.VerticalPatient)
	tl := journey.NewTimeline("pat-1", anchor)
	require.NoError(t, tl.Append(journey.Event{
		InstanceID: "e1#0", DefinitionID: "e1", Type: "rx.written",
		Time: anchor, Status: journey.StatusOccurred,
	}))
	require.NoError(t, tl.Append(journey.Event{
		InstanceID: "e2#0", DefinitionID: "e2", Type: "review.senior",
		Time: anchor.Add(24 * time.Hour), Status: journey.StatusSkipped,
	}))

	link := &trigger.LinkedEntity{
		CanonicalID:    "canon-1",
		Locals:         map[entity.Vertical]string{entity.VerticalPatient: "pat-1"},
		SourceEntityID: "pat-1",
		SourceEventID:  "e1#0",
	}

	return &cohort.Result{
		RunID:     "run-1",
		Entities:  []string{"pat-1"},
		States:    map[string]*entity.State{"pat-1": st},
		Timelines: map[string]*journey.Timeline{"pat-1": tl},
		Links:     map[string]*trigger.LinkedEntity{"canon-1": link},
		LinkOrder: []string{"canon-1"},
		Stats: cohort.Stats{
			EntitiesRequested: 1,
			EntitiesGenerated: 1,
			LinkedEntities:    1,
			EventsByStatus:    map[journey.Status]int{journey.StatusOccurred: 1, journey.StatusSkipped: 1},
		},
	}
}

func TestJSONLSinkWriteResult(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	s := NewJSONLSink(path)

	require.NoError(t, s.WriteResult(context.Background(), fixtureResult(t)))
	require.NoError(t, s.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var records []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		records = append(records, rec)
	}
	require.NoError(t, scanner.Err())

	// Two events, one link, one summary.
	require.Len(t, records, 4)
	assert.Equal(t, "event", records[0]["record"])
	assert.Equal(t, "event", records[1]["record"])
	assert.Equal(t, "link", records[2]["record"])
	assert.Equal(t, "summary", records[3]["record"])

	for _, rec := range records {
		assert.Equal(t, "run-1", rec["run_id"])
	}

	ev := records[0]["event"].(map[string]any)
	assert.Equal(t, "rx.written", ev["type"])
	assert.Equal(t, "OCCURRED", ev["status"])
	assert.Equal(t, "patient", records[0]["vertical"])
}

func TestJSONLSinkCreateError(t *testing.T) {
	s := NewJSONLSink(filepath.Join(t.TempDir(), "missing", "out.jsonl"))
	assert.Error(t, s.WriteResult(context.Background(), fixtureResult(t)))
}
