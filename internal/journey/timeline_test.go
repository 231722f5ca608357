package journey

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimelineAppend(t *testing.T) {
	tl := NewTimeline("e-1", testAnchor)

	require.NoError(t, tl.Append(Event{InstanceID: "a#0", Time: testAnchor, Status: StatusOccurred}))
	require.NoError(t, tl.Append(Event{InstanceID: "b#0", Time: testAnchor.Add(time.Hour), Status: StatusSkipped}))

	assert.Equal(t, 2, tl.Len())
	assert.Len(t, tl.Occurred(), 1)
}

func TestTimelineAppendRejectsNonTerminal(t *testing.T) {
	tl := NewTimeline("e-1", testAnchor)
	err := tl.Append(Event{InstanceID: "a#0", Time: testAnchor, Status: StatusPending})
	assert.Error(t, err)
	assert.Equal(t, 0, tl.Len())
}

func TestTimelineAppendRejectsRegression(t *testing.T) {
	tl := NewTimeline("e-1", testAnchor)
	require.NoError(t, tl.Append(Event{InstanceID: "a#0", Time: testAnchor.Add(time.Hour), Status: StatusOccurred}))

	err := tl.Append(Event{InstanceID: "b#0", Time: testAnchor, Status: StatusOccurred})
	assert.Error(t, err)
	assert.Equal(t, 1, tl.Len())
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusOccurred.Terminal())
	assert.True(t, StatusSkipped.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusPending.Terminal())
}
