package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarkTracker(t *testing.T) {
	tests := []struct {
		name     string
		ops      func(tr *MarkTracker)
		expected int
	}{
		{
			name:     "empty",
			ops:      func(tr *MarkTracker) {},
			expected: 0,
		},
		{
			name: "enqueue three",
			ops: func(tr *MarkTracker) {
				tr.Enqueue(DefaultMarkName)
				tr.Enqueue(DefaultMarkName)
				tr.Enqueue(DefaultMarkName)
			},
			expected: 3,
		},
		{
			name: "acknowledge removes oldest",
			ops: func(tr *MarkTracker) {
				tr.Enqueue(DefaultMarkName)
				tr.Enqueue(DefaultMarkName)
				tr.Acknowledge()
			},
			expected: 1,
		},
		{
			name: "acknowledge on empty is a no-op",
			ops: func(tr *MarkTracker) {
				tr.Acknowledge()
				tr.Acknowledge()
			},
			expected: 0,
		},
		{
			name: "acknowledge outracing enqueue",
			ops: func(tr *MarkTracker) {
				tr.Enqueue(DefaultMarkName)
				tr.Acknowledge()
				tr.Acknowledge()
				tr.Enqueue(DefaultMarkName)
			},
			expected: 1,
		},
		{
			name: "clear empties everything",
			ops: func(tr *MarkTracker) {
				for range 10 {
					tr.Enqueue(DefaultMarkName)
				}
				tr.Clear()
			},
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewMarkTracker()
			tt.ops(tr)
			assert.Equal(t, tt.expected, tr.Len())
		})
	}
}
