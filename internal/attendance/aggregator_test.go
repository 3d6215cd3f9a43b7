package attendance

import (
	"testing"
	"time"
)

func TestNextRun(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			"before the slot runs same day",
			time.Date(2025, 3, 2, 0, 1, 0, 0, time.UTC),
			time.Date(2025, 3, 2, 0, 5, 0, 0, time.UTC),
		},
		{
			"after the slot rolls to next day",
			time.Date(2025, 3, 2, 0, 5, 0, 0, time.UTC),
			time.Date(2025, 3, 3, 0, 5, 0, 0, time.UTC),
		},
		{
			"late evening rolls to next day",
			time.Date(2025, 3, 2, 23, 59, 0, 0, time.UTC),
			time.Date(2025, 3, 3, 0, 5, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nextRun(tt.now, 0, 5); !got.Equal(tt.want) {
				t.Errorf("nextRun(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}
