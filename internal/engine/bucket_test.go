package engine

import (
	"testing"
	"time"
)

func TestBucketFor(t *testing.T) {
	tests := []struct {
		name     string
		t        time.Time
		location string
		want     string
	}{
		{"weekday morning", time.Date(2024, 3, 13, 8, 0, 0, 0, time.UTC), "Kitchen", "weekday|morning|kitchen"},
		{"weekday afternoon", time.Date(2024, 3, 13, 14, 0, 0, 0, time.UTC), "office", "weekday|afternoon|office"},
		{"weekday evening", time.Date(2024, 3, 13, 19, 0, 0, 0, time.UTC), "", "weekday|evening|anywhere"},
		{"weekday night", time.Date(2024, 3, 13, 2, 0, 0, 0, time.UTC), "bedroom", "weekday|night|bedroom"},
		{"saturday", time.Date(2024, 3, 16, 10, 0, 0, 0, time.UTC), "kitchen", "weekend|morning|kitchen"},
		{"sunday", time.Date(2024, 3, 17, 10, 0, 0, 0, time.UTC), "kitchen", "weekend|morning|kitchen"},
		{"segment boundary 06:00", time.Date(2024, 3, 13, 6, 0, 0, 0, time.UTC), "x", "weekday|morning|x"},
		{"segment boundary 12:00", time.Date(2024, 3, 13, 12, 0, 0, 0, time.UTC), "x", "weekday|afternoon|x"},
		{"segment boundary 18:00", time.Date(2024, 3, 13, 18, 0, 0, 0, time.UTC), "x", "weekday|evening|x"},
		{"whitespace location", time.Date(2024, 3, 13, 8, 0, 0, 0, time.UTC), "  ", "weekday|morning|anywhere"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BucketFor(tt.t, tt.location); got != tt.want {
				t.Errorf("BucketFor = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBucketForDeterministic(t *testing.T) {
	at := time.Date(2024, 3, 13, 8, 0, 0, 0, time.UTC)
	first := BucketFor(at, "kitchen")
	for i := 0; i < 10; i++ {
		if got := BucketFor(at, "kitchen"); got != first {
			t.Fatalf("BucketFor not deterministic: %q vs %q", got, first)
		}
	}
}
