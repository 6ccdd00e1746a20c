package streak

import (
	"math/rand"
	"reflect"
	"testing"
	"time"
)

var today = time.Date(2026, time.March, 10, 15, 30, 0, 0, time.Local)

func day(offset int) string {
	return Format(today.AddDate(0, 0, offset))
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name    string
		history []string
		want    int
	}{
		{"empty", nil, 0},
		{"today only", []string{day(0)}, 1},
		{"yesterday only", []string{day(-1)}, 1},
		{"two days ago only", []string{day(-2)}, 0},
		{"three consecutive", []string{day(0), day(-1), day(-2)}, 3},
		{"gap at yesterday", []string{day(0), day(-2)}, 1},
		{"ends yesterday", []string{day(-1), day(-2), day(-3), day(-5)}, 3},
		{"old unbroken run is ignored", []string{day(-3), day(-4), day(-5)}, 0},
		{"duplicates collapse", []string{day(0), day(0), day(-1), day(-1)}, 2},
		{"garbage ignored", []string{"not-a-date", day(0)}, 1},
		{"across month boundary", []string{"2026-03-01", "2026-02-28", "2026-02-27"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compute(tt.history, today); got != tt.want {
				t.Errorf("Compute(%v) = %d, want %d", tt.history, got, tt.want)
			}
		})
	}
}

func TestComputeMonthBoundary(t *testing.T) {
	march1 := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	history := []string{"2026-03-01", "2026-02-28", "2026-02-27"}
	if got := Compute(history, march1); got != 3 {
		t.Errorf("Expected streak 3 across February end, got %d", got)
	}
}

func TestComputeIsOrderIndependent(t *testing.T) {
	history := []string{day(0), day(-1), day(-2), day(-4), day(-5), day(-9)}
	want := Compute(history, today)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		shuffled := append([]string(nil), history...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		if got := Compute(shuffled, today); got != want {
			t.Fatalf("Compute(%v) = %d, want %d", shuffled, got, want)
		}
	}
}

func TestToggleRoundTrip(t *testing.T) {
	original := []string{day(-1), day(-2)}
	before := Compute(original, today)

	on := Toggle(original, day(0))
	if !Contains(on, day(0)) {
		t.Fatalf("Expected %s to be added, got %v", day(0), on)
	}
	if got := Compute(on, today); got != 3 {
		t.Errorf("Expected streak 3 after toggling today on, got %d", got)
	}

	off := Toggle(on, day(0))
	if !reflect.DeepEqual(off, Normalize(original)) {
		t.Errorf("Expected history %v after toggling off, got %v", Normalize(original), off)
	}
	if got := Compute(off, today); got != before {
		t.Errorf("Expected streak %d after toggling off, got %d", before, got)
	}
}

func TestToggleEmpty(t *testing.T) {
	h := Toggle(nil, day(0))
	if Compute(h, today) != 1 {
		t.Fatalf("Expected streak 1, got %d", Compute(h, today))
	}
	h = Toggle(h, day(0))
	if len(h) != 0 || Compute(h, today) != 0 {
		t.Fatalf("Expected empty history and zero streak, got %v", h)
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize([]string{"2026-01-03", "2026-01-01", "2026-01-03"})
	want := []string{"2026-01-01", "2026-01-03"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Normalize = %v, want %v", got, want)
	}
	if Normalize(nil) == nil {
		t.Error("Normalize(nil) must not return nil")
	}
}
