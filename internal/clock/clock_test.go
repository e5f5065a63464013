package clock

import (
	"testing"
)

func TestVClock_IncAndApply(t *testing.T) {
	vc := New()
	d := vc.Inc(1)
	if d.Actor != 1 || d.Counter != 1 {
		t.Fatalf("Expected dot 1.1, got %s", d)
	}
	if vc.Get(1) != 0 {
		t.Errorf("Inc must not modify the clock, got %d", vc.Get(1))
	}

	vc.Apply(d)
	if vc.Get(1) != 1 {
		t.Errorf("Expected counter 1 after apply, got %d", vc.Get(1))
	}

	// Older dots are ignored
	vc.Apply(Dot{Actor: 1, Counter: 5})
	vc.Apply(Dot{Actor: 1, Counter: 3})
	if vc.Get(1) != 5 {
		t.Errorf("Expected counter 5, got %d", vc.Get(1))
	}

	vc.Apply(Dot{Actor: 2, Counter: 0})
	if _, ok := vc[2]; ok {
		t.Error("Zero dot should not create an entry")
	}
}

func TestVClock_Merge(t *testing.T) {
	vc1 := VClock{1: 3, 2: 1}
	vc2 := VClock{1: 2, 2: 5, 3: 1}

	vc1.Merge(vc2)

	if vc1.Get(1) != 3 {
		t.Errorf("Expected 3 (max), got %d", vc1.Get(1))
	}
	if vc1.Get(2) != 5 {
		t.Errorf("Expected 5 (max), got %d", vc1.Get(2))
	}
	if vc1.Get(3) != 1 {
		t.Errorf("Expected 1, got %d", vc1.Get(3))
	}
}

func TestVClock_Compare(t *testing.T) {
	tests := []struct {
		name     string
		vc1      VClock
		vc2      VClock
		expected CompareResult
	}{
		{
			name:     "empty clocks are equal",
			vc1:      New(),
			vc2:      New(),
			expected: Equal,
		},
		{
			name:     "equal clocks",
			vc1:      VClock{1: 1, 2: 2},
			vc2:      VClock{1: 1, 2: 2},
			expected: Equal,
		},
		{
			name:     "vc1 before vc2",
			vc1:      VClock{1: 1, 2: 1},
			vc2:      VClock{1: 2, 2: 2},
			expected: Before,
		},
		{
			name:     "vc1 after vc2",
			vc1:      VClock{1: 2, 2: 2},
			vc2:      VClock{1: 1, 2: 1},
			expected: After,
		},
		{
			name:     "concurrent: vc1 has higher 1, vc2 has higher 2",
			vc1:      VClock{1: 2, 2: 1},
			vc2:      VClock{1: 1, 2: 2},
			expected: Concurrent,
		},
		{
			name:     "subset before superset",
			vc1:      VClock{1: 1},
			vc2:      VClock{1: 1, 2: 1},
			expected: Before,
		},
		{
			name:     "superset after subset",
			vc1:      VClock{1: 1, 2: 1},
			vc2:      VClock{1: 1},
			expected: After,
		},
		{
			name:     "empty before non-empty",
			vc1:      New(),
			vc2:      VClock{1: 1},
			expected: Before,
		},
		{
			name:     "concurrent: different actors",
			vc1:      VClock{1: 2},
			vc2:      VClock{2: 2},
			expected: Concurrent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.vc1.Compare(tt.vc2)
			if result != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestVClock_LessOrEqual(t *testing.T) {
	if !New().LessOrEqual(VClock{1: 1}) {
		t.Error("Empty clock should be <= any clock")
	}
	if !(VClock{1: 1}).LessOrEqual(VClock{1: 1, 2: 3}) {
		t.Error("Subset should be <= superset")
	}
	if (VClock{1: 2}).LessOrEqual(VClock{1: 1, 2: 3}) {
		t.Error("Clock with a newer dot should not be <=")
	}
}

func TestVClock_ResetRemove(t *testing.T) {
	vc := VClock{1: 3, 2: 2, 3: 1}
	vc.ResetRemove(VClock{1: 3, 2: 1, 4: 9})

	if _, ok := vc[1]; ok {
		t.Error("Actor 1 is covered and should be forgotten")
	}
	if vc.Get(2) != 2 {
		t.Errorf("Actor 2 is newer than the removal and should stay, got %d", vc.Get(2))
	}
	if vc.Get(3) != 1 {
		t.Errorf("Actor 3 is unknown to the removal and should stay, got %d", vc.Get(3))
	}
}

func TestVClock_IntersectionAndCloneWithout(t *testing.T) {
	a := VClock{1: 2, 2: 3, 3: 1}
	b := VClock{1: 2, 2: 4}

	common := Intersection(a, b)
	if !common.Equal(VClock{1: 2}) {
		t.Errorf("Expected {1:2}, got %s", common)
	}

	uniq := a.CloneWithout(b)
	if !uniq.Equal(VClock{3: 1}) {
		t.Errorf("Expected {3:1}, got %s", uniq)
	}
}

func TestVClock_Copy(t *testing.T) {
	vc1 := VClock{1: 5, 2: 3}

	vc2 := vc1.Copy()
	if !vc1.Equal(vc2) {
		t.Error("Copy should be equal to original")
	}

	vc2.Apply(vc2.Inc(1))
	if vc1.Get(1) == vc2.Get(1) {
		t.Error("Modifying copy should not affect original")
	}
}

func TestVClock_String_Deterministic(t *testing.T) {
	vc := VClock{30: 3, 1: 1, 12: 2}

	str := vc.String()
	expected := "{1:1, 12:2, 30:3}"
	if str != expected {
		t.Errorf("Expected %s, got %s", expected, str)
	}
	if New().String() != "{}" {
		t.Errorf("Expected {}, got %s", New().String())
	}
}

func TestVClock_Dominates(t *testing.T) {
	tests := []struct {
		name string
		a, b VClock
		want bool
	}{
		{"strictly after", VClock{1: 2, 2: 1}, VClock{1: 1, 2: 1}, true},
		{"after empty", VClock{1: 1}, New(), true},
		{"equal", VClock{1: 1}, VClock{1: 1}, false},
		{"before", VClock{1: 1}, VClock{1: 2}, false},
		{"concurrent", VClock{1: 2}, VClock{2: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Dominates(tt.b); got != tt.want {
				t.Errorf("%s.Dominates(%s) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
