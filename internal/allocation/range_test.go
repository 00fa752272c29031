package allocation

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"
)

func ptr(v int64) *int64 {
	return &v
}

func TestFindConflictsAdjacentRanges(t *testing.T) {
	conflicts := FindConflicts(map[string]Bounds{
		"A": {Start: ptr(0), End: ptr(99)},
		"B": {Start: ptr(100), End: ptr(199)},
	})
	if len(conflicts) != 0 {
		t.Fatalf("expected no conflicts, got %+v", conflicts)
	}
}

func TestFindConflictsOverlap(t *testing.T) {
	conflicts := FindConflicts(map[string]Bounds{
		"A": {Start: ptr(0), End: ptr(99)},
		"B": {Start: ptr(50), End: ptr(149)},
	})
	if len(conflicts) != 1 {
		t.Fatalf("expected one conflict, got %d", len(conflicts))
	}
	got := conflicts[0]
	if got.DeviceA != "A" || got.DeviceB != "B" {
		t.Fatalf("unexpected devices: %s %s", got.DeviceA, got.DeviceB)
	}
	if got.Overlap != (Range{Start: 50, End: 99}) {
		t.Fatalf("unexpected overlap: %+v", got.Overlap)
	}
}

func TestFindConflictsIgnoresIncompleteBounds(t *testing.T) {
	conflicts := FindConflicts(map[string]Bounds{
		"A": {Start: ptr(0), End: ptr(99)},
		"B": {Start: ptr(10)},
		"C": {End: ptr(20)},
		"D": {Start: ptr(60), End: ptr(40)},
	})
	if len(conflicts) != 0 {
		t.Fatalf("expected incomplete bounds ignored, got %+v", conflicts)
	}
}

func TestFindConflictsNestedRangeKeepsSweeping(t *testing.T) {
	// B 完全包含在 A 内，C 与 A 相交但与 B 不相交
	conflicts := FindConflicts(map[string]Bounds{
		"A": {Start: ptr(0), End: ptr(100)},
		"B": {Start: ptr(10), End: ptr(20)},
		"C": {Start: ptr(50), End: ptr(150)},
	})
	if len(conflicts) != 2 {
		t.Fatalf("expected two conflicts, got %+v", conflicts)
	}
	if conflicts[0].DeviceB != "B" || conflicts[1].DeviceB != "C" {
		t.Fatalf("unexpected conflict order: %+v", conflicts)
	}
	if conflicts[1].Overlap != (Range{Start: 50, End: 100}) {
		t.Fatalf("unexpected overlap: %+v", conflicts[1].Overlap)
	}
}

func TestFindConflictsMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 300; round++ {
		assignments := make(map[string]Bounds)
		n := rng.Intn(8) + 1
		for i := 0; i < n; i++ {
			start := int64(rng.Intn(60))
			end := start + int64(rng.Intn(25)) - 3
			assignments[fmt.Sprintf("dev-%02d", i)] = Bounds{Start: ptr(start), End: ptr(end)}
		}

		got := conflictKeys(FindConflicts(assignments))
		want := bruteForceConflictKeys(assignments)
		if len(got) != len(want) {
			t.Fatalf("round %d: conflict count mismatch want %v got %v", round, want, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("round %d: conflict mismatch want %v got %v", round, want, got)
			}
		}
	}
}

func conflictKeys(conflicts []Conflict) []string {
	keys := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		a, b := c.DeviceA, c.DeviceB
		if a > b {
			a, b = b, a
		}
		keys = append(keys, fmt.Sprintf("%s|%s|%d-%d", a, b, c.Overlap.Start, c.Overlap.End))
	}
	sort.Strings(keys)
	return keys
}

func bruteForceConflictKeys(assignments map[string]Bounds) []string {
	ids := make([]string, 0, len(assignments))
	for id := range assignments {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	keys := make([]string, 0)
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			a, okA := assignments[ids[i]].Resolve()
			b, okB := assignments[ids[j]].Resolve()
			if !okA || !okB {
				continue
			}
			if a.Start <= b.End && b.Start <= a.End {
				keys = append(keys, fmt.Sprintf("%s|%s|%d-%d", ids[i], ids[j], max(a.Start, b.Start), min(a.End, b.End)))
			}
		}
	}
	sort.Strings(keys)
	return keys
}

func TestNextFreeRange(t *testing.T) {
	cases := []struct {
		name     string
		existing []Range
		count    int64
		want     Range
		valid    bool
	}{
		{name: "empty pool starts at zero", existing: nil, count: 100, want: Range{Start: 0, End: 99}, valid: true},
		{name: "after max end", existing: []Range{{Start: 0, End: 99}, {Start: 300, End: 399}, {Start: 100, End: 199}}, count: 50, want: Range{Start: 400, End: 449}, valid: true},
		{name: "invalid existing ignored", existing: []Range{{Start: 500, End: 10}}, count: 1, want: Range{Start: 0, End: 0}, valid: true},
		{name: "zero count is empty", existing: []Range{{Start: 0, End: 9}}, count: 0, want: Range{Start: 10, End: 9}, valid: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NextFreeRange(tc.existing, tc.count)
			if got != tc.want {
				t.Fatalf("want %+v got %+v", tc.want, got)
			}
			if got.Valid() != tc.valid {
				t.Fatalf("valid want %v got %v", tc.valid, got.Valid())
			}
		})
	}
}

func TestBulkAssignProducesDisjointRanges(t *testing.T) {
	assigned := BulkAssign([]string{"d1", "d2", "d3"}, []Range{{Start: 0, End: 49}}, 100)
	if len(assigned) != 3 {
		t.Fatalf("expected 3 assignments, got %d", len(assigned))
	}
	if assigned[0].Range != (Range{Start: 50, End: 149}) {
		t.Fatalf("unexpected first range: %+v", assigned[0].Range)
	}
	if assigned[2].Range != (Range{Start: 250, End: 349}) {
		t.Fatalf("unexpected last range: %+v", assigned[2].Range)
	}
	if conflicts := SweepConflicts(assigned); len(conflicts) != 0 {
		t.Fatalf("bulk assignment should be conflict free, got %+v", conflicts)
	}
	if got := BulkAssign([]string{"d1"}, nil, 0); len(got) != 0 {
		t.Fatalf("zero count should assign nothing, got %+v", got)
	}
}
