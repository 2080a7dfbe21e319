// internal/poller/plan_test.go
package poller

import (
	"reflect"
	"testing"

	"github.com/tamzrod/modbus-bridge/internal/schema"
)

func entry(id string, fn schema.Function, addr, count uint16) schema.Entry {
	return schema.Entry{
		ID: id, Address: addr, Count: count, Function: fn,
		Type: schema.TypeU16, ByteOrder: schema.OrderAB,
		Multiply: 1, Measurement: "deye", Field: id,
	}
}

func TestBuildPlan_MergesAcrossSmallGaps(t *testing.T) {
	entries := []schema.Entry{
		entry("a", schema.FunctionHolding, 100, 1),
		entry("b", schema.FunctionHolding, 103, 1), // gap of 2, merges
		entry("c", schema.FunctionHolding, 106, 1), // gap of 2, merges
	}
	plan := BuildPlan(entries)
	if len(plan.Ranges) != 1 {
		t.Fatalf("ranges = %+v, want one merged range", plan.Ranges)
	}
	r := plan.Ranges[0]
	if r.Start != 100 || r.Count != 7 {
		t.Fatalf("range = %d+%d, want 100+7", r.Start, r.Count)
	}
	if plan.Slots[0].Offset != 0 || plan.Slots[1].Offset != 3 || plan.Slots[2].Offset != 6 {
		t.Fatalf("slots = %+v", plan.Slots)
	}
}

func TestBuildPlan_SplitsOnWideGap(t *testing.T) {
	entries := []schema.Entry{
		entry("a", schema.FunctionHolding, 100, 1),
		entry("b", schema.FunctionHolding, 104, 1), // gap of 3, splits
	}
	plan := BuildPlan(entries)
	if len(plan.Ranges) != 2 {
		t.Fatalf("ranges = %+v, want 2", plan.Ranges)
	}
	if plan.Ranges[0].Count != 1 || plan.Ranges[1].Start != 104 {
		t.Fatalf("ranges = %+v", plan.Ranges)
	}
}

func TestBuildPlan_RespectsSpanLimit(t *testing.T) {
	// Two entries 119 apart would span 121 words; the plan must split
	// even though the space between them is zero-gap dense.
	entries := []schema.Entry{
		entry("a", schema.FunctionHolding, 0, 1),
		entry("b", schema.FunctionHolding, 1, 1),
	}
	for a := uint16(2); a <= 120; a++ {
		entries = append(entries, entry(string(rune('b'+a)), schema.FunctionHolding, a, 1))
	}
	plan := BuildPlan(entries)
	if len(plan.Ranges) != 2 {
		t.Fatalf("got %d ranges, want 2", len(plan.Ranges))
	}
	if plan.Ranges[0].Count != 120 {
		t.Fatalf("first range = %d words, want 120", plan.Ranges[0].Count)
	}
	if plan.Ranges[1].Start != 120 || plan.Ranges[1].Count != 1 {
		t.Fatalf("second range = %+v", plan.Ranges[1])
	}
}

func TestBuildPlan_KeepsBanksApart(t *testing.T) {
	entries := []schema.Entry{
		entry("h", schema.FunctionHolding, 100, 1),
		entry("i", schema.FunctionInput, 101, 1), // adjacent but other bank
	}
	plan := BuildPlan(entries)
	if len(plan.Ranges) != 2 {
		t.Fatalf("ranges = %+v, want 2", plan.Ranges)
	}
	if plan.Ranges[0].Function == plan.Ranges[1].Function {
		t.Fatal("banks merged")
	}
}

func TestBuildPlan_MultiWordEntries(t *testing.T) {
	e32 := entry("energy", schema.FunctionHolding, 518, 2)
	e32.Type = schema.TypeU32
	e32.ByteOrder = schema.OrderCDAB
	entries := []schema.Entry{
		e32,
		entry("next", schema.FunctionHolding, 520, 1), // touches 519, merges
	}
	plan := BuildPlan(entries)
	if len(plan.Ranges) != 1 {
		t.Fatalf("ranges = %+v, want 1", plan.Ranges)
	}
	if r := plan.Ranges[0]; r.Start != 518 || r.Count != 3 {
		t.Fatalf("range = %d+%d, want 518+3", r.Start, r.Count)
	}
	if plan.Slots[0].Offset != 0 || plan.Slots[1].Offset != 2 {
		t.Fatalf("slots = %+v", plan.Slots)
	}
}

func TestBuildPlan_UnsortedTableOrder(t *testing.T) {
	// Slots must line up with the original entry order even though the
	// table lists addresses descending.
	entries := []schema.Entry{
		entry("high", schema.FunctionHolding, 200, 1),
		entry("low", schema.FunctionHolding, 198, 1),
	}
	plan := BuildPlan(entries)
	if len(plan.Ranges) != 1 {
		t.Fatalf("ranges = %+v, want 1", plan.Ranges)
	}
	if plan.Slots[0].Offset != 2 || plan.Slots[1].Offset != 0 {
		t.Fatalf("slots = %+v", plan.Slots)
	}
}

// Merging ranges is an optimization only: the words an entry gets out
// of a grouped read must equal the words a direct read of just that
// entry would return.
func TestBuildPlan_GroupedReadsMatchDirectReads(t *testing.T) {
	e32 := entry("counter", schema.FunctionHolding, 518, 2)
	e32.Type = schema.TypeU32
	e32.ByteOrder = schema.OrderCDAB
	entries := []schema.Entry{
		entry("volt", schema.FunctionHolding, 587, 1),
		entry("temp", schema.FunctionHolding, 586, 1),
		e32,
		entry("uptime", schema.FunctionInput, 100, 1),
	}

	bank := map[schema.Function]map[uint16]uint16{
		schema.FunctionHolding: {586: 920, 587: 5437, 518: 0x0C46, 519: 0x0001},
		schema.FunctionInput:   {100: 12345},
	}
	readWords := func(fn schema.Function, start, count uint16) []uint16 {
		out := make([]uint16, count)
		for i := range out {
			out[i] = bank[fn][start+uint16(i)]
		}
		return out
	}

	plan := BuildPlan(entries)
	ranges := make([][]uint16, len(plan.Ranges))
	for i, r := range plan.Ranges {
		ranges[i] = readWords(r.Function, r.Start, r.Count)
	}

	for i, e := range entries {
		slot := plan.Slots[i]
		got := ranges[slot.Range][slot.Offset : slot.Offset+e.Count]
		want := readWords(e.Function, e.Address, e.Count)
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("entry %s: grouped read %v, direct read %v", e.ID, got, want)
		}
	}
}

func TestBuildPlan_OverlappingEntries(t *testing.T) {
	// Same address read as two types shares one wire read.
	a := entry("word", schema.FunctionHolding, 300, 1)
	b := entry("pair", schema.FunctionHolding, 300, 2)
	b.Type = schema.TypeU32
	b.ByteOrder = schema.OrderABCD
	plan := BuildPlan([]schema.Entry{a, b})
	if len(plan.Ranges) != 1 {
		t.Fatalf("ranges = %+v, want 1", plan.Ranges)
	}
	if r := plan.Ranges[0]; r.Start != 300 || r.Count != 2 {
		t.Fatalf("range = %d+%d, want 300+2", r.Start, r.Count)
	}
	if plan.Words() != 2 {
		t.Fatalf("words = %d, want 2", plan.Words())
	}
}
