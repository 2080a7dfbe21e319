// internal/poller/plan.go
package poller

import (
	"sort"

	"github.com/tamzrod/modbus-bridge/internal/schema"
)

// Read coalescing. Adjacent table entries merge into one wire read when
// the hole between them is at most maxGap registers; a merged range
// never exceeds maxRangeWords, which stays under every Modbus cap and
// every logger firmware quirk observed in the field.
const (
	maxGap        = 2
	maxRangeWords = 120
)

// Range is one contiguous wire read.
type Range struct {
	Function schema.Function
	Start    uint16
	Count    uint16
}

// Slot locates one entry's words inside the planned reads. Slots align
// one to one with the entry slice the plan was built from.
type Slot struct {
	Range  int
	Offset uint16
}

// Plan is the fixed read schedule for a register table. It is built
// once at startup; every poll executes the same ranges.
type Plan struct {
	Ranges []Range
	Slots  []Slot
}

// BuildPlan merges table entries into wire reads, holding and input
// banks separately. Entry order in the table is irrelevant here; slots
// map the results back.
func BuildPlan(entries []schema.Entry) Plan {
	idx := make([]int, len(entries))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ea, eb := entries[idx[a]], entries[idx[b]]
		if ea.Function != eb.Function {
			return ea.Function < eb.Function
		}
		return ea.Address < eb.Address
	})

	plan := Plan{Slots: make([]Slot, len(entries))}
	rangeOf := make([]int, len(entries))

	for _, i := range idx {
		e := entries[i]
		end := int(e.Address) + int(e.Count) - 1

		if n := len(plan.Ranges); n > 0 {
			cur := &plan.Ranges[n-1]
			curEnd := int(cur.Start) + int(cur.Count) - 1
			gap := int(e.Address) - curEnd - 1
			span := end - int(cur.Start) + 1
			if cur.Function == e.Function && gap <= maxGap && span <= maxRangeWords {
				if end > curEnd {
					cur.Count = uint16(end - int(cur.Start) + 1)
				}
				rangeOf[i] = n - 1
				continue
			}
		}
		plan.Ranges = append(plan.Ranges, Range{
			Function: e.Function,
			Start:    e.Address,
			Count:    e.Count,
		})
		rangeOf[i] = len(plan.Ranges) - 1
	}

	for i, e := range entries {
		r := plan.Ranges[rangeOf[i]]
		plan.Slots[i] = Slot{Range: rangeOf[i], Offset: e.Address - r.Start}
	}
	return plan
}

// Words is the total register count the plan reads per poll.
func (p Plan) Words() int {
	var n int
	for _, r := range p.Ranges {
		n += int(r.Count)
	}
	return n
}
