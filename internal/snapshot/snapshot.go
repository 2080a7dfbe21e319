// internal/snapshot/snapshot.go
package snapshot

import (
	"bytes"
	"encoding/json"
	"sort"
	"time"

	"github.com/tamzrod/modbus-bridge/internal/schema"
)

// Value is one decoded sample: the table entry it came from and the
// scaled number.
type Value struct {
	Entry schema.Entry
	Value float64
}

// Field is a named sample inside a group. Order follows the register
// table so output stays stable across polls.
type Field struct {
	Name  string
	Value float64
}

// Group is all fields sharing one measurement name. Tags are the union
// of the member entries' tags.
type Group struct {
	Name   string
	Tags   map[string]string
	Fields []Field
}

// Lookup returns the named field's value.
func (g Group) Lookup(name string) (float64, bool) {
	for _, f := range g.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return 0, false
}

// MarshalJSON flattens the group into a single object: the measurement
// name under "name", tag keys sorted, then one key per field in table
// order.
func (g Group) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	buf.WriteString(`"name":`)
	name, err := json.Marshal(g.Name)
	if err != nil {
		return nil, err
	}
	buf.Write(name)
	tagKeys := make([]string, 0, len(g.Tags))
	for k := range g.Tags {
		tagKeys = append(tagKeys, k)
	}
	sort.Strings(tagKeys)
	for _, k := range tagKeys {
		buf.WriteByte(',')
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(g.Tags[k])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	for _, f := range g.Fields {
		buf.WriteByte(',')
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Snapshot is one complete, self-consistent poll result. It is immutable
// once published: readers share it, nobody writes to it.
type Snapshot struct {
	Groups []Group
	// Registers is how many table entries this snapshot decodes.
	Registers int
	Taken     time.Time
	Seq       uint64
}

// New groups decoded values by measurement. Groups and fields keep the
// order of first appearance in the register table; a repeated
// measurement/field pair overwrites the earlier value.
func New(values []Value, taken time.Time, seq uint64) *Snapshot {
	var groups []Group
	index := make(map[string]int)

	for _, v := range values {
		m := v.Entry.Measurement
		gi, ok := index[m]
		if !ok {
			gi = len(groups)
			index[m] = gi
			groups = append(groups, Group{Name: m})
		}
		g := &groups[gi]
		for k, tv := range v.Entry.Tags {
			if g.Tags == nil {
				g.Tags = make(map[string]string)
			}
			g.Tags[k] = tv
		}
		replaced := false
		for i := range g.Fields {
			if g.Fields[i].Name == v.Entry.Field {
				g.Fields[i].Value = v.Value
				replaced = true
				break
			}
		}
		if !replaced {
			g.Fields = append(g.Fields, Field{Name: v.Entry.Field, Value: v.Value})
		}
	}
	return &Snapshot{Groups: groups, Registers: len(values), Taken: taken, Seq: seq}
}

// Age is the time elapsed since the snapshot was taken.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.Taken)
}
