// internal/snapshot/store.go
package snapshot

import "sync/atomic"

// Store publishes snapshots to concurrent readers. The poll loop is the
// only writer; HTTP handlers and sinks read. A swap is atomic, so a
// reader always sees a complete snapshot, never a partial one.
type Store struct {
	cur atomic.Pointer[Snapshot]
}

// Set publishes a snapshot. The caller hands over ownership; the
// snapshot MUST NOT be mutated afterwards.
func (s *Store) Set(snap *Snapshot) {
	s.cur.Store(snap)
}

// Get returns the latest snapshot, or nil before the first successful
// poll.
func (s *Store) Get() *Snapshot {
	return s.cur.Load()
}
