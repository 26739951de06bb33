package job

import "sync/atomic"

// IDSource hands out monotonically increasing int64 ids.
//
// Job ids restart from zero on every process start; schedule ids must be
// seeded past the highest id ever persisted (see storage.LastScheduleID).
type IDSource struct {
	next atomic.Int64
}

func NewIDSource(start int64) *IDSource {
	s := &IDSource{}
	s.next.Store(start)
	return s
}

func (s *IDSource) Next() int64 {
	return s.next.Add(1) - 1
}
