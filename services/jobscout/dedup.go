package jobscout

import "sync"

// SeenSet tracks job identifiers already claimed during a run. It only
// grows; an id stays claimed even if its detail fetch later fails, so
// no id is ever handed to the extractor twice.
type SeenSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func NewSeenSet() *SeenSet {
	return &SeenSet{ids: map[string]struct{}{}}
}

func (s *SeenSet) Seen(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// MarkSeen claims an id and reports whether it was newly inserted. The
// check and the insert happen under one lock so concurrent workers can
// never both claim the same id.
func (s *SeenSet) MarkSeen(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	if ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

func (s *SeenSet) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}
