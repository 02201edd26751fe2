package vm

import (
	"sync"

	"github.com/govm-net/hellokv/types"
)

// subscribers fans one bus handler out to the engine's log subscribers.
// Each subscription has its own id, so removing one never touches another
// built from the same function literal.
type subscribers struct {
	mu    sync.Mutex
	next  uint64
	order []uint64
	funcs map[uint64]func(types.LogEntry)
}

func newSubscribers() *subscribers {
	return &subscribers{funcs: make(map[uint64]func(types.LogEntry))}
}

// add registers fn and returns the function that removes it
func (s *subscribers) add(fn func(types.LogEntry)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := s.next
	s.funcs[id] = fn
	s.order = append(s.order, id)
	return func() { s.remove(id) }
}

func (s *subscribers) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.funcs[id]; !ok {
		return
	}
	delete(s.funcs, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// dispatch is the single handler registered on the event bus
func (s *subscribers) dispatch(entry types.LogEntry) {
	s.mu.Lock()
	fns := make([]func(types.LogEntry), 0, len(s.order))
	for _, id := range s.order {
		fns = append(fns, s.funcs[id])
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(entry)
	}
}
