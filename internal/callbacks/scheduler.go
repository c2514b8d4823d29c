package callbacks

import (
	"log/slog"
	"sync"
	"time"

	"github.com/bokeh/bokeh-sub002/internal/events"
)

// Scheduler arms timers for session callbacks. Register it with
// Manager.OnChangeDispatchTo: it arms a timer on SessionCallbackAdded and
// revokes it on SessionCallbackRemoved.
//
// Callbacks run on timer goroutines with lock held, except Unlocked
// callbacks whose function runs after the lock is released. A revoked
// callback never runs, even if its timer already fired and is waiting for
// the lock.
//
// Close must not be called with lock held.
type Scheduler struct {
	lock   sync.Locker
	logger *slog.Logger

	mu     sync.Mutex
	armed  map[string]chan struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewScheduler creates a Scheduler that serializes callbacks with lock.
func NewScheduler(lock sync.Locker, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		lock:   lock,
		logger: logger,
		armed:  make(map[string]chan struct{}),
	}
}

// SessionCallbackAdded implements events.SessionCallbackAddedReceiver.
func (s *Scheduler) SessionCallbackAdded(ev *events.SessionCallbackAdded) {
	cb, ok := ev.Callback.(*SessionCallback)
	if !ok {
		return
	}
	s.arm(cb)
}

// SessionCallbackRemoved implements events.SessionCallbackRemovedReceiver.
func (s *Scheduler) SessionCallbackRemoved(ev *events.SessionCallbackRemoved) {
	s.revoke(ev.Callback.CallbackID())
}

// Armed returns the number of callbacks with a live timer.
func (s *Scheduler) Armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.armed)
}

func (s *Scheduler) arm(cb *SessionCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if _, exists := s.armed[cb.ID]; exists {
		return
	}
	stop := make(chan struct{})
	s.armed[cb.ID] = stop
	s.logger.Debug("session callback armed", "callback", cb.ID, "kind", cb.Kind.String(), "delay", cb.Delay())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if cb.Kind == Periodic {
			ticker := time.NewTicker(max(cb.Period, time.Millisecond))
			defer ticker.Stop()
			for {
				select {
				case <-stop:
					return
				case <-ticker.C:
					s.fire(cb, stop)
				}
			}
		}
		timer := time.NewTimer(cb.Delay())
		defer timer.Stop()
		select {
		case <-stop:
		case <-timer.C:
			s.fire(cb, stop)
		}
	}()
}

func (s *Scheduler) fire(cb *SessionCallback, stop chan struct{}) {
	s.lock.Lock()
	select {
	case <-stop:
		s.lock.Unlock()
		return
	default:
	}
	if cb.Unlocked {
		cb.Prepare()
		s.lock.Unlock()
		cb.Invoke()
		return
	}
	defer s.lock.Unlock()
	cb.Run()
}

func (s *Scheduler) revoke(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stop, ok := s.armed[id]; ok {
		close(stop)
		delete(s.armed, id)
	}
}

// Close revokes every timer and waits for running callbacks to finish.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	for id, stop := range s.armed {
		close(stop)
		delete(s.armed, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
