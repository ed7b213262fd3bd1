// Package eventloop provides the single-goroutine event handler each
// subsystem owns.
//
// A Handler runs posted closures one at a time, in order, on its own
// goroutine. Two kinds of deferred work are supported:
//   - named tasks (PostTask/RemoveTask), used for connect, command and
//     deferred bookkeeping work keyed by record id
//   - numeric events (SendEvent/RemoveEvent), used for lifecycle timeouts
//     keyed by event id and record id, dispatched to the handler's
//     process function
//
// A delayed task or event that is removed before it runs never executes,
// even when its timer already fired and the wake-up is sitting in the queue.
package eventloop

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openharmony/aafwk-standard-sub013/internal/infrastructure/logging"
	"go.uber.org/zap"
)

// Event is a numeric message dispatched to the handler's process function
type Event struct {
	ID    uint32
	Param int64
}

// ProcessFunc handles events sent with SendEvent
type ProcessFunc func(Event)

type entry struct {
	gen   uint64
	timer *time.Timer
}

// Handler is a single-threaded event loop
type Handler struct {
	name    string
	log     *logging.Logger
	process ProcessFunc

	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	done    chan struct{}
	exited  chan struct{}
	stopped bool
	gen     uint64
	tasks   map[string]*entry
	events  map[Event]map[uint64]*entry
}

// New starts a handler goroutine. process may be nil when the handler only
// runs closures.
func New(name string, log *logging.Logger, process ProcessFunc) *Handler {
	h := &Handler{
		name:    name,
		log:     logging.OrNop(log).ForComponent("eventloop").With(zap.String("loop", name)),
		process: process,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
		tasks:   make(map[string]*entry),
		events:  make(map[Event]map[uint64]*entry),
	}
	go h.run()
	return h
}

// Name returns the handler name
func (h *Handler) Name() string {
	return h.name
}

// Post queues fn to run on the loop. It never blocks and returns false once
// the handler is stopped.
func (h *Handler) Post(fn func()) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.enqueueLocked(fn)
}

// PostTask queues fn under name after delay. A pending task with the same
// name is replaced.
func (h *Handler) PostTask(name string, fn func(), delay time.Duration) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return false
	}
	h.removeTaskLocked(name)

	h.gen++
	e := &entry{gen: h.gen}
	h.tasks[name] = e
	gen := e.gen
	run := func() {
		if !h.claimTask(name, gen) {
			return
		}
		fn()
	}

	if delay <= 0 {
		return h.enqueueLocked(run)
	}
	e.timer = time.AfterFunc(delay, func() { h.Post(run) })
	return true
}

// RemoveTask cancels a pending named task
func (h *Handler) RemoveTask(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeTaskLocked(name)
}

// HasTask reports whether a named task is pending
func (h *Handler) HasTask(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.tasks[name]
	return ok
}

// SendEvent dispatches ev to the process function after delay
func (h *Handler) SendEvent(ev Event, delay time.Duration) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped || h.process == nil {
		return false
	}
	h.gen++
	e := &entry{gen: h.gen}
	if h.events[ev] == nil {
		h.events[ev] = make(map[uint64]*entry)
	}
	h.events[ev][e.gen] = e
	gen := e.gen
	run := func() {
		if !h.claimEvent(ev, gen) {
			return
		}
		h.process(ev)
	}

	if delay <= 0 {
		return h.enqueueLocked(run)
	}
	e.timer = time.AfterFunc(delay, func() { h.Post(run) })
	return true
}

// RemoveEvent cancels every pending event with this id and param
func (h *Handler) RemoveEvent(id uint32, param int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ev := Event{ID: id, Param: param}
	for _, e := range h.events[ev] {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	delete(h.events, ev)
}

// HasEvent reports whether an event with this id and param is pending
func (h *Handler) HasEvent(id uint32, param int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events[Event{ID: id, Param: param}]) > 0
}

// Pending returns queued closures plus scheduled tasks and events
func (h *Handler) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := len(h.queue) + len(h.tasks)
	for _, set := range h.events {
		n += len(set)
	}
	return n
}

// Flush waits until everything posted before the call has run. It must not
// be called from the loop itself.
func (h *Handler) Flush(ctx context.Context) error {
	done := make(chan struct{})
	if !h.Post(func() { close(done) }) {
		return fmt.Errorf("eventloop %s: stopped", h.name)
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop cancels every scheduled task and event and ends the loop after the
// closure currently running, if any. Queued closures are dropped.
func (h *Handler) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	for name := range h.tasks {
		h.removeTaskLocked(name)
	}
	for ev, set := range h.events {
		for _, e := range set {
			if e.timer != nil {
				e.timer.Stop()
			}
		}
		delete(h.events, ev)
	}
	h.queue = nil
	close(h.done)
	h.mu.Unlock()
}

// Wait blocks until the loop goroutine has exited after Stop
func (h *Handler) Wait() {
	<-h.exited
}

func (h *Handler) enqueueLocked(fn func()) bool {
	if h.stopped {
		return false
	}
	h.queue = append(h.queue, fn)
	select {
	case h.wake <- struct{}{}:
	default:
	}
	return true
}

func (h *Handler) removeTaskLocked(name string) {
	if e, ok := h.tasks[name]; ok {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(h.tasks, name)
	}
}

func (h *Handler) claimTask(name string, gen uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.tasks[name]
	if !ok || e.gen != gen {
		return false
	}
	delete(h.tasks, name)
	return true
}

func (h *Handler) claimEvent(ev Event, gen uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.events[ev]
	if _, ok := set[gen]; !ok {
		return false
	}
	delete(set, gen)
	if len(set) == 0 {
		delete(h.events, ev)
	}
	return true
}

func (h *Handler) run() {
	defer close(h.exited)
	for {
		select {
		case <-h.done:
			return
		case <-h.wake:
		}
		for {
			h.mu.Lock()
			if h.stopped || len(h.queue) == 0 {
				h.mu.Unlock()
				break
			}
			fn := h.queue[0]
			h.queue[0] = nil
			h.queue = h.queue[1:]
			h.mu.Unlock()

			h.safeRun(fn)
		}
	}
}

func (h *Handler) safeRun(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("task panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	fn()
}
