package iorouter

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/tinyrange/riscv-core/internal/platform"
)

// ErrTimeout is returned by RequestIO when timeoutMS elapses before the
// request completes (spec §4.6, §5).
var ErrTimeout = errors.New("I/O request timeout")

// Handler consumes a request and produces a result. Handlers are written as
// if single-threaded because only hart 0 ever calls one (spec §4.6).
type Handler func(req *IoRequest) IoResult

// Router is the I/O router singleton (spec §4.6): a spinlocked FIFO of
// pending requests, a completion ring, and a dispatch table keyed by
// DeviceType.
type Router struct {
	mu      sync.Mutex
	queue   []IoRequest
	ring    Ring
	log     *slog.Logger
	submit  atomic.Uint64
	complet atomic.Uint64

	handlersMu sync.RWMutex
	handlers   map[DeviceType]Handler
}

// New constructs an empty Router.
func New(log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{log: log, handlers: make(map[DeviceType]Handler)}
}

// RegisterHandler installs the handler for a device type (spec §4.6). Only
// hart 0 invokes registered handlers.
func (r *Router) RegisterHandler(d DeviceType, h Handler) {
	r.handlersMu.Lock()
	defer r.handlersMu.Unlock()
	r.handlers[d] = h
}

// Submitted returns REQUESTS_SUBMITTED (spec §8).
func (r *Router) Submitted() uint64 { return r.submit.Load() }

// Completed returns REQUESTS_COMPLETED (spec §8). Completed <= Submitted
// always, equal at quiescence.
func (r *Router) Completed() uint64 { return r.complet.Load() }

// push enqueues req and, if the producer is not hart 0, sends an IPI to
// wake hart 0 (spec §4.6). Work is published to the queue before the IPI,
// per the ordering contract in spec §4.7.
func (r *Router) push(req IoRequest) {
	r.mu.Lock()
	r.queue = append(r.queue, req)
	r.mu.Unlock()
	r.submit.Add(1)
	if req.SourceHart != 0 {
		platform.SendIPI(0)
	}
}

// RequestIOAsync submits req and returns its request id immediately; the
// caller polls PollIO(id) for completion (spec §4.6).
func (r *Router) RequestIOAsync(req IoRequest) uint64 {
	r.ring.Slot(req.RequestID).Reset()
	r.push(req)
	return req.RequestID
}

// PollIO reports whether requestID has completed and, if so, returns its
// result.
func (r *Router) PollIO(requestID uint64) (IoResult, bool) {
	return r.ring.Slot(requestID).Take()
}

// RequestIO submits req and blocks until it completes or timeoutMS elapses
// (spec §4.6, §5). timeoutMS == 0 waits indefinitely and never times out
// (spec §8 boundary case).
func (r *Router) RequestIO(req IoRequest, timeoutMS uint64) (IoResult, error) {
	slot := r.ring.Slot(req.RequestID)
	slot.Reset()

	start := platform.GetTimeMS()
	r.push(req)

	for {
		if res, ok := slot.Take(); ok {
			return res, nil
		}
		if timeoutMS != 0 && platform.GetTimeMS()-start >= timeoutMS {
			return IoResult{}, ErrTimeout
		}
		platform.WFI(req.SourceHart)
	}
}

// pop removes and returns the oldest queued request, or (zero, false) if
// the queue is empty.
func (r *Router) pop() (IoRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return IoRequest{}, false
	}
	req := r.queue[0]
	r.queue = r.queue[1:]
	return req, true
}

// Dispatch drains the request queue, invoking the registered handler for
// each request's device type and storing the result in its completion
// slot, waking the requester if it is not hart 0 (spec §4.6). It is called
// once per run-loop iteration, on hart 0 only (spec invariant 6).
func (r *Router) Dispatch() {
	for {
		req, ok := r.pop()
		if !ok {
			return
		}
		result := r.dispatchOne(&req)
		r.complete(req, result)
	}
}

func (r *Router) dispatchOne(req *IoRequest) IoResult {
	r.handlersMu.RLock()
	h, ok := r.handlers[req.Device]
	r.handlersMu.RUnlock()
	if !ok {
		return ErrResult(req.Device.String() + ": not implemented via I/O router")
	}
	return h(req)
}

func (r *Router) complete(req IoRequest, result IoResult) {
	r.ring.Slot(req.RequestID).Store(result)
	r.complet.Add(1)
	if req.SourceHart != 0 {
		platform.SendIPI(req.SourceHart)
	}
	r.log.Debug("io request completed", "request_id", req.RequestID, "device", req.Device, "ok", result.Ok())
}

// QueueLen reports the number of requests currently pending dispatch.
func (r *Router) QueueLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}
