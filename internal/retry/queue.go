package retry

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
)

const defaultMaxAttempts = 25

// ErrClosed is returned by Execute after the queue has been closed.
var ErrClosed = errors.New("retry: queue closed")

// Operation is a mutating call against the remote store. The queue is
// agnostic to its semantics; replaying one is at-least-once, so operations
// that must not duplicate should carry their own idempotency key.
type Operation func(ctx context.Context) (any, error)

// Outcome is what a caller learns from Execute: either the operation applied
// immediately and Result holds its value, or it was accepted into the queue.
// Queued means accepted but unconfirmed; the eventual result of a replay is
// only observable through the authoritative data feed.
type Outcome struct {
	Result any
	Queued bool
	// ID identifies the queued operation. Empty when the operation applied
	// immediately.
	ID string
}

// Pending describes one queued operation for introspection.
type Pending struct {
	ID         string
	EnqueuedAt time.Time
	Attempts   int
}

// StateSource is the connectivity authority the queue follows. Satisfied by
// *netmon.Monitor.
type StateSource interface {
	Current() bool
	Start(onChange func(online bool)) func()
}

// Options configure a Queue.
type Options struct {
	States StateSource
	// MaxAttempts caps replay attempts per item before it is dropped.
	// Zero or negative selects the default of 25.
	MaxAttempts int
}

// Queue defers mutating operations while the link is down and replays them in
// FIFO order on reconnect. Queue state is owned by a single goroutine; every
// read and mutation travels through its message channel, so concurrent
// Execute calls interleave safely without locks.
type Queue struct {
	states      StateSource
	maxAttempts int

	msgs        chan any
	cancel      context.CancelFunc
	done        chan struct{}
	unsubscribe func()
}

type enqueueMsg struct{ it *item }
type stateMsg struct{ online bool }
type lenMsg struct{ reply chan int }
type snapshotMsg struct{ reply chan []Pending }

type item struct {
	id         string
	op         Operation
	enqueuedAt time.Time
	attempts   int
}

// New constructs the queue and subscribes it to the connectivity source.
func New(opts Options) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		states:      opts.States,
		maxAttempts: opts.MaxAttempts,
		msgs:        make(chan any, 64),
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	if q.maxAttempts <= 0 {
		q.maxAttempts = defaultMaxAttempts
	}
	go q.loop(ctx)
	q.unsubscribe = opts.States.Start(func(online bool) {
		select {
		case q.msgs <- stateMsg{online: online}:
		case <-ctx.Done():
		}
	})
	return q
}

// Execute runs op immediately when online. A failure matching the
// connectivity marker set is queued for replay; any other failure propagates
// unchanged. When offline the operation is queued without being attempted.
func (q *Queue) Execute(ctx context.Context, op Operation) (Outcome, error) {
	if op == nil {
		return Outcome{}, errors.New("retry: nil operation")
	}
	if !q.states.Current() {
		return q.enqueue(ctx, op)
	}

	result, err := op(ctx)
	if err == nil {
		return Outcome{Result: result}, nil
	}
	// The state may have flipped to offline while the call was in flight;
	// the host reporting offline counts as a connectivity failure too.
	if IsConnectivityError(err) || !q.states.Current() {
		return q.enqueue(ctx, op)
	}
	return Outcome{}, err
}

func (q *Queue) enqueue(ctx context.Context, op Operation) (Outcome, error) {
	select {
	case <-q.done:
		return Outcome{}, ErrClosed
	default:
	}
	it := &item{
		id:         uuid.NewString(),
		op:         op,
		enqueuedAt: time.Now(),
	}
	select {
	case q.msgs <- enqueueMsg{it: it}:
		return Outcome{Queued: true, ID: it.id}, nil
	case <-q.done:
		return Outcome{}, ErrClosed
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Len reports how many operations are waiting for a reconnect.
func (q *Queue) Len() int {
	select {
	case <-q.done:
		return 0
	default:
	}
	reply := make(chan int, 1)
	select {
	case q.msgs <- lenMsg{reply: reply}:
	case <-q.done:
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-q.done:
		return 0
	}
}

// Snapshot lists the queued operations in replay order.
func (q *Queue) Snapshot() []Pending {
	select {
	case <-q.done:
		return nil
	default:
	}
	reply := make(chan []Pending, 1)
	select {
	case q.msgs <- snapshotMsg{reply: reply}:
	case <-q.done:
		return nil
	}
	select {
	case pending := <-reply:
		return pending
	case <-q.done:
		return nil
	}
}

// Close unsubscribes from the connectivity source and stops the run loop.
// Anything still queued is lost; the queue does not persist across restarts.
func (q *Queue) Close() {
	if q.unsubscribe != nil {
		q.unsubscribe()
	}
	q.cancel()
	<-q.done
}

func (q *Queue) loop(ctx context.Context) {
	defer close(q.done)
	var items []*item
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-q.msgs:
			switch m := msg.(type) {
			case enqueueMsg:
				items = append(items, m.it)
			case stateMsg:
				if m.online {
					items = q.drain(ctx, items)
				}
			case lenMsg:
				m.reply <- len(items)
			case snapshotMsg:
				pending := make([]Pending, 0, len(items))
				for _, it := range items {
					pending = append(pending, Pending{
						ID:         it.id,
						EnqueuedAt: it.enqueuedAt,
						Attempts:   it.attempts,
					})
				}
				m.reply <- pending
			}
		}
	}
}

// drain replays queued operations in FIFO order. Successes leave the queue;
// failures stay for the next reconnect until the attempt cap drops them.
func (q *Queue) drain(ctx context.Context, items []*item) []*item {
	if len(items) == 0 {
		return items
	}
	log.Printf("retry: replaying %d queued operation(s)", len(items))
	remaining := items[:0]
	for _, it := range items {
		it.attempts++
		if _, err := it.op(ctx); err != nil {
			if it.attempts >= q.maxAttempts {
				log.Printf("retry: dropping operation %s after %d attempts: %v", it.id, it.attempts, err)
				continue
			}
			log.Printf("retry: operation %s failed (attempt %d), keeping queued: %v", it.id, it.attempts, err)
			remaining = append(remaining, it)
			continue
		}
	}
	return remaining
}
