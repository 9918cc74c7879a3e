package job

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrWaiterRequired is returned by NewNotifier without a Waiter.
var ErrWaiterRequired = errors.New("notifier waiter is required")

// Waiter blocks until a job is dispatched or ctx ends. core.DispatchFeed satisfies it.
type Waiter interface {
	WaitForDispatch(ctx context.Context) error
}

// Notifier hands out wakeup channels that fire when jobs are dispatched.
type Notifier interface {
	Subscribe() (func(), <-chan struct{})
	StopAll()
}

// NotifierOptions configure NewNotifier.
type NotifierOptions struct {
	Waiter Waiter
	// WaitWindow caps a single wait. Subscribers are woken when it runs out so they poll anyway.
	WaitWindow time.Duration
	// Backoff is the pause after the waiter fails.
	Backoff time.Duration
}

// listener is the single goroutine blocked on the Waiter.
type listener struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// DispatchNotifier shares one Waiter among any number of subscribers. The listener runs only
// while somebody is subscribed. Signals coalesce, so each channel buffers at most one.
type DispatchNotifier struct {
	waiter     Waiter
	waitWindow time.Duration
	backoff    time.Duration

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]chan struct{}
	active *listener
}

var _ Notifier = (*DispatchNotifier)(nil)

// NewNotifier returns a DispatchNotifier reading from opts.Waiter.
func NewNotifier(opts NotifierOptions) (*DispatchNotifier, error) {
	if opts.Waiter == nil {
		return nil, ErrWaiterRequired
	}
	n := &DispatchNotifier{
		waiter:     opts.Waiter,
		waitWindow: opts.WaitWindow,
		backoff:    opts.Backoff,
		subs:       make(map[uint64]chan struct{}),
	}
	if n.waitWindow <= 0 {
		n.waitWindow = time.Minute
	}
	if n.backoff <= 0 {
		n.backoff = 250 * time.Millisecond
	}
	return n, nil
}

// Subscribe registers a wakeup channel. The returned func unsubscribes and closes it; calling it
// again, or after StopAll, does nothing.
func (n *DispatchNotifier) Subscribe() (func(), <-chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	ch := make(chan struct{}, 1)
	n.subs[id] = ch
	if n.active == nil {
		n.active = n.startListener()
	}

	return func() { n.unsubscribe(id) }, ch
}

func (n *DispatchNotifier) unsubscribe(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch, ok := n.subs[id]
	if !ok {
		return
	}
	delete(n.subs, id)
	close(ch)
	if len(n.subs) == 0 && n.active != nil {
		n.active.cancel()
		n.active = nil
	}
}

// StopAll closes every subscription and waits for the listener to exit.
func (n *DispatchNotifier) StopAll() {
	n.mu.Lock()
	for id, ch := range n.subs {
		close(ch)
		delete(n.subs, id)
	}
	l := n.active
	n.active = nil
	n.mu.Unlock()

	if l != nil {
		l.cancel()
		<-l.done
	}
}

func (n *DispatchNotifier) startListener() *listener {
	ctx, cancel := context.WithCancel(context.Background())
	l := &listener{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(l.done)
		n.listen(ctx)
	}()
	return l
}

func (n *DispatchNotifier) listen(ctx context.Context) {
	for {
		waitCtx, cancel := context.WithTimeout(ctx, n.waitWindow)
		err := n.waiter.WaitForDispatch(waitCtx)
		cancel()
		if ctx.Err() != nil {
			return
		}

		n.wakeAll()
		if err == nil || errors.Is(err, context.DeadlineExceeded) {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(n.backoff):
		}
	}
}

func (n *DispatchNotifier) wakeAll() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
