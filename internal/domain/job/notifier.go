package job

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/courierd/courierd/internal/domain/model"
)

// ErrWaiterRequired indicates a notifier cannot be constructed without a waiter.
var ErrWaiterRequired = errors.New("notifier waiter is required")

// Waiter waits for job availability notifications on a channel queue.
type Waiter interface {
	WaitForNotification(ctx context.Context, channel model.Channel) error
}

// Notifier manages subscriptions for job availability notifications.
type Notifier interface {
	Subscribe(channel model.Channel) (func(), <-chan struct{})
	Wake(channel model.Channel)
	StopAll()
}

// NotifierOptions configure the behaviour of the default notifier implementation.
type NotifierOptions struct {
	Waiter     Waiter
	WaitWindow time.Duration
	Backoff    time.Duration
}

// DefaultNotifier is the default implementation of Notifier.
type DefaultNotifier struct {
	waiter     Waiter
	waitWindow time.Duration
	backoff    time.Duration

	mu        sync.Mutex
	subs      map[model.Channel]map[chan struct{}]struct{}
	listeners map[model.Channel]context.CancelFunc
}

// NewNotifier constructs the default notifier implementation.
func NewNotifier(opts NotifierOptions) (*DefaultNotifier, error) {
	if opts.Waiter == nil {
		return nil, ErrWaiterRequired
	}

	waitWindow := opts.WaitWindow
	if waitWindow <= 0 {
		waitWindow = time.Minute
	}

	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}

	notifier := &DefaultNotifier{
		waiter:     opts.Waiter,
		waitWindow: waitWindow,
		backoff:    backoff,
		subs:       make(map[model.Channel]map[chan struct{}]struct{}),
		listeners:  make(map[model.Channel]context.CancelFunc),
	}
	return notifier, nil
}

func (n *DefaultNotifier) Subscribe(channel model.Channel) (func(), <-chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.listeners[channel]; !ok {
		ctx, cancel := context.WithCancel(context.Background())
		n.listeners[channel] = cancel
		go n.listenLoop(ctx, channel)
	}

	ch := make(chan struct{}, 1)
	if n.subs[channel] == nil {
		n.subs[channel] = make(map[chan struct{}]struct{})
	}
	n.subs[channel][ch] = struct{}{}

	unsub := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		subscribers := n.subs[channel]
		if subscribers == nil {
			return
		}

		if _, ok := subscribers[ch]; !ok {
			return
		}
		delete(subscribers, ch)
		drainAndClose(ch)
		if len(subscribers) == 0 {
			n.stopListener(channel)
			delete(n.subs, channel)
		}
	}

	return unsub, ch
}

// Wake notifies the channel's subscribers directly, bypassing the database
// listener. Used when a job is known to have become eligible locally, such as
// a retry whose backoff has elapsed.
func (n *DefaultNotifier) Wake(channel model.Channel) {
	n.broadcast(channel)
}

func (n *DefaultNotifier) StopAll() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for channel, cancel := range n.listeners {
		cancel()
		delete(n.listeners, channel)
	}
	for channel, subscribers := range n.subs {
		for ch := range subscribers {
			drainAndClose(ch)
		}
		delete(n.subs, channel)
	}
}

func (n *DefaultNotifier) stopListener(channel model.Channel) {
	cancel, ok := n.listeners[channel]
	if !ok {
		return
	}
	cancel()
	delete(n.listeners, channel)
}

func (n *DefaultNotifier) listenLoop(ctx context.Context, channel model.Channel) {
	for ctx.Err() == nil {
		waitCtx, cancel := context.WithTimeout(ctx, n.waitWindow)
		err := n.waiter.WaitForNotification(waitCtx, channel)
		cancel()

		n.broadcast(channel)

		if err != nil && ctx.Err() == nil {
			timer := time.NewTimer(n.backoff)
			select {
			case <-ctx.Done():
				if !timer.Stop() {
					<-timer.C
				}
				return
			case <-timer.C:
			}
		}
	}
}

func (n *DefaultNotifier) broadcast(channel model.Channel) {
	n.mu.Lock()
	defer n.mu.Unlock()

	subscribers := n.subs[channel]
	for ch := range subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// drainAndClose removes any buffered notifications before closing the channel so
// receivers observe a closed channel immediately.
func drainAndClose(ch chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			close(ch)
			return
		}
	}
}

var _ Notifier = (*DefaultNotifier)(nil)
