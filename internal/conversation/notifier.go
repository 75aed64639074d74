package conversation

import (
	"sync"
	"sync/atomic"
)

// notifier runs callbacks on its own goroutine in the order they were queued,
// so subscribers may call back into the Controller.
type notifier struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	done   chan struct{}
	exited chan struct{}
	once   sync.Once

	inCallback atomic.Bool
}

func newNotifier() *notifier {
	n := &notifier{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *notifier) push(f func()) {
	n.mu.Lock()
	n.queue = append(n.queue, f)
	n.mu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
}

func (n *notifier) run() {
	defer close(n.exited)
	for {
		select {
		case <-n.wake:
			n.drain()
		case <-n.done:
			n.drain()
			return
		}
	}
}

func (n *notifier) drain() {
	for {
		n.mu.Lock()
		if len(n.queue) == 0 {
			n.mu.Unlock()
			return
		}
		f := n.queue[0]
		n.queue[0] = nil
		n.queue = n.queue[1:]
		n.mu.Unlock()

		n.inCallback.Store(true)
		f()
		n.inCallback.Store(false)
	}
}

// stop delivers what is already queued and ends the goroutine. It waits for
// delivery unless called from a callback.
func (n *notifier) stop() {
	n.once.Do(func() { close(n.done) })
	if !n.inCallback.Load() {
		<-n.exited
	}
}
