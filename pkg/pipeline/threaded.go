// ABOUTME: Threaded wrapper running the engine on a consumer goroutine
// ABOUTME: Bounded queue of preallocated chunks with drop or bounded wait on overflow
package pipeline

import (
	"context"
	"sync"
	"time"
)

// control is a request executed on the consumer goroutine
type control struct {
	fn    func(*engine) error
	reply chan error
}

// threadedSink moves engine work off the producer goroutine. Chunk buffers
// circulate between free and queue, so the queue never holds more than
// cap(free) chunks and Submit never allocates.
type threadedSink struct {
	eng    *engine
	shared *shared

	free  chan []int16
	queue chan []int16
	ctl   chan control

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	timeout time.Duration
	timer   *time.Timer

	// onError is called once, from the consumer, when the engine fails
	onError func(error)
	failed  bool
}

func newThreadedSink(eng *engine, sh *shared, chunks, chunkCap int, timeout time.Duration, onError func(error)) *threadedSink {
	ctx, cancel := context.WithCancel(context.Background())
	t := &threadedSink{
		eng:     eng,
		shared:  sh,
		free:    make(chan []int16, chunks),
		queue:   make(chan []int16, chunks),
		ctl:     make(chan control),
		ctx:     ctx,
		cancel:  cancel,
		timeout: timeout,
		timer:   time.NewTimer(timeout),
		onError: onError,
	}
	t.timer.Stop()

	for i := 0; i < chunks; i++ {
		t.free <- make([]int16, 0, chunkCap)
	}
	return t
}

// start launches the consumer
func (t *threadedSink) start() {
	t.wg.Add(1)
	go t.run()
}

// submit copies samples into a free chunk and queues it. Chunks that cannot
// get a buffer are counted as dropped.
func (t *threadedSink) submit(samples []int16) error {
	if t.ctx.Err() != nil {
		return ErrClosed
	}

	var buf []int16
	if t.shared.nonblock.Load() {
		select {
		case buf = <-t.free:
		default:
			t.shared.dropped.Add(1)
			return nil
		}
	} else {
		t.timer.Reset(t.timeout)
		select {
		case buf = <-t.free:
			t.timer.Stop()
		case <-t.timer.C:
			t.shared.dropped.Add(1)
			return nil
		case <-t.ctx.Done():
			t.timer.Stop()
			return ErrClosed
		}
	}

	buf = append(buf[:0], samples...)
	t.queue <- buf
	return nil
}

// queued returns the number of chunks waiting for the consumer
func (t *threadedSink) queued() int {
	return len(t.queue)
}

// do runs fn on the consumer goroutine and waits for its result
func (t *threadedSink) do(fn func(*engine) error) error {
	req := control{fn: fn, reply: make(chan error, 1)}
	select {
	case t.ctl <- req:
	case <-t.ctx.Done():
		return ErrClosed
	}
	select {
	case err := <-req.reply:
		return err
	case <-t.ctx.Done():
		return ErrClosed
	}
}

func (t *threadedSink) run() {
	defer t.wg.Done()

	for {
		select {
		case buf := <-t.queue:
			t.process(buf)
		case req := <-t.ctl:
			req.reply <- req.fn(t.eng)
		case <-t.ctx.Done():
			t.drain()
			return
		}
	}
}

func (t *threadedSink) process(buf []int16) {
	if !t.failed {
		if err := t.eng.process(buf); err != nil {
			t.failed = true
			if t.onError != nil {
				t.onError(err)
			}
		}
	}
	t.free <- buf
}

// drain plays what is still queued without waiting on the device
func (t *threadedSink) drain() {
	for {
		select {
		case buf := <-t.queue:
			t.process(buf)
		default:
			return
		}
	}
}

// stop cancels the consumer, wakes it if it is blocked in a driver write
// and waits for it to exit. Safe to call from any goroutine.
func (t *threadedSink) stop() {
	t.cancel()
	t.shared.nonblock.Store(true)
	if t.eng != nil && t.eng.driver != nil {
		t.eng.driver.SetNonblocking(true)
	}
	t.wg.Wait()
}
