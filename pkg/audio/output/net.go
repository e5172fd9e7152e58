// ABOUTME: Network output driver streaming to an audiopipe sink over WebSocket
// ABOUTME: Tracks the sink's reported buffer so rate control works across the network
package output

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/Resonate-Protocol/audiopipe/pkg/audio"
	"github.com/Resonate-Protocol/audiopipe/pkg/audio/encode"
	"github.com/Resonate-Protocol/audiopipe/pkg/discovery"
	"github.com/Resonate-Protocol/audiopipe/pkg/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	netHelloTimeout   = 5 * time.Second
	netWriteDeadline  = 10 * time.Second
	netPingInterval   = 30 * time.Second
	netSendQueue      = 64
	netLookupTimeout  = discovery.DefaultBrowseTimeout
	netGoodbyeTimeout = time.Second
)

// sentChunk remembers how many PCM bytes were in flight once seq went out
type sentChunk struct {
	seq   uint64
	total int64
}

type netDriver struct {
	conn   *websocket.Conn
	cfg    Config
	id     string
	sinkID string

	enc        encode.Encoder
	frameBytes int
	pending    []int16 // partial codec frame
	pendingLen int
	scratch    []int16
	seq        uint64

	send chan interface{}
	wg   sync.WaitGroup

	mu         sync.Mutex
	space      *sync.Cond
	capacity   int
	free       int
	sentTotal  int64
	ackedTotal int64
	history    []sentChunk
	nonblock   bool
	closed     bool
	closing    bool
	dropped    int64

	dead       chan struct{} // closed once the connection is unusable
	deadOnce   sync.Once
	writerDone chan struct{}
	closeOnce  sync.Once
}

func newNet(cfg Config) (Driver, error) {
	addr := cfg.Device
	if addr == "" {
		ctx, cancel := context.WithTimeout(context.Background(), netLookupTimeout+time.Second)
		defer cancel()
		sink, err := discovery.Lookup(ctx, netLookupTimeout)
		if err != nil {
			return nil, fmt.Errorf("no sink address given and discovery failed: %w", err)
		}
		addr = sink.Addr()
		cfg.logger().Printf("net: discovered sink %s at %s", sink.Name, addr)
	}

	u := url.URL{Scheme: "ws", Host: addr, Path: protocol.Path}
	dialer := websocket.Dialer{HandshakeTimeout: netHelloTimeout}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	d := &netDriver{
		conn:       conn,
		cfg:        cfg,
		id:         uuid.New().String(),
		frameBytes: cfg.Channels * 2,
		send:       make(chan interface{}, netSendQueue),
		dead:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
	d.space = sync.NewCond(&d.mu)

	if err := d.handshake(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake failed: %w", err)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.readMessages()
	}()
	go func() {
		defer close(d.writerDone)
		d.writeMessages()
	}()

	cfg.logger().Printf("Audio output initialized: %dHz, %d channels (net: %s, sink %s, buffer %d bytes)",
		cfg.SampleRate, cfg.Channels, addr, d.sinkID, d.capacity)
	return d, nil
}

func supportedCodecs(format audio.Format) []string {
	if encode.SupportsOpus(format.SampleRate) && format.Channels <= 2 {
		return []string{encode.CodecOpus, encode.CodecPCM}
	}
	return []string{encode.CodecPCM}
}

// handshake runs before the reader and writer goroutines exist
func (d *netDriver) handshake() error {
	name, _ := os.Hostname()
	format := audio.Format{SampleRate: d.cfg.SampleRate, Channels: d.cfg.Channels, Sample: audio.FormatInt16}

	hello := protocol.Message{
		Type: protocol.TypeSourceHello,
		Payload: protocol.SourceHello{
			SourceID:        d.id,
			Name:            name,
			Version:         protocol.Version,
			Format:          protocol.StreamFormat{SampleRate: format.SampleRate, Channels: format.Channels, BitDepth: 16},
			SupportedCodecs: supportedCodecs(format),
		},
	}

	d.conn.SetWriteDeadline(time.Now().Add(netWriteDeadline))
	if err := d.conn.WriteJSON(hello); err != nil {
		return fmt.Errorf("failed to send %s: %w", protocol.TypeSourceHello, err)
	}

	d.conn.SetReadDeadline(time.Now().Add(netHelloTimeout))
	_, data, err := d.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", protocol.TypeSinkHello, err)
	}
	d.conn.SetReadDeadline(time.Time{})

	env, err := protocol.ParseEnvelope(data)
	if err != nil {
		return err
	}
	if env.Type != protocol.TypeSinkHello {
		return fmt.Errorf("expected %s, got %s", protocol.TypeSinkHello, env.Type)
	}

	var sh protocol.SinkHello
	if err := env.Decode(&sh); err != nil {
		return err
	}
	if sh.Version != protocol.Version {
		return fmt.Errorf("sink speaks protocol version %d, want %d", sh.Version, protocol.Version)
	}
	if sh.Capacity < d.frameBytes {
		return fmt.Errorf("sink buffer of %d bytes is smaller than one frame", sh.Capacity)
	}

	enc, err := encode.New(sh.Codec, format)
	if err != nil {
		return err
	}

	d.enc = enc
	d.sinkID = sh.SinkID
	d.capacity = sh.Capacity
	d.free = sh.Capacity
	if fs := enc.FrameSamples(); fs > 0 {
		d.pending = make([]int16, fs)
	}
	return nil
}

// readMessages applies sink/state reports until the connection fails
func (d *netDriver) readMessages() {
	defer d.markClosed()

	for {
		messageType, data, err := d.conn.ReadMessage()
		if err != nil {
			d.mu.Lock()
			closing := d.closing
			d.mu.Unlock()
			if !closing {
				d.cfg.logger().Printf("net: read error: %v", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		env, err := protocol.ParseEnvelope(data)
		if err != nil {
			d.cfg.logger().Printf("net: %v", err)
			continue
		}

		switch env.Type {
		case protocol.TypeSinkState:
			var st protocol.SinkState
			if err := env.Decode(&st); err != nil {
				d.cfg.logger().Printf("net: %v", err)
				continue
			}
			d.applySinkState(st)
		case protocol.TypeSourceGoodbye:
			return
		default:
			d.cfg.logger().Printf("net: unknown message type: %s", env.Type)
		}
	}
}

// applySinkState recomputes free space as the sink's report minus
// everything sent after the chunk the report covers
func (d *netDriver) applySinkState(st protocol.SinkState) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if st.Capacity > 0 {
		d.capacity = st.Capacity
	}

	keep := d.history[:0]
	for _, h := range d.history {
		if h.seq <= st.Sequence {
			d.ackedTotal = h.total
			continue
		}
		keep = append(keep, h)
	}
	d.history = keep

	inFlight := d.sentTotal - d.ackedTotal + int64(d.pendingLen*2)
	d.free = max(0, min(d.capacity, st.Free-int(inFlight)))
	d.space.Broadcast()
}

// writeMessages owns all writes to the connection after the handshake
func (d *netDriver) writeMessages() {
	ticker := time.NewTicker(netPingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-d.send:
			if !ok {
				return
			}
			if err := d.writeOne(msg); err != nil {
				d.cfg.logger().Printf("net: write error: %v", err)
				d.markClosed()
				return
			}
		case <-ticker.C:
			if err := d.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(netWriteDeadline)); err != nil {
				d.markClosed()
				return
			}
		}
	}
}

func (d *netDriver) writeOne(msg interface{}) error {
	d.conn.SetWriteDeadline(time.Now().Add(netWriteDeadline))
	switch v := msg.(type) {
	case []byte:
		return d.conn.WriteMessage(websocket.BinaryMessage, v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return d.conn.WriteMessage(websocket.TextMessage, data)
	}
}

func (d *netDriver) markClosed() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.deadOnce.Do(func() { close(d.dead) })
	d.space.Broadcast()
}

// Write reserves sink space, then encodes and queues the accepted frames.
// Blocking mode waits for at least one frame of space.
func (d *netDriver) Write(p []byte) (int, error) {
	want := len(p) - len(p)%d.frameBytes
	if want == 0 {
		return 0, nil
	}

	d.mu.Lock()
	for !d.closed && !d.nonblock && d.free < d.frameBytes {
		d.space.Wait()
	}
	if d.closed {
		d.mu.Unlock()
		return 0, ErrNotOpen
	}
	n := min(want, d.free)
	n -= n % d.frameBytes
	d.free -= n
	d.mu.Unlock()

	if n == 0 {
		return 0, nil
	}

	if cap(d.scratch) < n/2 {
		d.scratch = make([]int16, n/2)
	}
	samples := audio.Int16FromBytes(d.scratch[:n/2], p[:n])

	if d.pending == nil {
		if err := d.sendChunk(samples); err != nil {
			return n, err
		}
		return n, nil
	}

	for len(samples) > 0 {
		k := copy(d.pending[d.pendingLen:], samples)
		d.pendingLen += k
		samples = samples[k:]
		if d.pendingLen == len(d.pending) {
			d.pendingLen = 0
			if err := d.sendChunk(d.pending); err != nil {
				return n, err
			}
		}
	}
	return n, nil
}

func (d *netDriver) sendChunk(samples []int16) error {
	payload, err := d.enc.Encode(samples)
	if err != nil {
		return err
	}

	d.seq++
	framed := protocol.AppendAudioChunk(make([]byte, 0, protocol.BinaryMessageHeaderSize+len(payload)), d.seq, payload)

	d.mu.Lock()
	d.sentTotal += int64(len(samples) * 2)
	d.history = append(d.history, sentChunk{seq: d.seq, total: d.sentTotal})
	nonblock := d.nonblock
	d.mu.Unlock()

	if nonblock {
		select {
		case d.send <- framed:
		default:
			d.mu.Lock()
			d.dropped++
			d.mu.Unlock()
		}
		return nil
	}

	select {
	case d.send <- framed:
		return nil
	case <-d.dead:
		return ErrNotOpen
	}
}

func (d *netDriver) queueControl(msgType string, payload interface{}) error {
	select {
	case d.send <- protocol.Message{Type: msgType, Payload: payload}:
		return nil
	case <-d.dead:
		return ErrNotOpen
	default:
		return fmt.Errorf("net: send queue full, dropping %s", msgType)
	}
}

func (d *netDriver) Start() error {
	return d.queueControl(protocol.TypeSourceState, protocol.SourceState{Playing: true})
}

func (d *netDriver) Stop() error {
	return d.queueControl(protocol.TypeSourceState, protocol.SourceState{Playing: false})
}

func (d *netDriver) SetNonblocking(nonblock bool) {
	d.mu.Lock()
	d.nonblock = nonblock
	d.mu.Unlock()
	d.space.Broadcast()
}

func (d *netDriver) UseFloat() bool {
	return false
}

func (d *netDriver) WriteAvailable() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.free
}

func (d *netDriver) BufferSize() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.capacity
}

// Dropped returns the number of chunks discarded in nonblocking mode
func (d *netDriver) Dropped() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

func (d *netDriver) Close() error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closing = true
		d.mu.Unlock()

		select {
		case d.send <- protocol.Message{Type: protocol.TypeSourceGoodbye, Payload: protocol.Goodbye{Reason: "shutdown"}}:
		case <-d.dead:
		case <-time.After(netGoodbyeTimeout):
		}
		close(d.send)

		// let the writer flush what is queued before the socket goes away
		select {
		case <-d.writerDone:
		case <-time.After(netGoodbyeTimeout):
		}

		d.conn.Close()
		d.markClosed()
		d.wg.Wait()
		<-d.writerDone
		d.enc.Close()
	})
	return nil
}
