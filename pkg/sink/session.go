// ABOUTME: One connected source: jitter buffer, playback loop and state reports
// ABOUTME: Free space reports drive the sending pipeline's rate control
package sink

import (
	"log"
	"sync"
	"time"

	"github.com/Resonate-Protocol/audiopipe/pkg/audio"
	"github.com/Resonate-Protocol/audiopipe/pkg/audio/decode"
	"github.com/Resonate-Protocol/audiopipe/pkg/protocol"
	"github.com/gorilla/websocket"
)

type queuedChunk struct {
	samples []int16
	off     int
}

type session struct {
	id     string
	name   string
	codec  string
	conn   *websocket.Conn
	format audio.Format
	dec    decode.Decoder
	player Player
	log    *log.Logger

	stateInterval time.Duration
	capacity      int // PCM bytes
	prebuffer     int // PCM bytes queued before playback (re)starts
	chunkSamples  int

	// Jitter buffer
	mu        sync.Mutex
	cond      *sync.Cond
	queue     []queuedChunk
	queued    int // PCM bytes
	lastSeq   uint64
	underruns int64
	overruns  int64
	primed    bool
	playing   bool
	draining  bool
	closed    bool

	done     chan struct{}
	doneOnce sync.Once
	playDone chan struct{}
	wg       sync.WaitGroup
}

func newSession(hello protocol.SourceHello, conn *websocket.Conn, format audio.Format, codec string,
	dec decode.Decoder, player Player, cfg Config, logger *log.Logger) *session {
	frameBytes := format.FrameBytes()
	bufferFrames := max(2, format.SampleRate*cfg.BufferMs/1000)
	chunkFrames := max(1, format.SampleRate*playChunkMs/1000)

	ss := &session{
		id:            hello.SourceID,
		name:          hello.Name,
		codec:         codec,
		conn:          conn,
		format:        format,
		dec:           dec,
		player:        player,
		log:           logger,
		stateInterval: cfg.StateInterval,
		capacity:      bufferFrames * frameBytes,
		prebuffer:     bufferFrames / 2 * frameBytes,
		chunkSamples:  chunkFrames * format.Channels,
		playing:       true,
		done:          make(chan struct{}),
		playDone:      make(chan struct{}),
	}
	ss.cond = sync.NewCond(&ss.mu)
	return ss
}

// run serves the connection until the source leaves or the session is shut down
func (ss *session) run() {
	ss.log.Printf("Source connected: %s (codec %s, buffer %d bytes)", ss.name, ss.codec, ss.capacity)

	ss.wg.Add(2)
	go func() {
		defer ss.wg.Done()
		ss.writeLoop()
	}()
	go func() {
		defer ss.wg.Done()
		defer close(ss.playDone)
		ss.playLoop()
	}()

	if ss.readLoop() {
		// play out what is buffered before hanging up
		ss.mu.Lock()
		ss.draining = true
		ss.cond.Broadcast()
		ss.mu.Unlock()

		select {
		case <-ss.playDone:
		case <-ss.done:
		}
	}

	ss.shutdown()
	ss.release()
}

// shutdown stops all session goroutines. Safe to call from any goroutine.
func (ss *session) shutdown() {
	ss.doneOnce.Do(func() {
		ss.mu.Lock()
		ss.closed = true
		ss.cond.Broadcast()
		ss.mu.Unlock()

		close(ss.done)
		ss.conn.Close()
	})
}

// release frees the player and decoder once the goroutines have stopped
func (ss *session) release() {
	// Close wakes a Submit blocked on the device
	if err := ss.player.Close(); err != nil {
		ss.log.Printf("Error closing player for %s: %v", ss.name, err)
	}
	ss.wg.Wait()
	ss.dec.Close()
}

// readLoop returns true if the source said goodbye
func (ss *session) readLoop() bool {
	for {
		messageType, data, err := ss.conn.ReadMessage()
		if err != nil {
			if !ss.isClosed() && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ss.log.Printf("WebSocket error from %s: %v", ss.name, err)
			}
			return false
		}

		switch messageType {
		case websocket.BinaryMessage:
			chunk, err := protocol.ParseAudioChunk(data)
			if err != nil {
				ss.log.Printf("Bad audio chunk from %s: %v", ss.name, err)
				continue
			}
			samples, err := ss.dec.Decode(chunk.Data)
			if err != nil {
				ss.log.Printf("Decode error from %s: %v", ss.name, err)
				continue
			}
			ss.enqueue(chunk.Sequence, samples)

		case websocket.TextMessage:
			env, err := protocol.ParseEnvelope(data)
			if err != nil {
				ss.log.Printf("%v", err)
				continue
			}

			switch env.Type {
			case protocol.TypeSourceState:
				var st protocol.SourceState
				if err := env.Decode(&st); err != nil {
					ss.log.Printf("%v", err)
					continue
				}
				ss.setPlaying(st.Playing)
			case protocol.TypeSourceGoodbye:
				var bye protocol.Goodbye
				env.Decode(&bye)
				ss.log.Printf("Source %s said goodbye (%s)", ss.name, bye.Reason)
				return true
			default:
				ss.log.Printf("Unknown message type from %s: %s", ss.name, env.Type)
			}
		}
	}
}

// enqueue adds decoded audio. Audio that does not fit is dropped but its
// sequence number still counts as received.
func (ss *session) enqueue(seq uint64, samples []int16) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.closed {
		return
	}
	if seq > ss.lastSeq {
		ss.lastSeq = seq
	}

	n := len(samples) * 2
	if ss.queued+n > ss.capacity {
		ss.overruns++
		return
	}

	ss.queue = append(ss.queue, queuedChunk{samples: samples})
	ss.queued += n
	if ss.queued >= ss.prebuffer {
		ss.primed = true
	}
	ss.cond.Broadcast()
}

// next copies up to len(buf) samples out of the queue, waiting until
// playback is primed. It returns false when the session is over.
func (ss *session) next(buf []int16) (int, bool) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	for {
		if ss.closed {
			return 0, false
		}
		if ss.queued > 0 && (ss.draining || ss.playing && ss.primed) {
			break
		}
		if ss.draining && ss.queued == 0 {
			return 0, false
		}
		ss.cond.Wait()
	}

	n := 0
	for n < len(buf) && len(ss.queue) > 0 {
		c := &ss.queue[0]
		k := copy(buf[n:], c.samples[c.off:])
		n += k
		c.off += k
		if c.off == len(c.samples) {
			ss.queue[0] = queuedChunk{}
			ss.queue = ss.queue[1:]
		}
	}
	ss.queued -= n * 2

	if ss.queued == 0 && !ss.draining {
		ss.primed = false
		ss.underruns++
	}
	return n, true
}

func (ss *session) playLoop() {
	buf := make([]int16, ss.chunkSamples)
	for {
		n, ok := ss.next(buf)
		if !ok {
			return
		}
		if err := ss.player.Submit(buf[:n]); err != nil {
			if !ss.isClosed() {
				ss.log.Printf("Player error for %s: %v", ss.name, err)
			}
			return
		}
	}
}

func (ss *session) setPlaying(playing bool) {
	ss.mu.Lock()
	changed := ss.playing != playing
	ss.playing = playing
	ss.cond.Broadcast()
	ss.mu.Unlock()

	if !changed {
		return
	}
	if err := ss.player.SetMute(!playing); err != nil {
		ss.log.Printf("Failed to set mute for %s: %v", ss.name, err)
	}
}

// writeLoop owns all writes to the connection once the session runs
func (ss *session) writeLoop() {
	ticker := time.NewTicker(ss.stateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := ss.sendState(); err != nil {
				if !ss.isClosed() {
					ss.log.Printf("Error sending state to %s: %v", ss.name, err)
				}
				ss.shutdown()
				return
			}
		case <-ss.done:
			return
		}
	}
}

func (ss *session) sendState() error {
	ss.mu.Lock()
	st := protocol.SinkState{
		Free:      ss.capacity - ss.queued,
		Capacity:  ss.capacity,
		Underruns: ss.underruns,
		Sequence:  ss.lastSeq,
	}
	ss.mu.Unlock()

	ss.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return ss.conn.WriteJSON(protocol.Message{Type: protocol.TypeSinkState, Payload: st})
}

func (ss *session) isClosed() bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.closed
}

func (ss *session) info() SessionInfo {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	return SessionInfo{
		ID:         ss.id,
		Name:       ss.name,
		Codec:      ss.codec,
		SampleRate: ss.format.SampleRate,
		Channels:   ss.format.Channels,
		Buffered:   ss.queued,
		Capacity:   ss.capacity,
		Underruns:  ss.underruns,
		Overruns:   ss.overruns,
		Playing:    ss.playing,
	}
}
