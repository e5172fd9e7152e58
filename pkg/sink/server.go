// ABOUTME: WebSocket server accepting audio from net output drivers
// ABOUTME: Negotiates codec and buffer size and hands each source to a session
package sink

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/Resonate-Protocol/audiopipe/pkg/audio"
	"github.com/Resonate-Protocol/audiopipe/pkg/audio/decode"
	"github.com/Resonate-Protocol/audiopipe/pkg/audio/encode"
	"github.com/Resonate-Protocol/audiopipe/pkg/discovery"
	"github.com/Resonate-Protocol/audiopipe/pkg/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	DefaultPort          = 8928
	DefaultBufferMs      = 200
	DefaultStateInterval = 20 * time.Millisecond

	// playback hands audio to the player in slices of this length
	playChunkMs = 10

	helloTimeout  = 5 * time.Second
	writeDeadline = 10 * time.Second
)

// Player plays decoded audio at the source's sample rate
type Player interface {
	Submit(samples []int16) error
	SetMute(mute bool) error
	Close() error
}

// PlayerFactory creates a player for a newly connected source
type PlayerFactory func(format audio.Format) (Player, error)

// Config configures a sink server
type Config struct {
	// Port to listen on (default: 8928)
	Port int

	// Name advertised over mDNS and sent in sink/hello (default: hostname)
	Name string

	// BufferMs is the jitter buffer length (default: 200)
	BufferMs int

	// StateInterval is how often free space is reported (default: 20ms)
	StateInterval time.Duration

	// Codecs accepted, in order of preference (default: opus, pcm)
	Codecs []string

	// EnableMDNS advertises the sink on the local network
	EnableMDNS bool

	// NewPlayer is required
	NewPlayer PlayerFactory

	Logger *log.Logger
}

// SessionInfo describes a connected source
type SessionInfo struct {
	ID         string
	Name       string
	Codec      string
	SampleRate int
	Channels   int
	Buffered   int // PCM bytes
	Capacity   int // PCM bytes
	Underruns  int64
	Overruns   int64
	Playing    bool
}

// Server is an audiopipe network sink
type Server struct {
	config Config
	sinkID string
	log    *log.Logger

	upgrader   websocket.Upgrader
	httpServer *http.Server
	mux        *http.ServeMux

	sessions   map[string]*session
	sessionsMu sync.RWMutex

	mdnsManager *discovery.Manager

	// Control
	stopChan   chan struct{}
	stopOnce   sync.Once
	shutdownMu sync.RWMutex
	isShutdown bool
	wg         sync.WaitGroup
}

// NewServer creates a sink server
func NewServer(config Config) (*Server, error) {
	if config.NewPlayer == nil {
		return nil, errors.New("sink: NewPlayer is required")
	}
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.Name == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "audiopipe sink"
		}
		config.Name = host
	}
	if config.BufferMs == 0 {
		config.BufferMs = DefaultBufferMs
	}
	if config.StateInterval == 0 {
		config.StateInterval = DefaultStateInterval
	}
	if len(config.Codecs) == 0 {
		config.Codecs = []string{encode.CodecOpus, encode.CodecPCM}
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	s := &Server{
		config: config,
		sinkID: uuid.New().String(),
		log:    config.Logger,
		mux:    http.NewServeMux(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// sinks live on the local network
				return true
			},
		},
		sessions: make(map[string]*session),
		stopChan: make(chan struct{}),
	}
	s.mux.HandleFunc(protocol.Path, s.handleWebSocket)

	return s, nil
}

// Handler returns the HTTP handler serving the sink endpoint
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start listens on the configured port and blocks until Stop
func (s *Server) Start() error {
	s.log.Printf("Sink starting: %s (ID: %s, buffer %dms)", s.config.Name, s.sinkID, s.config.BufferMs)

	if s.config.EnableMDNS {
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        s.config.Port,
			Path:        protocol.Path,
		})

		if err := s.mdnsManager.Advertise(); err != nil {
			s.log.Printf("Failed to start mDNS advertisement: %v", err)
		} else {
			s.log.Printf("mDNS advertisement started")
		}
	}

	addr := fmt.Sprintf(":%d", s.config.Port)
	s.log.Printf("WebSocket server listening on %s", addr)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-s.stopChan:
		s.log.Printf("Sink shutting down...")
	case err := <-errChan:
		s.log.Printf("HTTP server error: %v", err)
		s.Stop()
		s.wg.Wait()
		return err
	}

	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Printf("HTTP server shutdown error: %v", err)
	}

	s.wg.Wait()
	s.log.Printf("Sink stopped cleanly")

	return nil
}

// Stop disconnects every source and makes Start return
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.shutdownMu.Lock()
		s.isShutdown = true
		s.shutdownMu.Unlock()

		close(s.stopChan)

		s.sessionsMu.RLock()
		for _, ss := range s.sessions {
			ss.shutdown()
		}
		s.sessionsMu.RUnlock()
	})
}

// Wait blocks until every session has finished
func (s *Server) Wait() {
	s.wg.Wait()
}

// Sessions returns information about connected sources
func (s *Server) Sessions() []SessionInfo {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()

	infos := make([]SessionInfo, 0, len(s.sessions))
	for _, ss := range s.sessions {
		infos = append(infos, ss.info())
	}
	return infos
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.isShutdown {
		s.shutdownMu.RUnlock()
		http.Error(w, "sink shutting down", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.shutdownMu.RUnlock()
	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	s.log.Printf("New WebSocket connection from %s", r.RemoteAddr)
	s.handleConnection(conn)
}

// handleConnection runs one source from hello to disconnect
func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	hello, err := readHello(conn)
	if err != nil {
		s.log.Printf("Error reading %s: %v", protocol.TypeSourceHello, err)
		return
	}

	s.log.Printf("Source hello: %s (ID: %s, %dHz/%dch, codecs %v)",
		hello.Name, hello.SourceID, hello.Format.SampleRate, hello.Format.Channels, hello.SupportedCodecs)

	format := audio.Format{
		SampleRate: hello.Format.SampleRate,
		Channels:   hello.Format.Channels,
		Sample:     audio.FormatInt16,
	}

	codec, dec, err := s.negotiate(hello.SupportedCodecs, format)
	if err != nil {
		s.log.Printf("Rejecting %s: %v", hello.Name, err)
		rejectSource(conn, "error")
		return
	}

	player, err := s.config.NewPlayer(format)
	if err != nil {
		s.log.Printf("Failed to create player for %s: %v", hello.Name, err)
		dec.Close()
		rejectSource(conn, "error")
		return
	}

	ss := newSession(hello, conn, format, codec, dec, player, s.config, s.log)

	s.sessionsMu.Lock()
	if _, exists := s.sessions[ss.id]; exists {
		s.sessionsMu.Unlock()
		s.log.Printf("Source ID %s already connected, rejecting duplicate", ss.id)
		ss.release()
		rejectSource(conn, "error")
		return
	}
	s.sessions[ss.id] = ss
	s.sessionsMu.Unlock()

	defer func() {
		s.sessionsMu.Lock()
		delete(s.sessions, ss.id)
		s.sessionsMu.Unlock()
		s.log.Printf("Source disconnected: %s", ss.name)
	}()

	sinkHello := protocol.Message{
		Type: protocol.TypeSinkHello,
		Payload: protocol.SinkHello{
			SinkID:   s.sinkID,
			Name:     s.config.Name,
			Version:  protocol.Version,
			Codec:    codec,
			Capacity: ss.capacity,
		},
	}
	conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err := conn.WriteJSON(sinkHello); err != nil {
		s.log.Printf("Error sending %s: %v", protocol.TypeSinkHello, err)
		ss.release()
		return
	}

	// a Stop that raced the registration above
	select {
	case <-s.stopChan:
		ss.shutdown()
	default:
	}

	ss.run()
}

func readHello(conn *websocket.Conn) (protocol.SourceHello, error) {
	var hello protocol.SourceHello

	conn.SetReadDeadline(time.Now().Add(helloTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return hello, err
	}
	conn.SetReadDeadline(time.Time{})

	env, err := protocol.ParseEnvelope(data)
	if err != nil {
		return hello, err
	}
	if env.Type != protocol.TypeSourceHello {
		return hello, fmt.Errorf("expected %s, got %s", protocol.TypeSourceHello, env.Type)
	}
	if err := env.Decode(&hello); err != nil {
		return hello, err
	}

	switch {
	case hello.SourceID == "":
		return hello, errors.New("source hello missing source_id")
	case hello.Version != protocol.Version:
		return hello, fmt.Errorf("source speaks protocol version %d, want %d", hello.Version, protocol.Version)
	case hello.Format.SampleRate <= 0 || hello.Format.Channels <= 0:
		return hello, fmt.Errorf("invalid stream format %dHz/%dch", hello.Format.SampleRate, hello.Format.Channels)
	case hello.Format.BitDepth != 16:
		return hello, fmt.Errorf("unsupported bit depth %d", hello.Format.BitDepth)
	}
	return hello, nil
}

// negotiate picks the first configured codec the source offers and we can decode
func (s *Server) negotiate(offered []string, format audio.Format) (string, decode.Decoder, error) {
	for _, codec := range s.config.Codecs {
		if !slices.Contains(offered, codec) {
			continue
		}
		if codec == encode.CodecOpus && (!encode.SupportsOpus(format.SampleRate) || format.Channels > 2) {
			continue
		}
		dec, err := decode.New(codec, format)
		if err != nil {
			s.log.Printf("Codec %s unavailable: %v", codec, err)
			continue
		}
		return codec, dec, nil
	}
	return "", nil, fmt.Errorf("no common codec in %v", offered)
}

func rejectSource(conn *websocket.Conn, reason string) {
	conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	conn.WriteJSON(protocol.Message{
		Type:    protocol.TypeSourceGoodbye,
		Payload: protocol.Goodbye{Reason: reason},
	})
}
