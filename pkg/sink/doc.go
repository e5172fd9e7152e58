// ABOUTME: Network sink package
// ABOUTME: Receives audio from net output drivers and plays it locally
// Package sink implements the receiving end of the net output driver.
//
// A Server accepts WebSocket connections on protocol.Path. Each source
// gets a session with a jitter buffer sized from Config.BufferMs and a
// local Player, normally a pipeline.Pipeline running at the source's rate.
// The session reports its free buffer space every StateInterval; the
// sending pipeline's rate controller uses those reports to keep the
// buffer half full.
//
// Example:
//
//	srv, err := sink.NewServer(sink.Config{
//	    Name: "Living Room",
//	    NewPlayer: func(f audio.Format) (sink.Player, error) {
//	        return pipeline.New(pipeline.Config{InputRate: float64(f.SampleRate), Channels: f.Channels,
//	            RateControl: true, RateControlDelta: ratecontrol.DefaultDelta})
//	    },
//	    EnableMDNS: true,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	go srv.Start()
//	defer srv.Stop()
package sink
