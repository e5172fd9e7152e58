// ABOUTME: Adaptive audio output pipeline package
// ABOUTME: Resamples producer audio to the device rate and keeps the device buffer centred
// Package pipeline turns int16 audio from a producer running at its own pace
// into a steady stream for an output driver.
//
// Each submitted chunk is converted to float, optionally filtered, resampled
// at a ratio the rate controller nudges every cycle so the driver buffer stays
// half full, scaled by the volume and written to the driver in its own sample
// format. Audio failures never propagate to the producer: a pipeline whose
// driver or resampler cannot be opened is returned in StateDisabled and
// accepts every call as a no-op.
//
// With Config.Threaded the driver work moves to a consumer goroutine fed
// through a bounded queue, so a slow device cannot stall the producer.
//
// Example:
//
//	p, err := pipeline.New(pipeline.Config{InputRate: 44100, OutputRate: 48000, Driver: "oto",
//	    RateControl: true, RateControlDelta: ratecontrol.DefaultDelta})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Close()
//	p.Submit(samples)
package pipeline
