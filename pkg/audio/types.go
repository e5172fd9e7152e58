// ABOUTME: Audio type definitions
// ABOUTME: Defines stream formats and sample conversions between int16, float32 and bytes
package audio

import (
	"encoding/binary"
	"math"

	"github.com/tphakala/simd/f32"
)

const (
	// int16 full scale used for float conversion
	int16Scale = 32768.0

	maxInt16 = math.MaxInt16
	minInt16 = math.MinInt16
)

// SampleFormat identifies how samples are laid out on the wire
type SampleFormat int

const (
	FormatInt16 SampleFormat = iota
	FormatFloat32
)

// BytesPerSample returns the size of one sample in this format
func (f SampleFormat) BytesPerSample() int {
	if f == FormatFloat32 {
		return 4
	}
	return 2
}

func (f SampleFormat) String() string {
	if f == FormatFloat32 {
		return "f32le"
	}
	return "s16le"
}

// Format describes an interleaved PCM stream
type Format struct {
	SampleRate int
	Channels   int
	Sample     SampleFormat
}

// FrameBytes returns the size of one frame (one sample per channel)
func (f Format) FrameBytes() int {
	return f.Channels * f.Sample.BytesPerSample()
}

// Int16ToFloat converts int16 samples to float32 in [-1, 1).
// dst must hold at least len(src) samples; returns dst[:len(src)].
func Int16ToFloat(dst []float32, src []int16) []float32 {
	dst = dst[:len(src)]
	for i, s := range src {
		dst[i] = float32(s)
	}
	f32.Scale(dst, dst, 1.0/int16Scale)
	return dst
}

// FloatToInt16 converts float32 samples to int16 with clipping
func FloatToInt16(dst []int16, src []float32) []int16 {
	dst = dst[:len(src)]
	for i, s := range src {
		dst[i] = clampInt16(float64(s) * int16Scale)
	}
	return dst
}

// Gain scales samples in place; a gain of 1 is a no-op
func Gain(samples []float32, gain float32) {
	if gain == 1 || len(samples) == 0 {
		return
	}
	f32.Scale(samples, samples, gain)
}

// PutFloat32LE encodes float samples as little-endian float32 into dst
// and returns the written slice.
func PutFloat32LE(dst []byte, src []float32) []byte {
	dst = dst[:len(src)*4]
	for i, s := range src {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(s))
	}
	return dst
}

// PutInt16LE encodes float samples as clipped little-endian int16 into dst
func PutInt16LE(dst []byte, src []float32) []byte {
	dst = dst[:len(src)*2]
	for i, s := range src {
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(clampInt16(float64(s)*int16Scale)))
	}
	return dst
}

// AppendInt16LE appends int16 samples to dst as little-endian bytes
func AppendInt16LE(dst []byte, src []int16) []byte {
	for _, s := range src {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(s))
	}
	return dst
}

// Int16FromBytes decodes little-endian int16 samples
func Int16FromBytes(dst []int16, src []byte) []int16 {
	n := len(src) / 2
	dst = dst[:n]
	for i := 0; i < n; i++ {
		dst[i] = int16(binary.LittleEndian.Uint16(src[i*2:]))
	}
	return dst
}

// Float32FromBytes decodes little-endian float32 samples
func Float32FromBytes(dst []float32, src []byte) []float32 {
	n := len(src) / 4
	dst = dst[:n]
	for i := 0; i < n; i++ {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
	return dst
}

func clampInt16(v float64) int16 {
	if v > maxInt16 {
		return maxInt16
	}
	if v < minInt16 {
		return minInt16
	}
	return int16(v)
}
