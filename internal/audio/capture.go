// Package audio captures microphone input at 16 kHz mono float32 with
// zero processing on the audio callback thread: samples are copied
// onto a queue and RMS is appended to a short rolling window, mirroring
// the real-time discipline of the teacher's malgo duplex callback.
package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

const (
	SampleRate = 16000
	BlockSize  = 512 // ~32ms at 16kHz

	defaultTrailingCaptureMs = 280
	minTrailingCaptureMsBase = 130
	quietBlocksToStop        = 3
	rmsWindowCap             = 32
	queueCapacity            = 4096
)

// ErrDevice is returned when the OS refuses to open a capture device.
var ErrDevice = errors.New("audio: failed to open capture device")

// AudioCapture pulls mono 16kHz float32 blocks from the OS into a
// thread-safe queue, tracks a rolling RMS window, and on stop appends
// an adaptive trailing tail so the last word or two spoken while the
// hotkey is being released isn't clipped.
type AudioCapture struct {
	sampleRate int
	blockSize  int

	queue chan []float32

	mu        sync.Mutex
	recentRMS []float64
	startedAt time.Time
	active    bool

	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
}

// New constructs an AudioCapture at the standard 16kHz/512-sample
// configuration. Tests needing different block sizes should construct
// the struct directly; production callers use New.
func New() *AudioCapture {
	return &AudioCapture{
		sampleRate: SampleRate,
		blockSize:  BlockSize,
		queue:      make(chan []float32, queueCapacity),
	}
}

// Start opens the capture stream. Returns ErrDevice if the OS refuses.
func (c *AudioCapture) Start(_ context.Context) error {
	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return errors.Join(ErrDevice, err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(c.sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	onSamples := func(_, pInput []byte, frameCount uint32) {
		chunk := bytesToFloat32(pInput)
		if len(chunk) > 0 {
			rms := computeRMS(chunk)
			c.mu.Lock()
			c.recentRMS = append(c.recentRMS, rms)
			if len(c.recentRMS) > rmsWindowCap {
				c.recentRMS = c.recentRMS[len(c.recentRMS)-rmsWindowCap:]
			}
			c.mu.Unlock()
		}
		select {
		case c.queue <- chunk:
		default:
			// Queue saturated: drop the oldest block to make room rather
			// than block the audio callback thread.
			select {
			case <-c.queue:
			default:
			}
			select {
			case c.queue <- chunk:
			default:
			}
		}
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onSamples,
	})
	if err != nil {
		malgoCtx.Uninit()
		return errors.Join(ErrDevice, err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		malgoCtx.Uninit()
		return errors.Join(ErrDevice, err)
	}

	c.mu.Lock()
	c.malgoCtx = malgoCtx
	c.device = device
	c.startedAt = time.Now()
	c.active = true
	c.mu.Unlock()
	return nil
}

// GetChunk pops one block, blocking up to timeout. Returns (nil, false)
// on timeout.
func (c *AudioCapture) GetChunk(timeout time.Duration) ([]float32, bool) {
	select {
	case chunk := <-c.queue:
		return chunk, true
	case <-time.After(timeout):
		return nil, false
	}
}

// IsActive reports whether the stream is currently open.
func (c *AudioCapture) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Drain discards queued blocks without closing the stream.
func (c *AudioCapture) Drain() {
	c.drainNowait()
}

func (c *AudioCapture) drainNowait() [][]float32 {
	var chunks [][]float32
	for {
		select {
		case chunk := <-c.queue:
			chunks = append(chunks, chunk)
		default:
			return chunks
		}
	}
}

// Stop closes the stream and returns the concatenated waveform,
// including an adaptive trailing tail. trailingMs < 0 selects the
// duration-tiered default.
func (c *AudioCapture) Stop(trailingMs int) []float32 {
	var chunks [][]float32
	chunks = append(chunks, c.drainNowait()...)

	if trailingMs < 0 {
		trailingMs = c.defaultTrailingCaptureMs()
	}

	c.mu.Lock()
	device := c.device
	malgoCtx := c.malgoCtx
	c.mu.Unlock()

	if device != nil {
		chunks = append(chunks, c.collectTrailingChunks(trailingMs, c.minTrailingCaptureMs())...)
		device.Uninit()
		if malgoCtx != nil {
			malgoCtx.Uninit()
		}
	}

	c.mu.Lock()
	c.device = nil
	c.malgoCtx = nil
	c.active = false
	c.startedAt = time.Time{}
	c.mu.Unlock()

	chunks = append(chunks, c.drainNowait()...)

	total := 0
	for _, ch := range chunks {
		total += len(ch)
	}
	if total == 0 {
		return []float32{}
	}
	out := make([]float32, 0, total)
	for _, ch := range chunks {
		out = append(out, ch...)
	}
	return out
}

func (c *AudioCapture) defaultTrailingCaptureMs() int {
	c.mu.Lock()
	started := c.startedAt
	c.mu.Unlock()
	if started.IsZero() {
		return defaultTrailingCaptureMs
	}
	durationS := time.Since(started).Seconds()
	switch {
	case durationS >= 180:
		return 1100
	case durationS >= 120:
		return 960
	case durationS >= 60:
		return 820
	case durationS >= 30:
		return 700
	case durationS >= 14:
		return 520
	case durationS >= 8:
		return 420
	case durationS >= 4:
		return 340
	default:
		return defaultTrailingCaptureMs
	}
}

func (c *AudioCapture) minTrailingCaptureMs() int {
	c.mu.Lock()
	started := c.startedAt
	c.mu.Unlock()
	if started.IsZero() {
		return minTrailingCaptureMsBase
	}
	durationS := time.Since(started).Seconds()
	switch {
	case durationS >= 120:
		return 420
	case durationS >= 60:
		return 340
	case durationS >= 20:
		return 260
	default:
		return minTrailingCaptureMsBase
	}
}

func (c *AudioCapture) collectTrailingChunks(trailingCaptureMs, minTrailingCaptureMs int) [][]float32 {
	if trailingCaptureMs <= 0 {
		return nil
	}
	start := time.Now()
	deadline := start.Add(time.Duration(trailingCaptureMs) * time.Millisecond)
	pollTimeout := time.Duration(float64(c.blockSize)/float64(c.sampleRate)*1000) * time.Millisecond
	if pollTimeout < 10*time.Millisecond {
		pollTimeout = 10 * time.Millisecond
	}
	quietBlocks := 0
	quietThreshold := c.silenceRMSThreshold()

	var chunks [][]float32
	for {
		now := time.Now()
		if !now.Before(deadline) {
			break
		}
		timeout := deadline.Sub(now)
		if timeout > pollTimeout {
			timeout = pollTimeout
		}
		if timeout <= 0 {
			break
		}

		select {
		case chunk := <-c.queue:
			chunks = append(chunks, chunk)
			if len(chunk) == 0 {
				continue
			}
			rms := computeRMS(chunk)
			if rms <= quietThreshold {
				if time.Since(start).Milliseconds() >= int64(minTrailingCaptureMs) {
					quietBlocks++
					if quietBlocks >= quietBlocksToStop {
						return chunks
					}
				}
			} else {
				quietBlocks = 0
			}
		case <-time.After(timeout):
			if time.Since(start).Milliseconds() >= int64(minTrailingCaptureMs) {
				quietBlocks++
				if quietBlocks >= quietBlocksToStop {
					return chunks
				}
			}
		}
	}
	return chunks
}

func (c *AudioCapture) silenceRMSThreshold() float64 {
	c.mu.Lock()
	values := append([]float64(nil), c.recentRMS...)
	c.mu.Unlock()
	if len(values) == 0 {
		return 0.004
	}
	baseline := percentile25(values)
	v := baseline * 1.8
	if v < 0.0032 {
		v = 0.0032
	}
	if v > 0.02 {
		v = 0.02
	}
	return v
}

// percentile25 returns the 25th percentile using linear interpolation
// between closest ranks, matching numpy.percentile's default method.
func percentile25(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := 0.25 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func computeRMS(samples []float32) float64 {
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func bytesToFloat32(b []byte) []float32 {
	n := len(b) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(b[i*4 : i*4+4])
		out[i] = math.Float32frombits(bits)
	}
	return out
}
