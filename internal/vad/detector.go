// Package vad wraps the Silero VAD ONNX model: per-chunk speech
// probability and a stateful boundary detector with a pre-buffer that
// prepends onset audio to the first speech chunk of an utterance.
package vad

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	sampleRate  = 16000
	chunkMs     = 32 // ~32ms per 512-sample chunk at 16kHz
	hiddenSize  = 64
	lstmLayers  = 2
	modelURL    = "https://github.com/snakers4/silero-vad/raw/master/src/silero_vad/data/silero_vad.onnx"
	modelSHA256 = "a4a068cd6cf1ef83a41d04f3bfa2b5b81e6fb0aadf36c2920f4a37b39e31b9c8"
)

var allowedModelHosts = map[string]bool{
	"github.com":                true,
	"raw.githubusercontent.com": true,
}

// ErrVADModel reports failure to load, download, or verify the VAD model.
var ErrVADModel = errors.New("vad: model error")

// Config tunes boundary detection.
type Config struct {
	Threshold         float32
	SilenceDurationMs int
	PreBufferMs       int
	SampleRate        int
	ModelPath         string // cache path; computed from CacheDir if empty
	CacheDir          string
	OnnxLibPath       string // shared library path for onnxruntime_go
}

// DefaultConfig returns the values the original used.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Threshold:         0.5,
		SilenceDurationMs: 700,
		PreBufferMs:       300,
		SampleRate:        sampleRate,
		CacheDir:          filepath.Join(home, ".cache", "voiceflow"),
	}
}

// Detector detects speech boundaries using Silero VAD via ONNX Runtime.
// Accumulates audio during speech and returns the complete utterance
// once silence is detected; a short pre-buffer captures word onsets.
type Detector struct {
	cfg Config

	silenceLimit    int
	preBufferFrames int

	mu           sync.Mutex
	preBuffer    [][]float32
	speechChunks [][]float32
	silenceCount int

	session  *ort.DynamicAdvancedSession
	input    *ort.Tensor[float32]
	srInput  *ort.Tensor[int64]
	hInput   *ort.Tensor[float32]
	cInput   *ort.Tensor[float32]
	output   *ort.Tensor[float32]
	hOutput  *ort.Tensor[float32]
	cOutput  *ort.Tensor[float32]
	loadOnce sync.Once
	loadErr  error
}

// New constructs a Detector; the model is not loaded until the first
// ProcessChunk or SpeechProbability call.
func New(cfg Config) *Detector {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = sampleRate
	}
	silenceLimit := cfg.SilenceDurationMs / chunkMs
	if silenceLimit < 1 {
		silenceLimit = 1
	}
	preBufferFrames := cfg.PreBufferMs / chunkMs
	if preBufferFrames < 0 {
		preBufferFrames = 0
	}
	return &Detector{
		cfg:             cfg,
		silenceLimit:    silenceLimit,
		preBufferFrames: preBufferFrames,
	}
}

// ensureModel lazily downloads (if needed), verifies, and loads the
// ONNX session exactly once.
func (d *Detector) ensureModel(ctx context.Context) error {
	d.loadOnce.Do(func() {
		d.loadErr = d.loadModel(ctx)
	})
	return d.loadErr
}

func (d *Detector) loadModel(ctx context.Context) error {
	path := d.cfg.ModelPath
	if path == "" {
		path = filepath.Join(d.cfg.CacheDir, "silero_vad.onnx")
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := downloadModel(ctx, path); err != nil {
			return fmt.Errorf("%w: download: %v", ErrVADModel, err)
		}
	}

	if err := verifyModelIntegrity(path); err != nil {
		return fmt.Errorf("%w: %v", ErrVADModel, err)
	}

	if d.cfg.OnnxLibPath != "" {
		ort.SetSharedLibraryPath(d.cfg.OnnxLibPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("%w: init: %v", ErrVADModel, err)
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 512))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVADModel, err)
	}
	srInput, err := ort.NewEmptyTensor[int64](ort.NewShape(1))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVADModel, err)
	}
	srInput.GetData()[0] = int64(d.cfg.SampleRate)

	hInput, err := ort.NewEmptyTensor[float32](ort.NewShape(lstmLayers, 1, hiddenSize))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVADModel, err)
	}
	cInput, err := ort.NewEmptyTensor[float32](ort.NewShape(lstmLayers, 1, hiddenSize))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVADModel, err)
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVADModel, err)
	}
	hOutput, err := ort.NewEmptyTensor[float32](ort.NewShape(lstmLayers, 1, hiddenSize))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVADModel, err)
	}
	cOutput, err := ort.NewEmptyTensor[float32](ort.NewShape(lstmLayers, 1, hiddenSize))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVADModel, err)
	}

	session, err := ort.NewDynamicAdvancedSession(
		path,
		[]string{"input", "sr", "h", "c"},
		[]string{"output", "hn", "cn"},
		nil,
	)
	if err != nil {
		return fmt.Errorf("%w: session: %v", ErrVADModel, err)
	}

	d.session = session
	d.input = input
	d.srInput = srInput
	d.hInput = hInput
	d.cInput = cInput
	d.output = output
	d.hOutput = hOutput
	d.cOutput = cOutput
	return nil
}

// SpeechProbability runs single-chunk inference, preserving the LSTM
// hidden/cell state across calls.
func (d *Detector) SpeechProbability(ctx context.Context, chunk []float32) (float32, error) {
	if err := d.ensureModel(ctx); err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.infer(chunk)
}

func (d *Detector) infer(chunk []float32) (float32, error) {
	in := d.input.GetData()
	n := copy(in, chunk)
	for ; n < len(in); n++ {
		in[n] = 0
	}

	if err := d.session.Run(
		[]ort.Value{d.input, d.srInput, d.hInput, d.cInput},
		[]ort.Value{d.output, d.hOutput, d.cOutput},
	); err != nil {
		return 0, fmt.Errorf("%w: inference: %v", ErrVADModel, err)
	}

	copy(d.hInput.GetData(), d.hOutput.GetData())
	copy(d.cInput.GetData(), d.cOutput.GetData())

	return d.output.GetData()[0], nil
}

// ProcessChunk feeds a ~32ms chunk into the stateful boundary detector.
// Returns the concatenated utterance once trailing silence reaches
// SilenceDurationMs, or nil if the utterance isn't finished yet.
func (d *Detector) ProcessChunk(ctx context.Context, chunk []float32) ([]float32, error) {
	prob, err := d.SpeechProbability(ctx, chunk)
	if err != nil {
		return nil, err
	}
	isSpeech := prob > d.cfg.Threshold

	d.mu.Lock()
	defer d.mu.Unlock()

	if isSpeech {
		if len(d.speechChunks) == 0 {
			d.speechChunks = append(d.speechChunks, d.preBuffer...)
		}
		d.speechChunks = append(d.speechChunks, chunk)
		d.silenceCount = 0
		return nil, nil
	}

	if len(d.speechChunks) > 0 {
		d.speechChunks = append(d.speechChunks, chunk)
		d.silenceCount++
		if d.silenceCount >= d.silenceLimit {
			audio := concat(d.speechChunks)
			d.speechChunks = nil
			d.silenceCount = 0
			return audio, nil
		}
		return nil, nil
	}

	d.preBuffer = append(d.preBuffer, chunk)
	if d.preBufferFrames > 0 && len(d.preBuffer) > d.preBufferFrames {
		d.preBuffer = d.preBuffer[len(d.preBuffer)-d.preBufferFrames:]
	}
	return nil, nil
}

// Reset clears the ring buffer, recurrent state, and counters.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.speechChunks = nil
	d.silenceCount = 0
	d.preBuffer = nil
	if d.hInput != nil {
		for i := range d.hInput.GetData() {
			d.hInput.GetData()[i] = 0
		}
		for i := range d.cInput.GetData() {
			d.cInput.GetData()[i] = 0
		}
	}
}

// Close releases the ONNX session and tensors.
func (d *Detector) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range []interface{ Destroy() }{d.input, d.srInput, d.hInput, d.cInput, d.output, d.hOutput, d.cOutput} {
		if t != nil {
			t.Destroy()
		}
	}
	if d.session != nil {
		d.session.Destroy()
	}
}

func concat(chunks [][]float32) []float32 {
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	out := make([]float32, 0, total)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

func hostAllowed(u *url.URL) bool {
	return u.Scheme == "https" && allowedModelHosts[u.Hostname()]
}

func downloadModel(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, modelURL, nil)
	if err != nil {
		return err
	}
	if !hostAllowed(req.URL) {
		return fmt.Errorf("model host %q not in HTTPS allow-list", req.URL.Hostname())
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func verifyModelIntegrity(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return err
	}
	got := hex.EncodeToString(h.Sum(nil))
	if got != modelSHA256 {
		return fmt.Errorf("checksum mismatch: got %s, want %s", got, modelSHA256)
	}
	return nil
}
