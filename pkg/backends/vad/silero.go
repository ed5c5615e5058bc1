//go:build silero

package vad

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/coldvox/coldvox/pkg/coldvox"
)

const (
	// sileroWindowSize is the only window size Silero VAD v5 accepts at
	// 16kHz: 512 samples, the same 32ms the core chunker already emits.
	sileroWindowSize = 512
	sileroStateSize  = 128
)

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// SileroDetector implements coldvox.Detector by running Silero VAD v5
// inference per frame. One instance is not safe for concurrent use; the
// core VAD state machine only ever calls Detect from a single goroutine.
type SileroDetector struct {
	session *ort.AdvancedSession

	inputTensor *ort.Tensor[float32]
	stateTensor *ort.Tensor[float32]
	srTensor    *ort.Tensor[int64]

	outputTensor *ort.Tensor[float32]
	stateNTensor *ort.Tensor[float32]
}

// NewSileroDetector loads modelData (the Silero VAD v5 ONNX graph) and
// allocates the tensors inference needs. libPath overrides the ONNX
// Runtime shared library search (see ResolveLibPath); pass "" to use the
// default search order.
func NewSileroDetector(modelData []byte, libPath string) (*SileroDetector, error) {
	if len(modelData) == 0 {
		return nil, fmt.Errorf("vad: silero model data is empty")
	}

	ortInitOnce.Do(func() {
		path := libPath
		if path == "" {
			var err error
			path, err = ResolveLibPath()
			if err != nil {
				ortInitErr = fmt.Errorf("resolve ORT lib: %w", err)
				return
			}
		}
		ort.SetSharedLibraryPath(path)
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return nil, fmt.Errorf("vad: %w", ortInitErr)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, sileroWindowSize))
	if err != nil {
		return nil, fmt.Errorf("vad: create input tensor: %w", err)
	}
	stateTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(2, 1, sileroStateSize))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("vad: create state tensor: %w", err)
	}
	srTensor, err := ort.NewTensor(ort.NewShape(1), []int64{int64(ExpectedSampleRate)})
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		return nil, fmt.Errorf("vad: create sr tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		srTensor.Destroy()
		return nil, fmt.Errorf("vad: create output tensor: %w", err)
	}
	stateNTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(2, 1, sileroStateSize))
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		srTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("vad: create stateN tensor: %w", err)
	}

	session, err := ort.NewAdvancedSessionWithONNXData(
		modelData,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		[]ort.Value{inputTensor, stateTensor, srTensor},
		[]ort.Value{outputTensor, stateNTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		srTensor.Destroy()
		outputTensor.Destroy()
		stateNTensor.Destroy()
		return nil, fmt.Errorf("vad: create session: %w", err)
	}

	return &SileroDetector{
		session:      session,
		inputTensor:  inputTensor,
		stateTensor:  stateTensor,
		srTensor:     srTensor,
		outputTensor: outputTensor,
		stateNTensor: stateNTensor,
	}, nil
}

// Detect scores frame's probability of containing speech. frame must
// carry exactly sileroWindowSize samples — the core chunker's contract
// guarantees this.
func (d *SileroDetector) Detect(frame coldvox.AudioFrame) (float64, error) {
	if len(frame.Samples) != sileroWindowSize {
		return 0, fmt.Errorf("vad: expected %d samples, got %d", sileroWindowSize, len(frame.Samples))
	}

	dst := d.inputTensor.GetData()
	for i, s := range frame.Samples {
		dst[i] = float32(s) / 32768.0
	}

	if err := d.session.Run(); err != nil {
		return 0, fmt.Errorf("vad: inference: %w", err)
	}

	prob := d.outputTensor.GetData()[0]
	copy(d.stateTensor.GetData(), d.stateNTensor.GetData())
	return float64(prob), nil
}

// Reset clears the RNN hidden state between utterances/sessions.
func (d *SileroDetector) Reset() {
	clearFloat32(d.stateTensor.GetData())
}

// Close releases ONNX Runtime resources. Safe to call multiple times.
func (d *SileroDetector) Close() error {
	if d.session != nil {
		d.session.Destroy()
		d.session = nil
	}
	if d.inputTensor != nil {
		d.inputTensor.Destroy()
		d.inputTensor = nil
	}
	if d.stateTensor != nil {
		d.stateTensor.Destroy()
		d.stateTensor = nil
	}
	if d.srTensor != nil {
		d.srTensor.Destroy()
		d.srTensor = nil
	}
	if d.outputTensor != nil {
		d.outputTensor.Destroy()
		d.outputTensor = nil
	}
	if d.stateNTensor != nil {
		d.stateNTensor.Destroy()
		d.stateNTensor = nil
	}
	return nil
}

func clearFloat32(s []float32) {
	for i := range s {
		s[i] = 0
	}
}

// NativeAvailable reports that the Silero backend is compiled in.
func NativeAvailable() bool { return true }

// NewBestDetector loads the Silero model at modelData if non-empty; on
// failure (or when no model data is provided) it falls back to the energy
// detector rather than failing startup outright.
func NewBestDetector(modelData []byte, libPath string) (coldvox.Detector, error) {
	if len(modelData) == 0 {
		return coldvox.NewEnergyDetector(), nil
	}
	d, err := NewSileroDetector(modelData, libPath)
	if err != nil {
		return coldvox.NewEnergyDetector(), nil
	}
	return d, nil
}
