package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/coldvox/coldvox/internal/config"
	"github.com/coldvox/coldvox/internal/logging"
	"github.com/coldvox/coldvox/internal/metrics"
	audiobackend "github.com/coldvox/coldvox/pkg/backends/audio"
	injectbackend "github.com/coldvox/coldvox/pkg/backends/inject"
	sttbackend "github.com/coldvox/coldvox/pkg/backends/stt"
	vadbackend "github.com/coldvox/coldvox/pkg/backends/vad"
	"github.com/coldvox/coldvox/pkg/coldvox"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: no .env file found, using system environment variables")
	}

	fs := pflag.NewFlagSet("coldvox", pflag.ExitOnError)
	flags := config.RegisterFlags(fs)
	if err := fs.Parse(os.Args[1:]); err != nil {
		log.Fatalf("coldvox: parse flags: %v", err)
	}

	cfg, logLevel, err := config.Load(flags.ConfigPath, flags)
	if err != nil {
		log.Fatalf("coldvox: load config: %v", err)
	}

	logger := logging.New(logging.Options{Level: logLevel, Prefix: "coldvox"})

	transcriber, err := buildTranscriber(logger)
	if err != nil {
		logger.Error("coldvox: build stt backend", "err", err)
		os.Exit(1)
	}

	detector, err := buildDetector()
	if err != nil {
		logger.Warn("coldvox: falling back to energy VAD", "err", err)
	}

	resampler := buildResampler(cfg)

	device := audiobackend.NewMalgoDevice(deviceSampleRateHint())

	backends, focus, err := buildInjection(logger)
	if err != nil {
		logger.Error("coldvox: build injection backends", "err", err)
		os.Exit(1)
	}

	pipeline := coldvox.NewPipeline(cfg, device, detector, resampler, 1, transcriber, backends, focus, logger)
	pipeline.AppIDResolver = func(ctx context.Context) string {
		return os.Getenv("COLDVOX_APP_ID_OVERRIDE")
	}

	if addr := os.Getenv("COLDVOX_METRICS_ADDR"); addr != "" {
		reg := prometheus.NewRegistry()
		pipeline.SetMetrics(metrics.New(reg))
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Warn("coldvox: metrics server stopped", "err", err)
			}
		}()
		logger.Info("coldvox: metrics listening", "addr", addr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := pipeline.Start(ctx); err != nil {
		logger.Error("coldvox: pipeline failed to start", "err", err)
		os.Exit(1)
	}
	logger.Info("coldvox: listening", "device", cfg.DevicePreferred)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	fmt.Println("\nShutting down...")
	pipeline.Stop()
}

func deviceSampleRateHint() int {
	return 48000
}

// buildTranscriber selects a streaming or batch STT backend based on
// COLDVOX_STT_BACKEND ("ws" or "batch", default "ws"), mirroring the
// teacher's env-var provider switch.
func buildTranscriber(logger coldvox.Logger) (coldvox.Transcriber, error) {
	backend := os.Getenv("COLDVOX_STT_BACKEND")
	if backend == "" {
		backend = "ws"
	}

	apiKey := os.Getenv("COLDVOX_STT_API_KEY")
	endpoint := os.Getenv("COLDVOX_STT_ENDPOINT")
	if apiKey == "" {
		return nil, fmt.Errorf("COLDVOX_STT_API_KEY must be set")
	}

	switch backend {
	case "batch":
		if endpoint == "" {
			endpoint = "https://api.deepgram.com/v1/listen"
		}
		return sttbackend.NewBatchTranscriber(nil, endpoint, apiKey, "Authorization", "Token "), nil
	case "ws":
		fallthrough
	default:
		if endpoint == "" {
			return nil, fmt.Errorf("COLDVOX_STT_ENDPOINT must be set for the streaming backend")
		}
		return sttbackend.NewWSTranscriber(endpoint, apiKey), nil
	}
}

// buildDetector loads a Silero model when COLDVOX_SILERO_MODEL_PATH is set
// and the binary was built with -tags silero; otherwise it falls back to
// the energy detector.
func buildDetector() (coldvox.Detector, error) {
	modelPath := os.Getenv("COLDVOX_SILERO_MODEL_PATH")
	if modelPath == "" {
		return coldvox.NewEnergyDetector(), nil
	}
	data, err := os.ReadFile(modelPath)
	if err != nil {
		return coldvox.NewEnergyDetector(), fmt.Errorf("read silero model: %w", err)
	}
	return vadbackend.NewBestDetector(data, os.Getenv("COLDVOX_ORT_LIB_PATH"))
}

func buildResampler(cfg coldvox.Config) coldvox.Resampler {
	if cfg.ResamplerQuality == coldvox.ResampleFast {
		return coldvox.NewLinearResampler(48000, cfg.OutputRateHz)
	}
	return audiobackend.NewLibResampler(48000, cfg.OutputRateHz, cfg.ResamplerQuality)
}

// buildInjection wires the full injection method stack in priority order:
// AT-SPI accessibility insert, clipboard+paste, synthetic keystroke, and
// window-activate-assist wrapping the keystroke backend, plus the always-
// available no-op fallback.
func buildInjection(logger coldvox.Logger) ([]coldvox.InjectionBackend, coldvox.FocusProvider, error) {
	var backends []coldvox.InjectionBackend

	access, err := injectbackend.NewAccessibilityBackend(logger)
	if err != nil {
		logger.Warn("coldvox: accessibility backend unavailable", "err", err)
	} else {
		backends = append(backends, access)
	}

	keystroke, err := injectbackend.NewKeystrokeBackend("coldvox-keyboard", logger)
	if err != nil {
		logger.Warn("coldvox: keystroke backend unavailable", "err", err)
	} else {
		backends = append(backends, injectbackend.NewClipboardBackend(keystroke, 150*time.Millisecond, logger))
		backends = append(backends, keystroke)

		if activate, err := injectbackend.NewWindowActivateBackend(keystroke, logger); err != nil {
			logger.Warn("coldvox: window-activate backend unavailable", "err", err)
		} else {
			backends = append(backends, activate)
		}
	}

	backends = append(backends, injectbackend.NewNoOpBackend(logger))

	var focus coldvox.FocusProvider
	if access != nil {
		focus = injectbackend.NewDBusFocusProvider(access.Conn(), logger)
	}
	return backends, focus, nil
}
