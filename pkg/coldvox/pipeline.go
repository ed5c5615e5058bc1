package coldvox

import (
	"context"
	"sync"
	"time"
)

// Pipeline wires every stage together: capture -> ring buffer -> frame
// reader -> chunker -> broadcast -> {VAD, STT orchestrator} -> injection
// session -> strategy manager. It is the package's single entry point for
// callers that don't want to assemble the stages themselves.
type Pipeline struct {
	cfg    Config
	logger Logger

	ring        *RingBuffer
	handle      *Handle
	watchdog    *Watchdog
	frameReader *FrameReader
	chunker     *Chunker
	broadcast   *Broadcaster
	core        *Subscription

	vad          *VAD
	orchestrator *Orchestrator
	session      *InjectionSession
	strategy     *StrategyManager

	// AppIDResolver identifies the target application for an injection
	// attempt; the default always targets the empty app_id (useful when
	// the platform has no notion of per-app success tracking).
	AppIDResolver func(ctx context.Context) string

	// Metrics receives pipeline counters; defaults to NoOpMetrics. Assign a
	// concrete sink (internal/metrics.New) after construction to enable
	// reporting.
	Metrics MetricsSink

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPipeline assembles a Pipeline from its backend implementations.
func NewPipeline(
	cfg Config,
	device Device,
	detector Detector,
	resampler Resampler,
	deviceChannels int,
	transcriber Transcriber,
	backends []InjectionBackend,
	focus FocusProvider,
	logger Logger,
) *Pipeline {
	if logger == nil {
		logger = NoOpLogger{}
	}

	ring := NewRingBuffer(cfg.BroadcastCapacity*FrameSamples, cfg.OverflowPolicy)
	handle := NewHandle(ring, device, cfg.DevicePreferred, logger)
	watchdog := NewWatchdog(handle, cfg, cfg.NoDataTimeout/5, logger)
	frameReader := NewFrameReader(ring, cfg.OutputRateHz, 2*time.Millisecond)
	broadcast := NewBroadcaster(cfg.BroadcastCapacity)
	chunker := NewChunker(deviceChannels, resampler, broadcast, cfg.FrameSamples, logger)

	core := broadcast.Subscribe()
	orchestrator := NewOrchestrator(transcriber, 64, logger)

	return &Pipeline{
		cfg:           cfg,
		logger:        logger,
		ring:          ring,
		handle:        handle,
		watchdog:      watchdog,
		frameReader:   frameReader,
		chunker:       chunker,
		broadcast:     broadcast,
		core:          core,
		vad:           NewVAD(detector, cfg),
		orchestrator:  orchestrator,
		session:       NewInjectionSession(cfg),
		strategy:      NewStrategyManager(cfg, backends, focus, logger),
		AppIDResolver: func(ctx context.Context) string { return "" },
		Metrics:       NoOpMetrics{},
	}
}

// Start opens the capture device and launches every downstream stage as a
// goroutine. Stop (or cancelling a parent context passed implicitly via
// Start) tears them all down.
func (p *Pipeline) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	if err := p.handle.Start(ctx); err != nil {
		cancel()
		return err
	}

	p.wg.Add(5)
	go func() { defer p.wg.Done(); p.watchdog.Run(ctx) }()
	go func() { defer p.wg.Done(); p.runWatchdogMetrics(ctx) }()
	go func() { defer p.wg.Done(); p.runChunker(ctx) }()
	go func() { defer p.wg.Done(); p.runVadAndStt(ctx) }()
	go func() { defer p.wg.Done(); p.runInjection(ctx) }()

	return nil
}

// SetMetrics assigns the sink every stage reports counters to, including
// the strategy manager's per-method attempt outcomes.
func (p *Pipeline) SetMetrics(sink MetricsSink) {
	if sink == nil {
		sink = NoOpMetrics{}
	}
	p.Metrics = sink
	p.strategy.SetMetrics(sink)
}

func (p *Pipeline) runWatchdogMetrics(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-p.watchdog.Events():
			if !ok {
				return
			}
			p.Metrics.WatchdogRestartInc()
		}
	}
}

// Stop cancels every stage and waits for them to exit.
func (p *Pipeline) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.handle.Stop()
	p.wg.Wait()
}

func (p *Pipeline) runChunker(ctx context.Context) {
	err := p.chunker.Run(ctx, p.frameReader, p.cfg.FrameSamples)
	if ctx.Err() == nil && err != nil {
		p.logger.Error("pipeline: chunker stopped unexpectedly", "err", err)
	}
	p.chunker.Drain()
}

// runVadAndStt is the merged consumer described in the concurrency model:
// a single goroutine draining one broadcast subscription so VAD events and
// the frames that produced them are always processed in the same order.
func (p *Pipeline) runVadAndStt(ctx context.Context) {
	var lastTs int64
	defer func() {
		p.orchestrator.Shutdown(ctx)
		if ev := p.vad.Shutdown(lastTs); ev != nil {
			p.orchestrator.HandleVadEvent(ctx, *ev)
		}
	}()

	for {
		frame, lagged, err := p.core.Recv(ctx)
		if err != nil {
			return
		}
		lastTs = frame.TimestampUs
		p.Metrics.FramesCapturedInc()
		for i := uint64(0); i < lagged; i++ {
			p.orchestrator.DropFrame()
			p.Metrics.FramesDroppedInc()
		}

		ev, err := p.vad.Process(frame)
		if err != nil {
			p.logger.Warn("pipeline: vad detector error", "err", err)
		}
		if ev != nil {
			p.orchestrator.HandleVadEvent(ctx, *ev)
			if ev.Type == SpeechStart {
				p.Metrics.SpeechEventInc("speech_start")
			} else {
				p.Metrics.SpeechEventInc("speech_end")
			}
		}
		p.orchestrator.OnFrame(ctx, frame)
	}
}

func (p *Pipeline) runInjection(ctx context.Context) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	maybeInject := func() {
		if p.session.State().Kind != SessionReadyToInject {
			return
		}
		text := p.session.Consume()
		appID := p.AppIDResolver(ctx)
		if err := p.strategy.Inject(ctx, appID, text); err != nil {
			p.logger.Warn("pipeline: injection failed", "err", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-p.orchestrator.Events():
			if ev.Kind == TranscriptFinal {
				p.session.OnFinal(ev.Text, time.Now())
				maybeInject()
			}
		case <-ticker.C:
			if p.session.CheckTimeout(time.Now()) {
				maybeInject()
			}
		}
	}
}
