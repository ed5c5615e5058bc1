package coldvox

import (
	"context"
	"sync/atomic"
)

// Transcriber is the STT backend trait: one instance drives at most one
// utterance at a time. Implementations live in pkg/backends/stt (a
// websocket streaming adapter and a batch HTTP adapter); neither talks to
// any real ML model directly, only to a remote service.
type Transcriber interface {
	BeginUtterance(ctx context.Context, utteranceID uint64) error
	Feed(ctx context.Context, samples []int16) (*PartialEvent, error)
	Finalize(ctx context.Context) (FinalEvent, error)
	Reset(ctx context.Context) error
}

// PartialEvent is an in-progress transcription hint.
type PartialEvent struct {
	Text string
}

// FinalEvent is the completed transcription for one utterance.
type FinalEvent struct {
	Text        string
	WordTimings []WordTiming
}

// Orchestrator drives a Transcriber from externally-delivered frames and
// VAD events, emitting TranscriptionEvents on Events(). It holds no
// broadcast subscription of its own: Pipeline's merged consumer (see
// runVadAndStt) calls HandleVadEvent and OnFrame directly off the same
// subscription it uses for VAD, which is what guarantees frame/event
// ordering in the first place. Not safe for concurrent use from more than
// one goroutine.
type Orchestrator struct {
	transcriber Transcriber
	logger      Logger

	events chan TranscriptionEvent

	state         UtteranceState
	nextID        uint64
	framesDropped int
	needsReset    bool
}

// NewOrchestrator builds an Orchestrator driving transcriber. eventCapacity
// bounds the emitted-event channel; the orchestrator never blocks
// indefinitely on a full channel (see emit).
func NewOrchestrator(transcriber Transcriber, eventCapacity int, logger Logger) *Orchestrator {
	if logger == nil {
		logger = NoOpLogger{}
	}
	if eventCapacity < 1 {
		eventCapacity = 32
	}
	return &Orchestrator{
		transcriber: transcriber,
		logger:      logger,
		events:      make(chan TranscriptionEvent, eventCapacity),
		state:       UtteranceState{Kind: UtteranceIdle},
	}
}

// Events returns the channel TranscriptionEvents are published on.
func (o *Orchestrator) Events() <-chan TranscriptionEvent { return o.events }

// State returns a snapshot of the current utterance state.
func (o *Orchestrator) State() UtteranceState { return o.state }

// HandleVadEvent advances the utterance lifecycle in response to a VAD
// transition. Call this and OnFrame from the same goroutine (the merged
// select over frames+VAD events described in the concurrency model).
func (o *Orchestrator) HandleVadEvent(ctx context.Context, ev VadEvent) {
	switch ev.Type {
	case SpeechStart:
		if o.state.Kind == UtteranceActive {
			return // already active; ignore a duplicate start
		}
		id := atomic.AddUint64(&o.nextID, 1)
		if o.needsReset {
			if err := o.transcriber.Reset(ctx); err != nil {
				o.logger.Warn("stt: reset before begin failed", "err", err)
			}
			o.needsReset = false
		}
		if err := o.transcriber.BeginUtterance(ctx, id); err != nil {
			o.emitError(id, ErrKindTranscriberInit)
			return
		}
		o.state = UtteranceState{Kind: UtteranceActive, ID: id}
		o.framesDropped = 0

	case SpeechEnd:
		if o.state.Kind != UtteranceActive {
			return
		}
		o.finalize(ctx)
	}
}

// OnFrame feeds one audio frame into the active utterance, if any. No-op
// when Idle (frames outside an utterance are simply not fed).
func (o *Orchestrator) OnFrame(ctx context.Context, frame AudioFrame) {
	if o.state.Kind != UtteranceActive {
		return
	}
	partial, err := o.transcriber.Feed(ctx, frame.Samples)
	if err != nil {
		o.emitError(o.state.ID, ErrKindTranscriberRuntime)
		o.abandon(ctx)
		return
	}
	o.state.FramesFed++
	if partial != nil {
		o.state.PartialText = partial.Text
		o.emit(TranscriptionEvent{Kind: TranscriptPartial, UtteranceID: o.state.ID, Text: partial.Text})
	}
}

// DropFrame records a frame the orchestrator chose not to feed because the
// transcriber couldn't keep up, for reporting in the eventual Final event.
func (o *Orchestrator) DropFrame() {
	if o.state.Kind == UtteranceActive {
		o.framesDropped++
	}
}

func (o *Orchestrator) finalize(ctx context.Context) {
	id := o.state.ID
	framesFed := o.state.FramesFed
	o.state = UtteranceState{Kind: UtteranceIdle}

	if framesFed == 0 {
		// Immediate SpeechEnd with nothing fed: discard silently per the
		// orchestrator's edge-case contract.
		return
	}

	final, err := o.transcriber.Finalize(ctx)
	if err != nil {
		o.emitError(id, ErrKindTranscriberRuntime)
		o.needsReset = true
		return
	}
	o.emit(TranscriptionEvent{
		Kind:          TranscriptFinal,
		UtteranceID:   id,
		Text:          final.Text,
		WordTimings:   final.WordTimings,
		FramesDropped: o.framesDropped,
	})
	o.framesDropped = 0
}

// abandon tears down the current utterance after a feed failure without
// emitting a Final, per "do not crash the pipeline": the transcriber is
// marked for reset on the next SpeechStart.
func (o *Orchestrator) abandon(ctx context.Context) {
	o.state = UtteranceState{Kind: UtteranceIdle}
	o.needsReset = true
}

// Shutdown finalizes any active utterance best-effort, emitting a Final or
// an Error but never panicking.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	if o.state.Kind == UtteranceActive {
		o.finalize(ctx)
	}
}

func (o *Orchestrator) emitError(utteranceID uint64, kind ErrorKind) {
	o.emit(TranscriptionEvent{Kind: TranscriptError, UtteranceID: utteranceID, ErrorKind: kind})
	o.needsReset = true
}

// emit is a non-blocking send so a slow consumer of Events() never stalls
// utterance processing; a full channel drops the event and logs it, since
// there is no meaningful back-pressure point downstream of STT that the
// orchestrator itself can apply (frame dropping is the actual back-pressure
// mechanism, handled separately via DropFrame).
func (o *Orchestrator) emit(ev TranscriptionEvent) {
	select {
	case o.events <- ev:
	default:
		o.logger.Warn("stt: event channel full, dropping event", "kind", ev.Kind)
	}
}
