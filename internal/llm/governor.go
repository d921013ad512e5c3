package llm

import (
	"context"
	"fmt"
	"time"
)

// StreamConfig governs the health of a single streamed generation.
// Thresholds must be strictly ascending and strictly less than
// MaxStreamDuration; NewGovernor does not enforce this itself — callers
// construct StreamConfig values that satisfy the invariant.
type StreamConfig struct {
	MaxThinkingChars  int
	MaxThinkingTime   time.Duration
	MaxStreamDuration time.Duration
	WarningThresholds []time.Duration // ascending
	MaxThinkingLoop   int
}

// GovernorEvent is emitted by the governor alongside (or instead of)
// the underlying stream's chunks.
type GovernorEvent struct {
	Progress  bool          // a warning threshold was crossed
	ElapsedMS int64         // set when Progress is true
	Err       error         // set when the stream aborted
	Timeout   bool          // true when Err was caused by MaxStreamDuration
}

// GovernorEventFunc receives governor-level events (progress markers,
// terminal errors) alongside the chunk callback passed to Governed.
type GovernorEventFunc func(GovernorEvent)

// Governor wraps a Backend's streaming call, enforcing a StreamConfig
// over the raw chunk sequence: thinking-chunk suppression past budget,
// thinking-loop detection, elapsed-time progress markers, and a hard
// stream duration cutoff.
type Governor struct {
	cfg StreamConfig
}

// NewGovernor creates a Governor enforcing cfg.
func NewGovernor(cfg StreamConfig) *Governor {
	return &Governor{cfg: cfg}
}

// Generate runs backend.GenerateStream under governance, invoking
// onChunk for every chunk that survives the guard and onEvent for
// progress/error markers. It returns the backend's final Output, or an
// error if the stream was aborted by the governor.
func (g *Governor) Generate(ctx context.Context, backend Backend, in Input, onChunk StreamCallback, onEvent GovernorEventFunc) (*Output, error) {
	start := time.Now()
	state := &governorState{start: start, cfg: g.cfg}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var abortErr error
	wrapped := func(chunk StreamChunk) error {
		elapsed := time.Since(start)

		if g.cfg.MaxStreamDuration > 0 && elapsed > g.cfg.MaxStreamDuration {
			abortErr = fmt.Errorf("llm: stream exceeded max duration %s", g.cfg.MaxStreamDuration)
			if onEvent != nil {
				onEvent(GovernorEvent{Err: abortErr, Timeout: true})
			}
			cancel()
			return abortErr
		}

		state.checkWarnings(elapsed, onEvent)

		if chunk.IsThinking {
			if state.thinkingSuppressed(chunk, elapsed) {
				return nil
			}
		} else {
			state.thinkingChars = 0
			state.thinkingStart = time.Time{}
			state.lastThinking = ""
			state.thinkingRepeat = 0
		}

		if onChunk != nil {
			return onChunk(chunk)
		}
		return nil
	}

	out, err := backend.GenerateStream(ctx, in, wrapped)
	if abortErr != nil {
		return out, abortErr
	}
	return out, err
}

type governorState struct {
	start time.Time
	cfg   StreamConfig

	thinkingChars  int
	thinkingStart  time.Time
	lastThinking   string
	thinkingRepeat int

	nextWarning int
}

// checkWarnings emits a Progress event for each WarningThresholds entry
// crossed since the last call.
func (s *governorState) checkWarnings(elapsed time.Duration, onEvent GovernorEventFunc) {
	for s.nextWarning < len(s.cfg.WarningThresholds) && elapsed >= s.cfg.WarningThresholds[s.nextWarning] {
		if onEvent != nil {
			onEvent(GovernorEvent{Progress: true, ElapsedMS: elapsed.Milliseconds()})
		}
		s.nextWarning++
	}
}

// thinkingSuppressed updates thinking-tracking state for chunk and
// reports whether it should be dropped: either because the cumulative
// thinking budget (chars or wall time) is exceeded, or because the
// same thinking chunk has repeated MaxThinkingLoop consecutive times.
func (s *governorState) thinkingSuppressed(chunk StreamChunk, elapsed time.Duration) bool {
	if s.thinkingStart.IsZero() {
		s.thinkingStart = time.Now()
	}

	if chunk.Text == s.lastThinking && chunk.Text != "" {
		s.thinkingRepeat++
	} else {
		s.thinkingRepeat = 1
		s.lastThinking = chunk.Text
	}
	if s.cfg.MaxThinkingLoop > 0 && s.thinkingRepeat >= s.cfg.MaxThinkingLoop {
		return true
	}

	s.thinkingChars += len(chunk.Text)
	thinkingElapsed := time.Since(s.thinkingStart)

	overChars := s.cfg.MaxThinkingChars > 0 && s.thinkingChars > s.cfg.MaxThinkingChars
	overTime := s.cfg.MaxThinkingTime > 0 && thinkingElapsed > s.cfg.MaxThinkingTime
	return overChars || overTime
}
