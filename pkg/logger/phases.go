package logger

import (
	"fmt"
	"sync"
	"time"
)

// PhaseTracker tracks a task's progress through the fixed sequence of
// pipeline phases. Phase transitions are the points where a task observes
// cancellation, so they are also where progress is logged and reported
// upward to whoever registered an observer (the task manager).
type PhaseTracker struct {
	logger     Logger
	taskID     string
	phases     []string
	index      int
	startTime  time.Time
	phaseStart time.Time
	onEnter    func(phase string, percent float64)
	mutex      sync.Mutex
}

// NewPhaseTracker creates a tracker for the given ordered phase names.
func NewPhaseTracker(taskID string, phases []string, log Logger) *PhaseTracker {
	if log == nil {
		log = GetGlobalLogger()
	}
	now := time.Now()
	return &PhaseTracker{
		logger:     log.WithComponent("pipeline").WithField("task_id", taskID),
		taskID:     taskID,
		phases:     phases,
		index:      -1,
		startTime:  now,
		phaseStart: now,
	}
}

// OnEnter registers a callback invoked on every phase transition with the
// phase name and the percentage of phases entered so far.
func (t *PhaseTracker) OnEnter(fn func(phase string, percent float64)) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.onEnter = fn
}

// Enter records the transition into the named phase and logs the duration
// of the phase it leaves behind.
func (t *PhaseTracker) Enter(phase string) {
	t.mutex.Lock()

	now := time.Now()
	previous := ""
	if t.index >= 0 && t.index < len(t.phases) {
		previous = t.phases[t.index]
	}
	elapsed := now.Sub(t.phaseStart)
	t.phaseStart = now
	t.index++

	percent := t.percentLocked()
	callback := t.onEnter
	t.mutex.Unlock()

	fields := Fields{
		"phase":   phase,
		"percent": fmt.Sprintf("%.0f%%", percent),
	}
	if previous != "" {
		fields["previous_phase"] = previous
		fields["previous_duration"] = elapsed.String()
	}
	t.logger.WithFields(fields).Debug("Entering phase")

	if callback != nil {
		callback(phase, percent)
	}
}

// Complete logs the total pipeline duration.
func (t *PhaseTracker) Complete() {
	t.mutex.Lock()
	total := time.Since(t.startTime)
	t.mutex.Unlock()

	t.logger.WithField("duration", total.String()).Debug("Pipeline finished")
}

// Current returns the name of the phase most recently entered.
func (t *PhaseTracker) Current() string {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.index < 0 {
		return ""
	}
	if t.index >= len(t.phases) {
		return t.phases[len(t.phases)-1]
	}
	return t.phases[t.index]
}

// Percent returns the fraction of phases entered, as a percentage.
func (t *PhaseTracker) Percent() float64 {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.percentLocked()
}

func (t *PhaseTracker) percentLocked() float64 {
	if len(t.phases) == 0 {
		return 0
	}
	entered := t.index + 1
	if entered > len(t.phases) {
		entered = len(t.phases)
	}
	return float64(entered) / float64(len(t.phases)) * 100
}
