// Package progress reports per-stage decode progress and carries the
// cancellation token used by streaming table extraction.
package progress

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Callback receives a stage name, current/total counters, and a
// human-readable message. total may be -1 when unknown.
type Callback func(stage string, current, total int64, message string)

// Tracker manages progress reporting across the decode pipeline's stages.
type Tracker struct {
	callback     Callback
	totalStages  int
	currentStage int
	startTime    time.Time
	stages       map[string]*stageState
	mutex        sync.Mutex
}

type stageState struct {
	total     int64
	current   int64
	startTime time.Time
}

// NewTracker creates a Tracker that reports through callback. callback may
// be nil, in which case all calls are no-ops.
func NewTracker(callback Callback, totalStages int) *Tracker {
	return &Tracker{
		callback:    callback,
		totalStages: totalStages,
		startTime:   time.Now(),
		stages:      make(map[string]*stageState),
	}
}

// StartStage begins tracking a new stage. estimatedTotal may be -1 when the
// row count isn't known yet (e.g. before the schema is built).
func (t *Tracker) StartStage(name string, estimatedTotal int64) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.currentStage++
	t.stages[name] = &stageState{total: estimatedTotal, startTime: time.Now()}

	if t.callback != nil {
		t.callback(name, 0, estimatedTotal, fmt.Sprintf("stage %d/%d: %s", t.currentStage, t.totalStages, name))
	}
}

// UpdateStage reports progress within the named stage.
func (t *Tracker) UpdateStage(name string, current int64, message string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	s, ok := t.stages[name]
	if !ok {
		return
	}
	s.current = current

	if t.callback != nil {
		if message == "" {
			message = fmt.Sprintf("stage %d/%d: %s", t.currentStage, t.totalStages, name)
		}
		t.callback(name, current, s.total, message)
	}
}

// CompleteStage marks a stage finished at finalCount.
func (t *Tracker) CompleteStage(name string, finalCount int64) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	s, ok := t.stages[name]
	if !ok {
		return
	}
	s.current, s.total = finalCount, finalCount
	elapsed := time.Since(s.startTime)

	if t.callback != nil {
		t.callback(name, finalCount, finalCount, fmt.Sprintf("stage %d/%d: %s complete (%d, %v)",
			t.currentStage, t.totalStages, name, finalCount, elapsed.Truncate(time.Millisecond)))
	}
}

// NoOp discards every progress update.
func NoOp(string, int64, int64, string) {}

// Throttled wraps callback so it fires at most once per minInterval.
func Throttled(callback Callback, minInterval time.Duration) Callback {
	var mutex sync.Mutex
	var last time.Time

	return func(stage string, current, total int64, message string) {
		mutex.Lock()
		defer mutex.Unlock()

		now := time.Now()
		if now.Sub(last) >= minInterval {
			last = now
			if callback != nil {
				callback(stage, current, total, message)
			}
		}
	}
}

// Epoch is a cancellation token for streaming table extraction. Bump
// invalidates any in-flight extraction that captured an earlier value.
type Epoch struct {
	value int64
}

// NewEpoch returns an Epoch starting at 0.
func NewEpoch() *Epoch {
	return &Epoch{}
}

// Bump invalidates any extraction in flight, returning the new value.
func (e *Epoch) Bump() int64 {
	return atomic.AddInt64(&e.value, 1)
}

// Snapshot captures the current epoch value for later comparison.
func (e *Epoch) Snapshot() int64 {
	return atomic.LoadInt64(&e.value)
}

// Valid reports whether snapshot still matches the current epoch value.
func (e *Epoch) Valid(snapshot int64) bool {
	return atomic.LoadInt64(&e.value) == snapshot
}
