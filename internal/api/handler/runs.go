package handler

import (
	"sync"
	"time"

	"github.com/albapepper/stock-notifier/internal/notifications"
)

// Run results recorded by the scheduler.
const (
	ResultOK     = "ok"
	ResultError  = "error"
	ResultLocked = "locked"
)

// RunRecord is one scheduled run as seen by the status API.
type RunRecord struct {
	Result     string                 `json:"result"`
	FinishedAt time.Time              `json:"finished_at"`
	Error      string                 `json:"error,omitempty"`
	Summary    *notifications.Summary `json:"summary,omitempty"`
}

// RunHistory keeps the last few runs in memory.
type RunHistory struct {
	mu      sync.RWMutex
	records []RunRecord
	limit   int
}

// NewRunHistory keeps at most limit records.
func NewRunHistory(limit int) *RunHistory {
	if limit < 1 {
		limit = 1
	}
	return &RunHistory{limit: limit}
}

// Record appends rec, dropping the oldest when full.
func (h *RunHistory) Record(rec RunRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec)
	if len(h.records) > h.limit {
		h.records = h.records[len(h.records)-h.limit:]
	}
}

// Last returns the newest record.
func (h *RunHistory) Last() (RunRecord, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.records) == 0 {
		return RunRecord{}, false
	}
	return h.records[len(h.records)-1], true
}

// Recent returns all kept records, newest first.
func (h *RunHistory) Recent() []RunRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]RunRecord, len(h.records))
	for i, rec := range h.records {
		out[len(h.records)-1-i] = rec
	}
	return out
}
