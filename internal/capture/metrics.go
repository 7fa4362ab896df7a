package capture

import (
	"sync"
	"time"
)

// StreamMetrics tracks timing for a running video capture. It is safe to
// read from another goroutine while the capture loop updates it.
type StreamMetrics struct {
	mu sync.RWMutex

	FramesWritten uint64
	SlotsSkipped  uint64
	IdleWaits     uint64

	LastGrabTime    time.Duration
	LastConvertTime time.Duration
	LastWriteTime   time.Duration
	MaxGrabTime     time.Duration

	TotalBytes uint64
	startTime  time.Time
}

func NewStreamMetrics() *StreamMetrics {
	return &StreamMetrics{startTime: time.Now()}
}

func (m *StreamMetrics) RecordGrab(d time.Duration) {
	m.mu.Lock()
	m.LastGrabTime = d
	if d > m.MaxGrabTime {
		m.MaxGrabTime = d
	}
	m.mu.Unlock()
}

func (m *StreamMetrics) RecordConvert(d time.Duration) {
	m.mu.Lock()
	m.LastConvertTime = d
	m.mu.Unlock()
}

func (m *StreamMetrics) RecordWrite(d time.Duration, size int) {
	m.mu.Lock()
	m.FramesWritten++
	m.LastWriteTime = d
	m.TotalBytes += uint64(size)
	m.mu.Unlock()
}

func (m *StreamMetrics) RecordSkip(slots int64) {
	m.mu.Lock()
	m.SlotsSkipped += uint64(slots)
	m.mu.Unlock()
}

func (m *StreamMetrics) RecordIdle() {
	m.mu.Lock()
	m.IdleWaits++
	m.mu.Unlock()
}

// MetricsSnapshot is a point-in-time copy of metrics for logging.
type MetricsSnapshot struct {
	FramesWritten uint64
	SlotsSkipped  uint64
	IdleWaits     uint64
	GrabMs        float64
	MaxGrabMs     float64
	ConvertMs     float64
	WriteMs       float64
	ThroughputMBs float64
	Uptime        time.Duration
}

func (m *StreamMetrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	uptime := time.Since(m.startTime)
	tp := float64(0)
	if uptime.Seconds() > 0 {
		tp = float64(m.TotalBytes) / uptime.Seconds() / (1024 * 1024)
	}

	return MetricsSnapshot{
		FramesWritten: m.FramesWritten,
		SlotsSkipped:  m.SlotsSkipped,
		IdleWaits:     m.IdleWaits,
		GrabMs:        float64(m.LastGrabTime.Microseconds()) / 1000.0,
		MaxGrabMs:     float64(m.MaxGrabTime.Microseconds()) / 1000.0,
		ConvertMs:     float64(m.LastConvertTime.Microseconds()) / 1000.0,
		WriteMs:       float64(m.LastWriteTime.Microseconds()) / 1000.0,
		ThroughputMBs: tp,
		Uptime:        uptime,
	}
}
