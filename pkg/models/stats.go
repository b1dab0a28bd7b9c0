package models

import (
	"sync"
	"time"
)

// LinkStats is a snapshot of the counters for one side of a video link.
type LinkStats struct {
	FramesSent        uint64    // Frames written to the outgoing stream
	FramesReceived    uint64    // Frames decoded from incoming streams
	BytesSent         uint64    // Payload bytes written
	BytesReceived     uint64    // Payload bytes decoded
	SegmentsSent      uint64    // Segments flushed by the sender
	SegmentsReceived  uint64    // Segment boundaries observed by the receiver
	FramesDiscarded   uint64    // Frames dropped by a clear-buffer request
	TruncatedSegments uint64    // Streams that ended mid-frame
	LastFrameTime     time.Time // Time of the most recent frame in either direction
}

// LinkStatsCollector accumulates link counters, safe for concurrent use.
type LinkStatsCollector struct {
	mu    sync.Mutex
	stats LinkStats
}

// RecordSent accounts for one outgoing frame.
func (c *LinkStatsCollector) RecordSent(bytes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.FramesSent++
	c.stats.BytesSent += uint64(bytes)
	c.stats.LastFrameTime = time.Now()
}

// RecordReceived accounts for one decoded incoming frame.
func (c *LinkStatsCollector) RecordReceived(bytes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.FramesReceived++
	c.stats.BytesReceived += uint64(bytes)
	c.stats.LastFrameTime = time.Now()
}

// RecordSegmentSent accounts for one flushed segment.
func (c *LinkStatsCollector) RecordSegmentSent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.SegmentsSent++
}

// RecordSegmentReceived accounts for one observed segment boundary.
func (c *LinkStatsCollector) RecordSegmentReceived() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.SegmentsReceived++
}

// RecordDiscarded accounts for frames dropped by a clear-buffer request.
func (c *LinkStatsCollector) RecordDiscarded(frames uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.FramesDiscarded += frames
}

// RecordTruncated accounts for a stream that ended mid-frame.
func (c *LinkStatsCollector) RecordTruncated() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.TruncatedSegments++
}

// Snapshot returns the current counters.
func (c *LinkStatsCollector) Snapshot() LinkStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
