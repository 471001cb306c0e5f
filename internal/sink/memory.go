// Package sink provides the in-memory point sink used by tests and the
// CLI. Real deployments publish to external display/storage services,
// which are outside this module.
package sink

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vk/scangrid/internal/device"
)

// Memory records every published point per channel, in publish order, and
// lets readers wait for a given point index to arrive.
type Memory struct {
	mu      sync.Mutex
	series  map[string][]device.Point
	changed chan struct{}
}

// NewMemory returns an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{
		series:  make(map[string][]device.Point),
		changed: make(chan struct{}),
	}
}

// Publish implements device.Sink.
func (m *Memory) Publish(ctx context.Context, p device.Point) {
	m.mu.Lock()
	m.series[p.Channel] = append(m.series[p.Channel], p)
	close(m.changed)
	m.changed = make(chan struct{})
	m.mu.Unlock()
}

// Points returns the points published on a channel so far.
func (m *Memory) Points(channel string) []device.Point {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]device.Point, len(m.series[channel]))
	copy(out, m.series[channel])
	return out
}

// Last returns the most recent point on a channel.
func (m *Memory) Last(channel string) (device.Point, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	points := m.series[channel]
	if len(points) == 0 {
		return device.Point{}, false
	}
	return points[len(points)-1], true
}

// WaitPoint blocks until point index exists on the channel and returns it.
// Derived-counter devices use it to read their inputs without racing the
// producers.
func (m *Memory) WaitPoint(ctx context.Context, channel string, index int) (device.Point, error) {
	for {
		m.mu.Lock()
		points := m.series[channel]
		if len(points) > index {
			p := points[index]
			m.mu.Unlock()
			return p, nil
		}
		ch := m.changed
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return device.Point{}, fmt.Errorf("waiting for point %d on %q: %w", index, channel, ctx.Err())
		case <-ch:
		}
	}
}

// Channels returns the channel names seen so far, sorted.
func (m *Memory) Channels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.series))
	for name := range m.series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
