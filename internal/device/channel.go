package device

import (
	"context"
	"time"

	"github.com/vk/scangrid/internal/counter"
	"github.com/vk/scangrid/internal/metrics"
)

// Point is one published value on one channel. Downstream consumers
// (display, storage) are external; publishing is the observable side
// effect of a reading task.
type Point struct {
	Channel string
	Index   int
	Value   any
	Time    time.Time
}

// Sink receives published points. Implementations are external
// collaborators; the in-memory sink used by tests and the CLI lives in its
// own package.
type Sink interface {
	Publish(ctx context.Context, p Point)
}

// Channel is the named, typed output of a device for one counter.
type Channel struct {
	Name  string
	DType counter.DType
	Shape []int

	sink Sink
}

// NewChannel binds a channel for the given counter to a sink.
func NewChannel(cnt *counter.Counter, sink Sink) *Channel {
	return &Channel{
		Name:  cnt.FullName,
		DType: cnt.DType,
		Shape: cnt.Shape,
		sink:  sink,
	}
}

// Emit publishes one point. Emission order per channel is strictly the
// acquisition order of the owning device.
func (c *Channel) Emit(ctx context.Context, index int, value any) {
	metrics.PointsPublished.WithLabelValues(c.Name).Inc()
	if c.sink == nil {
		return
	}
	c.sink.Publish(ctx, Point{
		Channel: c.Name,
		Index:   index,
		Value:   value,
		Time:    time.Now(),
	})
}
