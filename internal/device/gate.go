package device

import (
	"context"
	"sync"

	"github.com/looplab/fsm"
)

// Gate states.
const (
	StateReady     = "READY"
	StateTriggered = "TRIGGERED"
)

// Gate event names.
const (
	eventTrigger = "trigger"
	eventConsume = "consume"
)

// TriggerGate is the two-state trigger gate shared by software-paced
// devices. A
// pacing loop moves it READY→TRIGGERED; the reading task consumes the point
// and moves it back. Waits block on a broadcast channel replaced on every
// transition, so any number of waiters observe every state change.
type TriggerGate struct {
	mu      sync.Mutex
	machine *fsm.FSM
	changed chan struct{}
}

// NewGate returns a gate in the READY state.
func NewGate() *TriggerGate {
	return &TriggerGate{
		machine: fsm.NewFSM(
			StateReady,
			fsm.Events{
				{Name: eventTrigger, Src: []string{StateReady}, Dst: StateTriggered},
				{Name: eventConsume, Src: []string{StateTriggered}, Dst: StateReady},
			},
			fsm.Callbacks{},
		),
		changed: make(chan struct{}),
	}
}

// State returns the current gate state.
func (g *TriggerGate) State() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.machine.Current()
}

// Ready reports whether the gate accepts a new trigger right now.
func (g *TriggerGate) Ready() bool {
	return g.State() == StateReady
}

func (g *TriggerGate) broadcastLocked() {
	close(g.changed)
	g.changed = make(chan struct{})
}

// Trigger performs READY→TRIGGERED, blocking while a previous point is
// still in flight. At most one trigger is outstanding at any time.
func (g *TriggerGate) Trigger(ctx context.Context) error {
	for {
		g.mu.Lock()
		if g.machine.Current() == StateReady {
			if err := g.machine.Event(ctx, eventTrigger); err != nil {
				g.mu.Unlock()
				return err
			}
			g.broadcastLocked()
			g.mu.Unlock()
			return nil
		}
		ch := g.changed
		g.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// Consume moves TRIGGERED→READY after the in-flight point has been
// published. A gate already forced READY by Stop is left alone.
func (g *TriggerGate) Consume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.machine.Current() != StateTriggered {
		return
	}
	if err := g.machine.Event(context.Background(), eventConsume); err == nil {
		g.broadcastLocked()
	}
}

// ForceReady returns the gate to READY from any state. It is the recovery
// path used by Stop and must stay callable regardless of prior errors.
func (g *TriggerGate) ForceReady() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.machine.Current() == StateReady {
		return
	}
	g.machine.SetState(StateReady)
	g.broadcastLocked()
}

// Wait blocks until the gate reaches the given state or ctx is done.
func (g *TriggerGate) Wait(ctx context.Context, state string) error {
	for {
		g.mu.Lock()
		if g.machine.Current() == state {
			g.mu.Unlock()
			return nil
		}
		ch := g.changed
		g.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}
