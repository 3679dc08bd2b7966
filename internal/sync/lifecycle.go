package sync

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
)

// State is the lifecycle state of this device's sync container.
type State string

const (
	StateUnsynced    State = "unsynced"
	StateCreated     State = "created"
	StateUpToDate    State = "up_to_date"
	StateLocalAhead  State = "local_ahead"
	StateRemoteAhead State = "remote_ahead"
	StateDiverged    State = "diverged"
)

// Lifecycle events.
const (
	EventCreate     = "create"
	EventSync       = "sync"
	EventLocalEdit  = "local_edit"
	EventRemotePush = "remote_push"
)

// Lifecycle is the container state machine:
//
//	unsynced -> created -> up_to_date <-> local_ahead / remote_ahead
//
// with diverged when both sides changed. Any synced state returns to
// up_to_date after a push or pull.
type Lifecycle struct {
	machine *fsm.FSM
}

// NewLifecycle returns a machine in the given state.
func NewLifecycle(initial State) *Lifecycle {
	synced := []string{
		string(StateCreated), string(StateUpToDate), string(StateLocalAhead),
		string(StateRemoteAhead), string(StateDiverged),
	}
	return &Lifecycle{machine: fsm.NewFSM(
		string(initial),
		fsm.Events{
			{Name: EventCreate, Src: []string{string(StateUnsynced)}, Dst: string(StateCreated)},
			{Name: EventSync, Src: synced, Dst: string(StateUpToDate)},
			{Name: EventLocalEdit, Src: []string{string(StateCreated), string(StateUpToDate)}, Dst: string(StateLocalAhead)},
			{Name: EventLocalEdit, Src: []string{string(StateRemoteAhead)}, Dst: string(StateDiverged)},
			{Name: EventRemotePush, Src: []string{string(StateCreated), string(StateUpToDate)}, Dst: string(StateRemoteAhead)},
			{Name: EventRemotePush, Src: []string{string(StateLocalAhead)}, Dst: string(StateDiverged)},
		},
		fsm.Callbacks{},
	)}
}

// Current returns the current state.
func (l *Lifecycle) Current() State {
	return State(l.machine.Current())
}

// Can reports whether event is allowed in the current state.
func (l *Lifecycle) Can(event string) bool {
	return l.machine.Can(event)
}

// Fire applies event. Events that leave the state unchanged are not errors.
func (l *Lifecycle) Fire(ctx context.Context, event string) error {
	err := l.machine.Event(ctx, event)
	var same fsm.NoTransitionError
	if errors.As(err, &same) {
		return nil
	}
	return err
}

// Observation is what status learned about both sides.
type Observation struct {
	// Synced is set once this device completed a push or pull.
	Synced bool
	// RemoteNeverUpdated is set when the remote container has not changed
	// since it was created.
	RemoteNeverUpdated bool
	LocalChanged       bool
	RemoteChanged      bool
}

// Replay derives the lifecycle state by feeding the observation through
// the machine.
func Replay(ctx context.Context, obs Observation) (State, error) {
	l := NewLifecycle(StateUnsynced)
	if !obs.Synced {
		return l.Current(), nil
	}

	events := []string{EventCreate}
	if !obs.RemoteNeverUpdated {
		events = append(events, EventSync)
	}
	if obs.LocalChanged {
		events = append(events, EventLocalEdit)
	}
	if obs.RemoteChanged {
		events = append(events, EventRemotePush)
	}
	for _, e := range events {
		if err := l.Fire(ctx, e); err != nil {
			return l.Current(), err
		}
	}
	return l.Current(), nil
}
