package world

import (
	"fmt"
	"sort"

	"bubbles.ai/internal/protocol"
)

type queuedInput struct {
	in      protocol.Input
	arrival uint64
}

// InputQueue holds inputs waiting for their timestamp. Ties on timestamp are
// broken by arrival order.
type InputQueue struct {
	items []queuedInput
	next  uint64
}

func (q *InputQueue) Push(in protocol.Input) {
	q.next++
	q.items = append(q.items, queuedInput{in: in, arrival: q.next})
	sort.SliceStable(q.items, func(i, j int) bool {
		a, b := q.items[i], q.items[j]
		if a.in.Timestamp != b.in.Timestamp {
			return a.in.Timestamp < b.in.Timestamp
		}
		return a.arrival < b.arrival
	})
}

// Due removes and returns the inputs with timestamp <= clock, in order.
func (q *InputQueue) Due(clock int64) []protocol.Input {
	n := 0
	for n < len(q.items) && q.items[n].in.Timestamp <= clock {
		n++
	}
	if n == 0 {
		return nil
	}
	out := make([]protocol.Input, n)
	for i := 0; i < n; i++ {
		out[i] = q.items[i].in
	}
	q.items = append(q.items[:0], q.items[n:]...)
	return out
}

// Pending returns a copy of the queued inputs in application order.
func (q *InputQueue) Pending() []protocol.Input {
	out := make([]protocol.Input, len(q.items))
	for i, it := range q.items {
		out[i] = it.in
	}
	return out
}

func (q *InputQueue) Len() int { return len(q.items) }

func (q *InputQueue) Clear() { q.items = nil }

// Schedule queues in for the boundary at or after its timestamp. Inputs older
// than the current clock are still accepted and run at the next boundary;
// callers that care use IsLate first.
func (w *World) Schedule(in protocol.Input) error {
	if err := in.Check(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	w.inputs.Push(in)
	return nil
}

// IsLate reports whether an input at ts would land behind the clock.
func (w *World) IsLate(ts int64) bool { return ts < w.clock }

func (w *World) PendingInputs() []protocol.Input { return w.inputs.Pending() }

// ClearPending drops every queued input.
func (w *World) ClearPending() { w.inputs.Clear() }

// ApplyInput executes in against the current state. On error nothing has
// been mutated and an InputRejected event is published.
func (w *World) ApplyInput(in protocol.Input) error {
	err := w.applyInput(in)
	if err != nil {
		w.events.Publish(protocol.Event{
			Type:      EventInputRejected,
			ID:        in.Key(),
			Timestamp: w.clock,
			Code:      ErrorCode(err),
			Actor:     in.Actor,
		})
	}
	return err
}

func (w *World) applyInput(in protocol.Input) error {
	if err := in.Check(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	actor, err := protocol.NormalizeAddress(in.Actor)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	switch in.Type {
	case protocol.InputDeposit:
		w.userOrCreate(actor).Balance += in.Amount
		return nil

	case protocol.InputWithdraw:
		u, ok := w.users.get(actor)
		if !ok || u.Balance < in.Amount {
			return ErrInsufficientBalance
		}
		u.Balance -= in.Amount
		return nil

	case protocol.InputCreatePortal:
		u, ok := w.users.get(actor)
		if !ok || u.Balance < in.Amount {
			return ErrInsufficientBalance
		}
		if _, exists := w.portals.get(actor); exists {
			return fmt.Errorf("%w: %s", ErrPortalExists, actor)
		}
		pos, err := w.GenerateSpawnPoint(in.Amount)
		if err != nil {
			return err
		}
		if _, err := w.CreatePortal(actor, pos, in.Amount); err != nil {
			return err
		}
		u.Balance -= in.Amount
		return nil

	case protocol.InputAddPortalMass:
		p, err := w.ownedPortal(actor, in.EntityID)
		if err != nil {
			return err
		}
		u, ok := w.users.get(actor)
		if !ok || u.Balance < in.Amount {
			return ErrInsufficientBalance
		}
		u.Balance -= in.Amount
		p.Mass += in.Amount
		return nil

	case protocol.InputRemovePortalMass:
		p, err := w.ownedPortal(actor, in.EntityID)
		if err != nil {
			return err
		}
		if p.Mass < in.Amount {
			return fmt.Errorf("%w: portal holds %v", ErrInsufficientMass, p.Mass)
		}
		p.Mass -= in.Amount
		w.userOrCreate(actor).Balance += in.Amount
		return nil

	case protocol.InputEmit:
		if err := w.checkOwner(actor, in.EntityID); err != nil {
			return err
		}
		_, err := w.EmitBubble(in.EntityID, in.Amount, vp(in.Direction))
		return err

	case protocol.InputEmitResource:
		kind, err := ParseResourceKind(in.Resource)
		if err != nil {
			return err
		}
		if err := w.checkOwner(actor, in.EntityID); err != nil {
			return err
		}
		_, err = w.EmitResource(in.EntityID, kind, in.Amount, vp(in.Direction))
		return err

	case protocol.InputPuncture:
		kind, err := ParseResourceKind(in.Resource)
		if err != nil {
			return err
		}
		return w.Puncture(in.EntityID, vp(in.Point), kind, in.Amount)
	}
	return fmt.Errorf("%w: %s", ErrInvalidInput, in.Type)
}

func (w *World) ownedPortal(actor, id string) (*Portal, error) {
	if id == "" {
		id = actor
	}
	p, ok := w.portals.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: portal %s", ErrUnknownEntity, id)
	}
	if p.Owner != actor {
		return nil, ErrNotOwner
	}
	return p, nil
}

// checkOwner accepts portals and bubbles owned by actor.
func (w *World) checkOwner(actor, id string) error {
	if p, ok := w.portals.get(id); ok {
		if p.Owner != actor {
			return ErrNotOwner
		}
		return nil
	}
	if b, ok := w.bubbles.get(id); ok {
		if b.Owner != actor {
			return ErrNotOwner
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownEntity, id)
}
