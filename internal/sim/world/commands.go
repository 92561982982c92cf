package world

type CommandOp uint8

const (
	OpPortalAbsorbBubble CommandOp = iota + 1
	OpBubbleAbsorbBubble
	OpBubbleAbsorbResource
	OpPortalAbsorbResource
	OpNodeAbsorbResource
	OpNodeAbsorbBubble
)

func (op CommandOp) String() string {
	switch op {
	case OpPortalAbsorbBubble:
		return "portal_absorb_bubble"
	case OpBubbleAbsorbBubble:
		return "bubble_absorb_bubble"
	case OpBubbleAbsorbResource:
		return "bubble_absorb_resource"
	case OpPortalAbsorbResource:
		return "portal_absorb_resource"
	case OpNodeAbsorbResource:
		return "node_absorb_resource"
	case OpNodeAbsorbBubble:
		return "node_absorb_bubble"
	}
	return "unknown"
}

// Command is a deferred mass transfer. It carries ids only; participants are
// looked up again when the queue drains.
type Command struct {
	Op         CommandOp
	ReceiverID string
	DonorID    string
}

func (w *World) enqueue(c Command) { w.commands = append(w.commands, c) }

// PendingCommands is the number of queued, undrained commands.
func (w *World) PendingCommands() int { return len(w.commands) }

// drainCommands runs queued commands in FIFO order. A command whose receiver
// or donor no longer exists is skipped.
func (w *World) drainCommands(elapsed float64) {
	cmds := w.commands
	w.commands = nil
	for _, c := range cmds {
		w.runCommand(c, elapsed)
	}
}

func (w *World) runCommand(c Command, elapsed float64) {
	switch c.Op {
	case OpPortalAbsorbBubble:
		p, ok1 := w.portals.get(c.ReceiverID)
		b, ok2 := w.bubbles.get(c.DonorID)
		if ok1 && ok2 {
			w.PortalAbsorbBubble(p, b, elapsed)
		}
	case OpBubbleAbsorbBubble:
		a, ok1 := w.bubbles.get(c.ReceiverID)
		b, ok2 := w.bubbles.get(c.DonorID)
		if ok1 && ok2 {
			w.BubbleAbsorbBubble(a, b, elapsed)
		}
	case OpBubbleAbsorbResource:
		b, ok1 := w.bubbles.get(c.ReceiverID)
		r, ok2 := w.resources.get(c.DonorID)
		if ok1 && ok2 {
			w.BubbleAbsorbResource(b, r, elapsed)
		}
	case OpPortalAbsorbResource:
		p, ok1 := w.portals.get(c.ReceiverID)
		r, ok2 := w.resources.get(c.DonorID)
		if ok1 && ok2 {
			w.PortalAbsorbResource(p, r, elapsed)
		}
	case OpNodeAbsorbResource:
		n, ok1 := w.nodes.get(c.ReceiverID)
		r, ok2 := w.resources.get(c.DonorID)
		if ok1 && ok2 {
			w.NodeAbsorbResource(n, r, elapsed)
		}
	case OpNodeAbsorbBubble:
		n, ok1 := w.nodes.get(c.ReceiverID)
		b, ok2 := w.bubbles.get(c.DonorID)
		if ok1 && ok2 {
			w.NodeAbsorbBubble(n, b, elapsed)
		}
	}
}
