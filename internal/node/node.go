package node

import (
	"context"
	"errors"
	"log"
	"sort"
	"time"

	"bubbles.ai/internal/persistence/snapshot"
	"bubbles.ai/internal/protocol"
	"bubbles.ai/internal/sim/timeline"
	"bubbles.ai/internal/sim/tuning"
	"bubbles.ai/internal/sim/world"
	"bubbles.ai/internal/transport/ws"
)

var ErrStopped = errors.New("node stopped")

type Config struct {
	Tuning tuning.Tuning
	Logger *log.Logger

	// FrameEvery is how often the predicted timeline is advanced and a
	// STATE frame published. Defaults to 50ms.
	FrameEvery          time.Duration
	PredictionTimeoutMs int64

	// Now is the wall clock; tests replace it.
	Now func() time.Time
}

// Owner is the presentation metadata for one address.
type Owner struct {
	Address string `json:"address" msgpack:"address"`
	Short   string `json:"short" msgpack:"short"`
	Color   string `json:"color" msgpack:"color"`
}

// View is the STATE payload: the predicted display snapshot plus owner
// metadata for every address it mentions.
type View struct {
	World  *snapshot.Snapshot `json:"world" msgpack:"world"`
	Owners []Owner            `json:"owners" msgpack:"owners"`
}

// Node runs one timeline controller on a single goroutine. Every other
// goroutine talks to it through channels.
type Node struct {
	cfg  Config
	log  *log.Logger
	ctrl *timeline.Controller

	inbox    chan ws.Submission
	attach   chan *ws.Subscriber
	detach   chan *ws.Subscriber
	confirm  chan protocol.Input
	ledgerTs chan int64
	stateReq chan chan protocol.StateMsg
	done     chan struct{}

	subs map[*ws.Subscriber]struct{}

	// Predicted now is ledgerTime plus the wall time since it was seen.
	ledgerTime int64
	ledgerSeen time.Time
}

// New builds a node whose timelines both start at base. obs receives
// confirmed inputs, checkpoints and rollbacks; it may be nil.
func New(cfg Config, base *snapshot.Snapshot, obs timeline.Observer) (*Node, error) {
	if cfg.FrameEvery <= 0 {
		cfg.FrameEvery = 50 * time.Millisecond
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	ctrl, err := timeline.New(timeline.Config{
		Tuning:              cfg.Tuning,
		Logger:              cfg.Logger,
		Observer:            obs,
		PredictionTimeoutMs: cfg.PredictionTimeoutMs,
	}, base)
	if err != nil {
		return nil, err
	}
	return &Node{
		cfg:        cfg,
		log:        cfg.Logger,
		ctrl:       ctrl,
		inbox:      make(chan ws.Submission, 256),
		attach:     make(chan *ws.Subscriber, 16),
		detach:     make(chan *ws.Subscriber, 16),
		confirm:    make(chan protocol.Input, 1024),
		ledgerTs:   make(chan int64, 64),
		stateReq:   make(chan chan protocol.StateMsg),
		done:       make(chan struct{}),
		subs:       map[*ws.Subscriber]struct{}{},
		ledgerTime: base.Timestamp,
		ledgerSeen: cfg.Now(),
	}, nil
}

func (n *Node) logf(format string, args ...any) {
	if n.log != nil {
		n.log.Printf(format, args...)
	}
}

func (n *Node) Inbox() chan<- ws.Submission   { return n.inbox }
func (n *Node) Attach() chan<- *ws.Subscriber { return n.attach }
func (n *Node) Detach() chan<- *ws.Subscriber { return n.detach }

// ConfirmedInput hands a ledger-confirmed input to the run loop. It blocks
// while the loop is busy so the feed is never silently truncated.
func (n *Node) ConfirmedInput(ctx context.Context, in protocol.Input) error {
	select {
	case n.confirm <- in:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-n.done:
		return ErrStopped
	}
}

// LedgerTime reports that the ledger has finalized everything up to ts.
func (n *Node) LedgerTime(ctx context.Context, ts int64) error {
	select {
	case n.ledgerTs <- ts:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-n.done:
		return ErrStopped
	}
}

// State returns the current STATE frame.
func (n *Node) State(ctx context.Context) (protocol.StateMsg, error) {
	resp := make(chan protocol.StateMsg, 1)
	select {
	case n.stateReq <- resp:
	case <-ctx.Done():
		return protocol.StateMsg{}, ctx.Err()
	case <-n.done:
		return protocol.StateMsg{}, ErrStopped
	}
	select {
	case st := <-resp:
		return st, nil
	case <-ctx.Done():
		return protocol.StateMsg{}, ctx.Err()
	}
}

// Run drives the controller until ctx is done.
func (n *Node) Run(ctx context.Context) error {
	defer close(n.done)
	ticker := time.NewTicker(n.cfg.FrameEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sub := <-n.attach:
			n.subs[sub] = struct{}{}
			subscribersActive.Set(float64(len(n.subs)))
			n.send(sub, n.stateMsg())
		case sub := <-n.detach:
			delete(n.subs, sub)
			subscribersActive.Set(float64(len(n.subs)))
		case s := <-n.inbox:
			n.handleSubmission(s)
		case in := <-n.confirm:
			n.handleConfirmed(in)
		case ts := <-n.ledgerTs:
			n.handleLedgerTime(ts)
		case resp := <-n.stateReq:
			resp <- n.stateMsg()
		case <-ticker.C:
			n.frame()
		}
	}
}

func (n *Node) handleSubmission(s ws.Submission) {
	in := s.Input
	err := n.ctrl.Predict(in)
	code := codeOf(err)
	inputsTotal.WithLabelValues("ws", code).Inc()

	ack := protocol.AckMsg{Type: protocol.TypeAck, ProtocolVersion: protocol.Version, Key: in.Key()}
	if err != nil {
		ack.Type = protocol.TypeError
		ack.Code = code
		ack.Message = err.Error()
	}
	if s.Resp != nil {
		select {
		case s.Resp <- ack:
		default:
		}
	}
}

func (n *Node) handleConfirmed(in protocol.Input) {
	err := n.ctrl.Confirm(in)
	inputsTotal.WithLabelValues("ledger", codeOf(err)).Inc()
	if err != nil {
		n.logf("[node] confirmed %s rejected: %v", in.Key(), err)
	}
}

func (n *Node) handleLedgerTime(ts int64) {
	if ts < n.ledgerTime {
		return
	}
	n.ctrl.Finalize(ts)
	n.ledgerTime = ts
	n.ledgerSeen = n.cfg.Now()
	confirmedClock.Set(float64(n.ctrl.ConfirmedClock()))
}

// now is the predicted timeline's target time.
func (n *Node) now() int64 {
	return n.ledgerTime + n.cfg.Now().Sub(n.ledgerSeen).Milliseconds()
}

func (n *Node) frame() {
	start := time.Now()
	defer func() { frameDuration.Observe(time.Since(start).Seconds()) }()

	if err := n.ctrl.Advance(n.now()); err != nil {
		if errors.Is(err, timeline.ErrReplayGap) {
			n.logf("[node] %v; rebuilt from confirmed", err)
		} else {
			n.logf("[node] advance: %v", err)
		}
	}
	predictedClock.Set(float64(n.ctrl.PredictedClock()))
	pendingPredictions.Set(float64(n.ctrl.PendingPredictions()))

	if len(n.subs) == 0 {
		n.ctrl.Events()
		return
	}
	if evs := n.ctrl.Events(); len(evs) > 0 {
		n.broadcast(protocol.EventsMsg{Type: protocol.TypeEvents, ProtocolVersion: protocol.Version, Events: evs})
	}
	n.broadcast(n.stateMsg())
}

func (n *Node) stateMsg() protocol.StateMsg {
	return protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		Clock:           n.ctrl.PredictedClock(),
		Confirmed:       n.ctrl.ConfirmedClock(),
		State:           buildView(n.ctrl.Display()),
	}
}

func (n *Node) broadcast(v any) {
	for sub := range n.subs {
		n.send(sub, v)
	}
}

// send never blocks the loop; slow subscribers lose frames.
func (n *Node) send(sub *ws.Subscriber, v any) {
	select {
	case sub.Out <- v:
	default:
		framesDropped.Inc()
	}
}

func buildView(s *snapshot.Snapshot) View {
	seen := map[string]bool{}
	add := func(a string) {
		if a != "" {
			seen[a] = true
		}
	}
	for _, u := range s.Users {
		add(u.Address)
	}
	for _, b := range s.Bubbles {
		add(b.Owner)
	}
	for _, p := range s.Portals {
		add(p.Owner)
	}
	for _, r := range s.Resources {
		add(r.Owner)
	}
	addrs := make([]string, 0, len(seen))
	for a := range seen {
		addrs = append(addrs, a)
	}
	sort.Strings(addrs)
	owners := make([]Owner, 0, len(addrs))
	for _, a := range addrs {
		owners = append(owners, Owner{Address: a, Short: protocol.TruncateAddress(a), Color: protocol.AddressColor(a)})
	}
	return View{World: s, Owners: owners}
}

func codeOf(err error) string {
	if err == nil {
		return "OK"
	}
	return world.ErrorCode(err)
}
