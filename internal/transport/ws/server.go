package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/time/rate"

	"bubbles.ai/internal/protocol"
)

// Submission is one predicted input handed to the runtime. The runtime
// answers on Resp with an ACK or ERROR frame.
type Submission struct {
	Input protocol.Input
	Resp  chan<- protocol.AckMsg
}

// Subscriber receives presentation frames (STATE, EVENTS, ACK) for one
// connection. The runtime must never block on Out.
type Subscriber struct {
	Actor string
	Codec string
	Out   chan any
}

// Runtime is the node side of a presentation socket.
type Runtime interface {
	Inbox() chan<- Submission
	Attach() chan<- *Subscriber
	Detach() chan<- *Subscriber
}

type Options struct {
	// InputsPerSecond and Burst bound each connection's INPUT rate.
	InputsPerSecond float64
	Burst           int
	QueueSize       int
	// CheckOrigin defaults to allowing every origin.
	CheckOrigin func(r *http.Request) bool
}

type Server struct {
	rt    Runtime
	log   *log.Logger
	val   *protocol.Validator
	opts  Options
	upgr  websocket.Upgrader
	ackTO time.Duration
}

func NewServer(rt Runtime, val *protocol.Validator, opts Options, logger *log.Logger) *Server {
	if opts.InputsPerSecond <= 0 {
		opts.InputsPerSecond = 20
	}
	if opts.Burst <= 0 {
		opts.Burst = 40
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 32
	}
	check := opts.CheckOrigin
	if check == nil {
		check = func(r *http.Request) bool { return true }
	}
	return &Server{
		rt:   rt,
		log:  logger,
		val:  val,
		opts: opts,
		upgr: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     check,
		},
		ackTO: 2 * time.Second,
	}
}

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgr.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sub := s.handshake(conn)
		if sub == nil {
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		s.rt.Attach() <- sub
		defer func() { s.rt.Detach() <- sub }()

		// Writer goroutine; the only one writing to conn from here on.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case v, ok := <-sub.Out:
					if !ok {
						return
					}
					if err := writeFrame(conn, sub.Codec, v); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		lim := rate.NewLimiter(rate.Limit(s.opts.InputsPerSecond), s.opts.Burst)
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				return
			}
			ack, ok := s.handleInput(ctx, sub.Actor, msg, lim)
			if !ok {
				continue
			}
			select {
			case sub.Out <- ack:
			case <-ctx.Done():
				return
			}
		}
	}
}

// handleInput validates one client frame and submits it. The returned frame
// answers the client; ok is false for frames that get no answer.
func (s *Server) handleInput(ctx context.Context, actor string, msg []byte, lim *rate.Limiter) (protocol.AckMsg, bool) {
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeInput {
		return protocol.AckMsg{}, false
	}
	if err := s.val.Validate(protocol.SchemaInputMsg, msg); err != nil {
		return errorFrame("", protocol.ErrProtoBadRequest, err.Error()), true
	}
	var im protocol.InputMsg
	if err := json.Unmarshal(msg, &im); err != nil {
		return errorFrame("", protocol.ErrProtoBadRequest, err.Error()), true
	}
	in := im.Input
	if im.ProtocolVersion != protocol.Version {
		return errorFrame(in.Key(), protocol.ErrProtoBadRequest, "bad protocol_version"), true
	}
	norm, err := protocol.NormalizeAddress(in.Actor)
	if err != nil || norm != actor {
		return errorFrame(in.Key(), protocol.ErrNoPermission, "actor does not match HELLO"), true
	}
	in.Actor = norm
	if !lim.Allow() {
		return errorFrame(in.Key(), protocol.ErrRateLimit, "too many inputs"), true
	}

	resp := make(chan protocol.AckMsg, 1)
	select {
	case s.rt.Inbox() <- Submission{Input: in, Resp: resp}:
	case <-ctx.Done():
		return protocol.AckMsg{}, false
	}
	select {
	case a := <-resp:
		return a, true
	case <-time.After(s.ackTO):
		return errorFrame(in.Key(), protocol.ErrInternal, "no answer from runtime"), true
	case <-ctx.Done():
		return protocol.AckMsg{}, false
	}
}

func errorFrame(key, code, msg string) protocol.AckMsg {
	return protocol.AckMsg{Type: protocol.TypeError, ProtocolVersion: protocol.Version, Key: key, Code: code, Message: msg}
}

func (s *Server) handshake(conn *websocket.Conn) *Subscriber {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}
	reject := func(reason string) *Subscriber {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		return reject("expected HELLO")
	}
	if err := s.val.Validate(protocol.SchemaHello, msg); err != nil {
		return reject("bad HELLO")
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return reject("bad HELLO")
	}
	if hello.ProtocolVersion != protocol.Version {
		return reject("bad protocol_version")
	}
	actor, err := protocol.NormalizeAddress(hello.Actor)
	if err != nil {
		return reject("bad actor")
	}
	codec := hello.Codec
	if codec == "" {
		codec = CodecJSON
	}
	s.logf("[ws] hello actor=%s codec=%s", protocol.TruncateAddress(actor), codec)
	return &Subscriber{Actor: actor, Codec: codec, Out: make(chan any, s.opts.QueueSize)}
}

const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

// writeFrame sends STATE frames as binary msgpack when the client asked for
// it; everything else is JSON text.
func writeFrame(conn *websocket.Conn, codec string, v any) error {
	typ := websocket.TextMessage
	var (
		b   []byte
		err error
	)
	if _, isState := v.(protocol.StateMsg); isState && codec == CodecMsgpack {
		typ = websocket.BinaryMessage
		b, err = msgpack.Marshal(v)
	} else {
		b, err = json.Marshal(v)
	}
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(typ, b)
}
