package main

import (
	"encoding/json"
	"flag"
	"log"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"bubbles.ai/internal/node"
	"bubbles.ai/internal/protocol"
)

// stateFrame is a STATE message with the payload left typed.
type stateFrame struct {
	Type      string    `json:"type"`
	Clock     int64     `json:"clock"`
	Confirmed int64     `json:"confirmed_clock"`
	State     node.View `json:"state"`
}

func main() {
	var (
		url    = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		actor  = flag.String("actor", "", "address the bot acts as (required)")
		every  = flag.Duration("every", 2*time.Second, "interval between emissions")
		amount = flag.Float64("amount", 0.5, "mass per emission")
		leadMs = flag.Int64("lead_ms", 100, "how far ahead of the predicted clock inputs are stamped")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	addr, err := protocol.NormalizeAddress(*actor)
	if err != nil {
		logger.Fatalf("bad -actor: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, Actor: addr, Codec: "json"}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var (
		nonce    uint64
		lastEmit time.Time
	)
	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Printf("read: %v", err)
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeAck, protocol.TypeError:
			var a protocol.AckMsg
			if err := json.Unmarshal(msg, &a); err == nil {
				logger.Printf("%s key=%s code=%s %s", a.Type, a.Key, a.Code, a.Message)
			}
		case protocol.TypeState:
			if time.Since(lastEmit) < *every {
				continue
			}
			var st stateFrame
			if err := json.Unmarshal(msg, &st); err != nil || st.State.World == nil {
				continue
			}
			id, ok := largestBubble(st.State, addr)
			if !ok {
				continue
			}
			nonce++
			angle := rng.Float64() * 2 * math.Pi
			in := protocol.InputMsg{
				Type:            protocol.TypeInput,
				ProtocolVersion: protocol.Version,
				Input: protocol.Input{
					Type:      protocol.InputEmit,
					Timestamp: st.Clock + *leadMs,
					Actor:     addr,
					Nonce:     nonce,
					EntityID:  id,
					Amount:    *amount,
					Direction: protocol.Vec2{X: math.Cos(angle), Y: math.Sin(angle)},
				},
			}
			if err := conn.WriteJSON(in); err != nil {
				logger.Printf("send INPUT: %v", err)
				return
			}
			lastEmit = time.Now()
		}
	}
}

func largestBubble(v node.View, owner string) (string, bool) {
	var (
		best string
		mass float64
	)
	for _, b := range v.World.Bubbles {
		if b.Owner == owner && b.Mass > mass {
			best, mass = b.ID, b.Mass
		}
	}
	return best, best != ""
}
