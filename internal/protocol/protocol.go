package protocol

import (
	"encoding/json"
	"fmt"
)

const Version = "1.0"

// Frame types.
const (
	TypeHello  = "HELLO"
	TypeInput  = "INPUT"
	TypeState  = "STATE"
	TypeEvents = "EVENTS"
	TypeAck    = "ACK"
	TypeError  = "ERROR"

	TypeLedgerInput  = "LEDGER_INPUT"
	TypeLedgerBlock  = "LEDGER_BLOCK"
	TypeLedgerNotice = "LEDGER_NOTICE"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

type InputType string

const (
	InputDeposit          InputType = "DEPOSIT"
	InputWithdraw         InputType = "WITHDRAW"
	InputCreatePortal     InputType = "CREATE_PORTAL"
	InputAddPortalMass    InputType = "ADD_PORTAL_MASS"
	InputRemovePortalMass InputType = "REMOVE_PORTAL_MASS"
	InputEmit             InputType = "EMIT"
	InputEmitResource     InputType = "EMIT_RESOURCE"
	InputPuncture         InputType = "PUNCTURE"
)

var knownInputs = map[InputType]struct{}{
	InputDeposit:          {},
	InputWithdraw:         {},
	InputCreatePortal:     {},
	InputAddPortalMass:    {},
	InputRemovePortalMass: {},
	InputEmit:             {},
	InputEmitResource:     {},
	InputPuncture:         {},
}

type Vec2 struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
}

// Input is one timestamped action. Timestamps are integer milliseconds on the
// ledger clock. The struct stays comparable so equivalence is a plain ==.
type Input struct {
	Type       InputType `json:"type" msgpack:"type"`
	Timestamp  int64     `json:"timestamp" msgpack:"timestamp"`
	Actor      string    `json:"actor" msgpack:"actor"`
	Nonce      uint64    `json:"nonce,omitempty" msgpack:"nonce,omitempty"`
	Prediction bool      `json:"prediction,omitempty" msgpack:"prediction,omitempty"`

	Amount    float64 `json:"amount,omitempty" msgpack:"amount,omitempty"`
	EntityID  string  `json:"entityId,omitempty" msgpack:"entityId,omitempty"`
	Resource  string  `json:"resource,omitempty" msgpack:"resource,omitempty"`
	Direction Vec2    `json:"direction" msgpack:"direction"`
	Point     Vec2    `json:"point" msgpack:"point"`
}

// Key identifies the ledger transaction an input stands for, so a confirmed
// input can be matched with the prediction made for it.
func (in Input) Key() string {
	if in.Nonce != 0 {
		return fmt.Sprintf("%s#%d", in.Actor, in.Nonce)
	}
	return fmt.Sprintf("%s@%d/%s", in.Actor, in.Timestamp, in.Type)
}

// Equivalent reports whether two inputs carry the same action, ignoring the
// prediction flag.
func Equivalent(a, b Input) bool {
	a.Prediction, b.Prediction = false, false
	return a == b
}

// Check performs structural validation. It does not consult world state.
func (in Input) Check() error {
	if _, ok := knownInputs[in.Type]; !ok {
		return fmt.Errorf("unknown input type %q", in.Type)
	}
	if in.Actor == "" {
		return fmt.Errorf("%s: missing actor", in.Type)
	}
	if in.Timestamp < 0 {
		return fmt.Errorf("%s: negative timestamp", in.Type)
	}
	switch in.Type {
	case InputDeposit, InputWithdraw, InputCreatePortal, InputAddPortalMass, InputRemovePortalMass:
		if !(in.Amount > 0) {
			return fmt.Errorf("%s: amount must be > 0", in.Type)
		}
	case InputEmit:
		if in.EntityID == "" || !(in.Amount > 0) {
			return fmt.Errorf("%s: need entityId and amount > 0", in.Type)
		}
	case InputEmitResource, InputPuncture:
		if in.EntityID == "" || in.Resource == "" || !(in.Amount > 0) {
			return fmt.Errorf("%s: need entityId, resource and amount > 0", in.Type)
		}
	}
	return nil
}

type EventType string

const (
	EventCreateBubble    EventType = "CreateBubble"
	EventDestroyBubble   EventType = "DestroyBubble"
	EventCreateResource  EventType = "CreateResource"
	EventDestroyResource EventType = "DestroyResource"
	EventCreatePortal    EventType = "CreatePortal"
	EventInputRejected   EventType = "InputRejected"
)

// Event is a presentation notice about an entity lifecycle change.
type Event struct {
	Type      EventType `json:"type" msgpack:"type"`
	ID        string    `json:"id" msgpack:"id"`
	Position  Vec2      `json:"position" msgpack:"position"`
	Timestamp int64     `json:"timestamp" msgpack:"timestamp"`
	Code      string    `json:"code,omitempty" msgpack:"code,omitempty"`
	Actor     string    `json:"actor,omitempty" msgpack:"actor,omitempty"`
}
