package protocol_test

import (
	"testing"

	"bubbles.ai/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	v, err := protocol.NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}

	validate := func(schema, raw string) {
		t.Helper()
		if err := v.Validate(schema, []byte(raw)); err != nil {
			t.Fatalf("validate %s: %v", schema, err)
		}
	}
	reject := func(schema, raw string) {
		t.Helper()
		if err := v.Validate(schema, []byte(raw)); err == nil {
			t.Fatalf("expected %s to reject %s", schema, raw)
		}
	}

	validate(protocol.SchemaHello, `{
	  "type":"HELLO",
	  "protocol_version":"1.0",
	  "actor":"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
	  "codec":"msgpack"
	}`)

	validate(protocol.SchemaInputMsg, `{
	  "type":"INPUT",
	  "protocol_version":"1.0",
	  "input":{
	    "type":"EMIT",
	    "timestamp":1000,
	    "actor":"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
	    "nonce":3,
	    "prediction":true,
	    "entityId":"B1",
	    "amount":4,
	    "direction":{"x":1,"y":0},
	    "point":{"x":0,"y":0}
	  }
	}`)
	reject(protocol.SchemaInput, `{"type":"EMIT","timestamp":1,"actor":"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed","amount":4}`)
	reject(protocol.SchemaInput, `{"type":"TELEPORT","timestamp":1,"actor":"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"}`)

	validate(protocol.SchemaLedgerFrame, `{"type":"LEDGER_BLOCK","timestamp":4000}`)
	validate(protocol.SchemaLedgerFrame, `{
	  "type":"LEDGER_NOTICE",
	  "kind":"DEPOSIT",
	  "timestamp":4000,
	  "payload":"0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed0000000000000000000000000000000000000000000000000de0b6b3a7640000"
	}`)
	reject(protocol.SchemaLedgerFrame, `{"type":"LEDGER_NOTICE","kind":"DEPOSIT","timestamp":1,"payload":"0x00"}`)

	validate(protocol.SchemaEvent, `{"type":"CreateBubble","id":"B2","position":{"x":1,"y":2},"timestamp":1000}`)
	validate(protocol.SchemaEvent, `{"type":"InputRejected","id":"B9","position":{"x":0,"y":0},"timestamp":1000,"code":"E_INVALID_EMISSION"}`)
}

func TestValidateValue_Input(t *testing.T) {
	v, err := protocol.NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	in := protocol.Input{
		Type:      protocol.InputPuncture,
		Timestamp: 20,
		Actor:     "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		EntityID:  "B1",
		Resource:  "energy",
		Amount:    1.5,
		Point:     protocol.Vec2{X: 1},
	}
	if err := v.ValidateValue(protocol.SchemaInput, in); err != nil {
		t.Fatalf("validate: %v", err)
	}
}
