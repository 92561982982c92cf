package protocol

// HELLO (client -> node)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// Actor is the address the client signs inputs with.
	Actor string `json:"actor"`
	// Codec selects the encoding of STATE frames: "json" (default) or "msgpack".
	Codec string `json:"codec,omitempty"`
}

// INPUT (client -> node): a locally signed action to be predicted.
type InputMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Input           Input  `json:"input"`
}

// STATE (node -> client): the display snapshot.
type StateMsg struct {
	Type            string `json:"type" msgpack:"type"`
	ProtocolVersion string `json:"protocol_version" msgpack:"protocol_version"`
	Clock           int64  `json:"clock" msgpack:"clock"`
	Confirmed       int64  `json:"confirmed_clock" msgpack:"confirmed_clock"`
	State           any    `json:"state" msgpack:"state"`
}

// EVENTS (node -> client)
type EventsMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Events          []Event `json:"events"`
}

// ACK/ERROR (node -> client) in response to INPUT.
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Key             string `json:"key"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
}

// LEDGER_INPUT (indexer -> node): a confirmed input.
type LedgerInputMsg struct {
	Type  string `json:"type"`
	Input Input  `json:"input"`
}

// LEDGER_BLOCK (indexer -> node): the ledger clock advanced.
type LedgerBlockMsg struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// LEDGER_NOTICE (indexer -> node): a raw contract notice whose payload is
// abi.encodePacked(address, uint256).
type LedgerNoticeMsg struct {
	Type      string    `json:"type"`
	Kind      InputType `json:"kind"`
	Timestamp int64     `json:"timestamp"`
	Nonce     uint64    `json:"nonce,omitempty"`
	Payload   string    `json:"payload"`
}

// NoticeInput decodes a packed notice into a confirmed input.
func NoticeInput(m LedgerNoticeMsg) (Input, error) {
	vals, err := DecodePacked([]string{"address", "uint256"}, m.Payload)
	if err != nil {
		return Input{}, err
	}
	in := Input{
		Type:      m.Kind,
		Timestamp: m.Timestamp,
		Nonce:     m.Nonce,
		Actor:     vals[0].(string),
		Amount:    vals[1].(float64),
	}
	return in, in.Check()
}
