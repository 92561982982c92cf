package protocol

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

var weiPerEther = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

// DecodePacked splits a tightly packed (abi.encodePacked) hex payload.
// Supported types: bool (1 byte), address (20 bytes, returned checksummed) and
// uint256 (32 bytes, returned as an ether amount in float64).
func DecodePacked(types []string, payload string) ([]any, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(payload, "0x"))
	if err != nil {
		return nil, fmt.Errorf("packed payload: %w", err)
	}
	out := make([]any, 0, len(types))
	off := 0
	take := func(n int) ([]byte, error) {
		if off+n > len(raw) {
			return nil, fmt.Errorf("packed payload: short read at %d (+%d of %d)", off, n, len(raw))
		}
		b := raw[off : off+n]
		off += n
		return b, nil
	}
	for _, typ := range types {
		switch typ {
		case "bool":
			b, err := take(1)
			if err != nil {
				return nil, err
			}
			out = append(out, b[0] != 0)
		case "address":
			b, err := take(20)
			if err != nil {
				return nil, err
			}
			out = append(out, checksum(hex.EncodeToString(b)))
		case "uint256":
			b, err := take(32)
			if err != nil {
				return nil, err
			}
			wei := new(big.Float).SetInt(new(big.Int).SetBytes(b))
			eth, _ := new(big.Float).Quo(wei, weiPerEther).Float64()
			out = append(out, eth)
		default:
			return nil, fmt.Errorf("packed payload: unsupported type %q", typ)
		}
	}
	if off != len(raw) {
		return nil, fmt.Errorf("packed payload: %d trailing bytes", len(raw)-off)
	}
	return out, nil
}
