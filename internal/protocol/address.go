package protocol

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/sha3"
)

// NormalizeAddress returns the EIP-55 checksummed form of a 20-byte hex
// address. Actors are compared in this form everywhere in the simulation.
func NormalizeAddress(addr string) (string, error) {
	s := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(addr), "0x"), "0X")
	if len(s) != 40 {
		return "", fmt.Errorf("address %q: want 40 hex digits", addr)
	}
	lower := strings.ToLower(s)
	if _, err := hex.DecodeString(lower); err != nil {
		return "", fmt.Errorf("address %q: %w", addr, err)
	}
	return checksum(lower), nil
}

func checksum(lowerHex string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lowerHex))
	sum := h.Sum(nil)

	out := make([]byte, 0, 42)
	out = append(out, '0', 'x')
	for i := 0; i < len(lowerHex); i++ {
		c := lowerHex[i]
		nibble := sum[i/2]
		if i%2 == 0 {
			nibble >>= 4
		} else {
			nibble &= 0x0f
		}
		if c >= 'a' && c <= 'f' && nibble >= 8 {
			c -= 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

// AddressColor derives a display color from the digit sum of an address.
// Malformed addresses get a neutral grey.
func AddressColor(addr string) string {
	if len(addr) != 42 || !strings.HasPrefix(addr, "0x") {
		return "#888888"
	}
	sum := 0
	for _, c := range addr[2:] {
		v, err := strconv.ParseUint(string(c), 16, 8)
		if err != nil {
			return "#888888"
		}
		sum += int(v)
	}
	return fmt.Sprintf("#%06x", sum%0xFFFFFF)
}

// TruncateAddress shortens an address for display: 0x1234...abcd.
func TruncateAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
