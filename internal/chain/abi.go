package chain

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"golang.org/x/crypto/sha3"

	kycgate "github.com/eugener/kycgate/internal"
)

// Contract view functions called by the client.
const (
	sigTrustScore = "getTrustScore(address)"
	sigKYCStatus  = "getKYCStatus(address)"
)

var (
	selTrustScore = selector(sigTrustScore)
	selKYCStatus  = selector(sigKYCStatus)
)

// selector returns the 4-byte function selector: keccak256(sig)[:4].
func selector(sig string) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(sig))
	return h.Sum(nil)[:4]
}

// encodeAddressCall ABI-encodes a call with a single address argument.
func encodeAddressCall(sel []byte, addr kycgate.Address) string {
	buf := make([]byte, 4+32)
	copy(buf, sel)
	copy(buf[4+12:], addr.Bytes())
	return "0x" + hex.EncodeToString(buf)
}

// decodeWord parses the first 32-byte word of an eth_call result.
func decodeWord(result string) (*big.Int, error) {
	raw := strings.TrimPrefix(result, "0x")
	if len(raw) < 64 {
		return nil, fmt.Errorf("chain: short return data (%d hex chars): %w", len(raw), kycgate.ErrUpstream)
	}
	n, ok := new(big.Int).SetString(raw[:64], 16)
	if !ok {
		return nil, fmt.Errorf("chain: return data is not hex: %w", kycgate.ErrUpstream)
	}
	return n, nil
}

// decodeUint64 parses an ABI uint word that must fit in 64 bits.
func decodeUint64(result string) (uint64, error) {
	n, err := decodeWord(result)
	if err != nil {
		return 0, err
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("chain: value %s overflows uint64: %w", n, kycgate.ErrUpstream)
	}
	return n.Uint64(), nil
}

// parseQuantity parses a JSON-RPC hex quantity such as "0x1b4".
func parseQuantity(s string) (uint64, error) {
	if !strings.HasPrefix(s, "0x") || len(s) < 3 {
		return 0, fmt.Errorf("chain: bad quantity %q: %w", s, kycgate.ErrUpstream)
	}
	n, err := strconv.ParseUint(s[2:], 16, 64)
	if err != nil {
		return 0, fmt.Errorf("chain: bad quantity %q: %w: %w", s, kycgate.ErrUpstream, err)
	}
	return n, nil
}
