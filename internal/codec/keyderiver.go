package codec

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// MaskAlgorithm identifies the mask-stream generator below. It is recorded
// in ledger transactions so a future implementer changing the generator
// cannot silently desynchronize existing ledgers against their own decoder.
const MaskAlgorithm = "hkdf-hmac-ctr-sha256"

// CounterPolicyAdvanceOnCarrierOnly names the watermark-bit counter policy
// implemented by Embed/Extract: the counter advances only for marked
// candidates whose error is >= t_hi, never for ones skipped for low error.
// Recorded in ledger transactions for the same reason as MaskAlgorithm.
const CounterPolicyAdvanceOnCarrierOnly = "advance-on-carrier-only"

// WatermarkBits holds the 256-bit watermark derived from (message, secret_key).
type WatermarkBits [256]byte // one bit per element, value 0 or 1

// Bit returns the k-th watermark bit, reused cyclically: the k-th carrier
// (marked candidate with error >= t_hi) carries bit w[k mod 256]. Cycling means the carrier capacity of
// an image need not match the watermark length exactly.
func (w WatermarkBits) Bit(k int) byte {
	return w[k%len(w)]
}

// Derive computes the 256-bit watermark and a fresh MaskStream from a
// message and a hex-encoded 32-byte secret key.
func Derive(message []byte, secretKeyHex string) (WatermarkBits, *MaskStream, error) {
	if len(message) == 0 {
		return WatermarkBits{}, nil, ErrEmptyMessage
	}
	key, err := decodeSecretKey(secretKeyHex)
	if err != nil {
		return WatermarkBits{}, nil, err
	}

	sum := sha256.Sum256(append(append([]byte(nil), message...), key...))
	var w WatermarkBits
	for i, b := range sum {
		for bit := 0; bit < 8; bit++ {
			w[i*8+bit] = (b >> uint(7-bit)) & 1
		}
	}

	mask, err := newMaskStream(key)
	if err != nil {
		return WatermarkBits{}, nil, err
	}
	return w, mask, nil
}

// NewMaskStream rebuilds just the mask stream from a hex-encoded secret
// key, with no message involved. Removal and forensic extraction only need
// the mask stream (to replay which candidates were marked); they do not
// need to recompute watermark bits from a message they may not have.
func NewMaskStream(secretKeyHex string) (*MaskStream, error) {
	key, err := decodeSecretKey(secretKeyHex)
	if err != nil {
		return nil, err
	}
	return newMaskStream(key)
}

// decodeSecretKey hex-decodes a secret key and enforces the 32-byte length
// HKDF-SHA256 expects as an input key of full security strength.
func decodeSecretKey(secretKeyHex string) ([]byte, error) {
	key, err := hex.DecodeString(secretKeyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadKey, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: got %d bytes, want 32", ErrBadKey, len(key))
	}
	return key, nil
}

// MaskStream is the deterministic pseudorandom bit stream m[·] keyed by
// secret_key. It is stateful but operation-local: a single instance is
// never shared across images or goroutines, so each caller should build its
// own from the same key rather than pass one instance around concurrently.
//
// Construction: HKDF-SHA256 expands the secret key into a 32-byte ratchet
// seed. From that seed, successive 256-bit blocks are produced by an
// HMAC-SHA256 forward ratchet in the style of a hash chain: block i is
// HMAC(key_i, "paroma-mask-block"), and key_{i+1} = SHA-256(key_i). Bits
// within a block are consumed MSB-first; when a block is exhausted the
// ratchet advances to the next one. Two MaskStreams built from the same
// key always produce identical bit prefixes, which is what lets Extract
// rebuild the exact same candidate/carrier sequence Embed used.
type MaskStream struct {
	key   [32]byte
	block [32]byte
	pos   int // next bit to emit within block, 0..255
}

func newMaskStream(secretKey []byte) (*MaskStream, error) {
	h := hkdf.New(sha256.New, secretKey, nil, []byte("paroma-mask-stream-v1"))
	var seed [32]byte
	if _, err := io.ReadFull(h, seed[:]); err != nil {
		return nil, fmt.Errorf("codec: hkdf expand: %w", err)
	}
	ms := &MaskStream{key: seed, pos: 256}
	return ms, nil
}

// NextBit draws the next mask bit from the stream.
func (ms *MaskStream) NextBit() int {
	if ms.pos >= 256 {
		ms.advanceBlock()
	}
	byteIdx := ms.pos / 8
	bitIdx := uint(7 - ms.pos%8)
	bit := (ms.block[byteIdx] >> bitIdx) & 1
	ms.pos++
	return int(bit)
}

func (ms *MaskStream) advanceBlock() {
	mac := hmac.New(sha256.New, ms.key[:])
	mac.Write([]byte("paroma-mask-block"))
	copy(ms.block[:], mac.Sum(nil))

	next := sha256.Sum256(ms.key[:])
	ms.key = next
	ms.pos = 0
}
