package codec

import "fmt"

// ExtractStats reports what happened during an extract pass.
type ExtractStats struct {
	Recovered      int
	OverflowSkipped int
}

// ExtractResult is the output of Extract: the recovered (or best-effort
// recovered) pixel array, the bits pulled off carriers in candidate order,
// and summary statistics.
type ExtractResult struct {
	Recovered     *Image
	ExtractedBits []byte
	Stats         ExtractStats
}

// Extract reverses histogram shifting, undoing Embed's modification and
// pulling the embedded bits back out.
//
// overflowMap distinguishes two usage modes:
//
//   - Exact removal: overflowMap is the one Embed produced for this image.
//     Overflowed candidates are skipped (their pixels were never touched,
//     so there is nothing to undo), and every other carrier inverts exactly,
//     reproducing the original image bit-for-bit.
//   - Forensic extraction: overflowMap is empty (the caller does not know,
//     or is testing, which image/key produced this data). Every marked
//     candidate is treated as a non-overflowed carrier candidate; positions
//     that were in fact embed-time overflows will recover garbage. This is
//     expected — forensic callers compare ExtractedBits against candidate
//     watermarks by bit-error rate rather than trusting an exact match.
//
// The carrier/no-carrier and counter-advance decisions mirror Embed's
// "advance-on-carrier-only" policy exactly: a marked candidate's error is
// recomputed against the (partially restored) image using the same
// predictor, so carriers are identified the same way on both sides.
func Extract(marked *Image, k *Kernel, stride int, mask *MaskStream, tHi int, overflowMap []int) (*ExtractResult, error) {
	if stride < k.Side {
		return nil, fmt.Errorf("%w: stride %d < kernel side %d", ErrStrideTooSmall, stride, k.Side)
	}
	if err := marked.Validate(); err != nil {
		return nil, err
	}

	candidates := CandidateCenters(marked, k, stride)
	if len(candidates) == 0 {
		return nil, ErrDimensionTooSmall
	}

	overflowSet := make(map[int]struct{}, len(overflowMap))
	for _, idx := range overflowMap {
		overflowSet[idx] = struct{}{}
	}

	recovered := marked.Clone()
	var stats ExtractStats
	var bits []byte

	for idx, c := range candidates {
		m := mask.NextBit()
		if m == 0 {
			continue
		}

		if _, overflowed := overflowSet[idx]; overflowed {
			// Embed left this pixel untouched after clamping; nothing to
			// invert, but it was a carrier so the counter position is
			// still spent, matching Embed's bookkeeping.
			stats.OverflowSkipped++
			continue
		}

		pred, err := Predict(recovered, k, c)
		if err != nil {
			return nil, err
		}
		xPrime := recovered.Pixels[c.Row][c.Col]
		ePrime := xPrime - pred

		if ePrime < tHi {
			// Not a carrier at embed time either: Embed left this pixel
			// unchanged, so e' == e and no bit was ever written here.
			continue
		}

		bit := ePrime & 1
		bits = append(bits, byte(bit))

		ceilHalf := (ePrime + bit) / 2
		recovered.Pixels[c.Row][c.Col] = xPrime - ceilHalf
		stats.Recovered++
	}

	return &ExtractResult{Recovered: recovered, ExtractedBits: bits, Stats: stats}, nil
}
