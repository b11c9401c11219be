package codec

import "fmt"

// EmbedStats reports what happened during an embed pass.
type EmbedStats struct {
	EmbeddedBits       int
	SkippedForLowError int
	Overflowed         int
}

// EmbedResult is the output of Embed: the modified pixel array, the ordered
// overflow map, and summary statistics.
type EmbedResult struct {
	Marked      *Image
	OverflowMap []int
	Stats       EmbedStats
}

// Embed shifts the prediction-error histogram to encode watermark bits into
// marked candidates, recording overflow positions.
//
// Watermark-bit counter policy, pinned here as "advance-on-carrier-only":
// the counter advances only for marked candidates whose prediction error is
// >= t_hi — i.e. only for carriers, including ones that are later
// discovered to overflow. Candidates below t_hi never consume a watermark
// bit, since they carry no payload and a decoder has no way to tell a
// skipped-for-low-error candidate apart from one that was never a candidate
// at all; advancing the counter for both would desynchronize the bit
// stream from what Extract replays. Extract must and does apply the same
// rule (see extractor.go) so embed and extract stay in lockstep.
func Embed(img *Image, k *Kernel, stride int, watermark WatermarkBits, mask *MaskStream, tHi int) (*EmbedResult, error) {
	if stride < k.Side {
		return nil, fmt.Errorf("%w: stride %d < kernel side %d", ErrStrideTooSmall, stride, k.Side)
	}
	if err := img.Validate(); err != nil {
		return nil, err
	}

	candidates := CandidateCenters(img, k, stride)
	if len(candidates) == 0 {
		return nil, ErrDimensionTooSmall
	}

	marked := img.Clone()
	maxValue := marked.MaxValue()

	var overflow []int
	var stats EmbedStats
	bitCounter := 0

	for idx, c := range candidates {
		m := mask.NextBit()
		if m == 0 {
			continue
		}

		pred, err := Predict(marked, k, c)
		if err != nil {
			return nil, err
		}
		x := marked.Pixels[c.Row][c.Col]
		e := x - pred

		if e < tHi {
			stats.SkippedForLowError++
			continue
		}

		bit := int(watermark.Bit(bitCounter))
		bitCounter++

		newErr := 2*e + bit
		newVal := pred + newErr

		if newVal > maxValue {
			overflow = append(overflow, idx)
			stats.Overflowed++
			continue
		}

		marked.Pixels[c.Row][c.Col] = newVal
		stats.EmbeddedBits++
	}

	return &EmbedResult{Marked: marked, OverflowMap: overflow, Stats: stats}, nil
}
