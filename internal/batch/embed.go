package batch

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/paroma/watermarkchain/internal/codec"
	"github.com/paroma/watermarkchain/internal/ledger"
	"github.com/paroma/watermarkchain/internal/model"
	"github.com/paroma/watermarkchain/internal/rasterio"
)

// RunEmbed reads every matching file from a data directory, embeds a
// watermark into each, and writes the marked image out. One image's
// failure is isolated and recorded in FailedImages rather than aborting
// the rest; the batch's ledger block is appended once, after every image
// has been attempted, so a partial batch still produces one consistent
// transaction rather than a block per image.
func RunEmbed(req model.EmbedRequest, l *ledger.Ledger, workerCount int) (*model.BatchResponse, error) {
	secretKey := req.SecretKey
	if secretKey == "" {
		generated, err := generateSecretKey()
		if err != nil {
			return nil, fmt.Errorf("batch: generate secret key: %w", err)
		}
		secretKey = generated
	}

	kernel, err := resolveKernel(req.Kernel)
	if err != nil {
		return nil, err
	}

	names, err := listFiles(req.DataPath, req.DataType)
	if err != nil {
		return nil, err
	}

	results := runParallel(names, workerCount, func(name string) (*model.EmbedRecord, error) {
		return embedOne(req, name, kernel, secretKey)
	})

	records := make(map[string]any)
	var failed []string
	var perImage []any

	for i, r := range results {
		if r.err != nil {
			failed = append(failed, names[i])
			continue
		}
		records[r.value.HashImageWat] = r.value
		perImage = append(perImage, r.value)
	}

	if len(records) == 0 {
		return nil, ErrBatchEmpty
	}

	blockNumber, err := l.Append(ledger.InfoEmbedder, model.BatchTransaction{
		Records:      records,
		FailedImages: failed,
	})
	if err != nil {
		return nil, err
	}

	return &model.BatchResponse{
		TotalImages:     len(names),
		ProcessedImages: len(records),
		FailedImages:    failed,
		PerImageRecords: perImage,
		BlockNumber:     blockNumber,
	}, nil
}

func embedOne(req model.EmbedRequest, name string, kernel *codec.Kernel, secretKey string) (*model.EmbedRecord, error) {
	src := rasterio.PNGSource{Path: filepath.Join(req.DataPath, name)}
	original, err := src.ReadImage()
	if err != nil {
		return nil, err
	}

	bitDepth := req.BitDepth
	if bitDepth == 0 {
		bitDepth = original.BitDepth
	}
	if original.BitDepth != bitDepth {
		return nil, fmt.Errorf("%w: image bit depth %d, want %d", codec.ErrBitDepthMismatch, original.BitDepth, bitDepth)
	}

	hashOrig, err := codec.HashImage(original)
	if err != nil {
		return nil, err
	}

	watermark, mask, err := codec.Derive([]byte(req.Message), secretKey)
	if err != nil {
		return nil, err
	}

	embedResult, err := codec.Embed(original, kernel, req.Stride, watermark, mask, req.THi)
	if err != nil {
		return nil, err
	}

	hashWat, err := codec.HashImage(embedResult.Marked)
	if err != nil {
		return nil, err
	}

	sink := rasterio.PNGSink{Path: filepath.Join(req.SavePath, name)}
	if err := sink.WriteImage(embedResult.Marked); err != nil {
		return nil, err
	}

	return &model.EmbedRecord{
		Filename:           name,
		HashImageOrig:      hashOrig,
		HashImageWat:       hashWat,
		Watermark:          watermark[:],
		OverflowMap:        embedResult.OverflowMap,
		Kernel:             kernel.Coeffs,
		Stride:             req.Stride,
		THi:                req.THi,
		BitDepth:           bitDepth,
		MaskAlgorithm:      codec.MaskAlgorithm,
		CounterPolicy:      codec.CounterPolicyAdvanceOnCarrierOnly,
		EmbeddedBits:       embedResult.Stats.EmbeddedBits,
		SkippedForLowError: embedResult.Stats.SkippedForLowError,
		Overflowed:         embedResult.Stats.Overflowed,
	}, nil
}

func resolveKernel(spec model.KernelSpec) (*codec.Kernel, error) {
	if spec == nil {
		return codec.DefaultKernel(), nil
	}
	return codec.NewKernel(spec)
}

func generateSecretKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
