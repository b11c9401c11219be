package batch

import (
	"fmt"
	"path/filepath"

	"github.com/paroma/watermarkchain/internal/codec"
	"github.com/paroma/watermarkchain/internal/ledger"
	"github.com/paroma/watermarkchain/internal/ledgerindex"
	"github.com/paroma/watermarkchain/internal/model"
	"github.com/paroma/watermarkchain/internal/rasterio"
)

// ForensicRecord pairs an image's filename with its forensic match.
type ForensicRecord struct {
	Filename    string                `json:"filename"`
	Match       *model.ForensicResult `json:"match"`
	Implausible bool                  `json:"implausible"`
}

// RunForensic drives forensic extraction: for every image under
// data_path, run Extract with an empty overflow map (nothing is known
// about which candidates overflowed, since the caller has no ledger
// record to draw one from), then report the ledger record whose
// watermark best matches the extracted bits by BER. Unlike RunRemove,
// this never fails an image for lack of a confident match — a forensic
// analyst wants the best available guess and its BER, not a hard
// rejection, since even a poor match can be useful context.
//
// idx, if present, is kept fresh here the same way RunRemove keeps it
// fresh, but the match itself still goes through the ledger's bit-error
// comparison: the index's schema supports an exact watermarked-hash
// lookup, which has no bearing on a fuzzy best-match-by-BER search over
// every candidate's watermark bits.
func RunForensic(req model.ExtractRequest, l *ledger.Ledger, idx *ledgerindex.Index, workerCount int) (*model.BatchResponse, error) {
	names, err := listFiles(req.DataPath, req.DataType)
	if err != nil {
		return nil, err
	}

	if idx != nil {
		if stale, err := idx.Stale(l); err == nil && stale {
			_ = idx.Rebuild(l)
		}
	}

	results := runParallel(names, workerCount, func(name string) (*ForensicRecord, error) {
		return forensicOne(req, name, l)
	})

	var failed []string
	var perImage []any

	for i, r := range results {
		if r.err != nil {
			failed = append(failed, names[i])
			continue
		}
		perImage = append(perImage, r.value)
	}

	if len(perImage) == 0 {
		return nil, ErrBatchEmpty
	}

	return &model.BatchResponse{
		TotalImages:     len(names),
		ProcessedImages: len(perImage),
		FailedImages:    failed,
		PerImageRecords: perImage,
		BlockNumber:     l.Head().Header.BlockNumber,
	}, nil
}

func forensicOne(req model.ExtractRequest, name string, l *ledger.Ledger) (*ForensicRecord, error) {
	src := rasterio.PNGSource{Path: filepath.Join(req.DataPath, name)}
	marked, err := src.ReadImage()
	if err != nil {
		return nil, err
	}

	kernel := codec.DefaultKernel()
	mask, err := codec.NewMaskStream(req.SecretKey)
	if err != nil {
		return nil, err
	}

	stride := kernel.Side
	extractResult, err := codec.Extract(marked, kernel, stride, mask, 0, nil)
	if err != nil {
		return nil, err
	}

	match, err := l.FindBestMatchByBits(extractResult.ExtractedBits, 0)
	if err != nil {
		return nil, fmt.Errorf("batch: forensic match for %s: %w", name, err)
	}

	return &ForensicRecord{
		Filename:    name,
		Match:       match,
		Implausible: match.BER > model.NoPlausibleMatchThreshold,
	}, nil
}
