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

// RunRemove drives an exact-removal batch: each marked image's hash is
// looked up to recover its codec parameters and overflow map, then
// Extract inverts it back to the original, bit-exactly. idx may be nil;
// when present and not stale it resolves the owning block in one indexed
// lookup instead of a full chain scan, falling back to the ledger's own
// scan on a miss or a stale index.
func RunRemove(req model.RemoveRequest, l *ledger.Ledger, idx *ledgerindex.Index, workerCount int) (*model.BatchResponse, error) {
	names, err := listFiles(req.DataPath, req.DataType)
	if err != nil {
		return nil, err
	}

	if idx != nil {
		if stale, err := idx.Stale(l); err == nil && stale {
			_ = idx.Rebuild(l)
		}
	}

	results := runParallel(names, workerCount, func(name string) (*model.RemovalRecord, error) {
		return removeOne(req, name, l, idx)
	})

	records := make(map[string]any)
	var failed []string
	var perImage []any

	for i, r := range results {
		if r.err != nil {
			failed = append(failed, names[i])
			continue
		}
		records[r.value.WatermarkedImageHash] = r.value
		perImage = append(perImage, r.value)
	}

	if len(records) == 0 {
		return nil, ErrBatchEmpty
	}

	blockNumber, err := l.Append(ledger.InfoRemover, model.BatchTransaction{
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

func removeOne(req model.RemoveRequest, name string, l *ledger.Ledger, idx *ledgerindex.Index) (*model.RemovalRecord, error) {
	src := rasterio.PNGSource{Path: filepath.Join(req.DataPath, name)}
	marked, err := src.ReadImage()
	if err != nil {
		return nil, err
	}

	hashWat, err := codec.HashImage(marked)
	if err != nil {
		return nil, err
	}

	embedRec, blockNumber, err := lookupEmbedRecord(l, idx, hashWat)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ledger.ErrLedgerNotFound, hashWat)
	}

	kernel, err := codec.NewKernel(embedRec.Kernel)
	if err != nil {
		return nil, err
	}

	mask, err := codec.NewMaskStream(req.SecretKey)
	if err != nil {
		return nil, err
	}

	extractResult, err := codec.Extract(marked, kernel, embedRec.Stride, mask, embedRec.THi, embedRec.OverflowMap)
	if err != nil {
		return nil, err
	}

	hashRecovered, err := codec.HashImage(extractResult.Recovered)
	if err != nil {
		return nil, err
	}
	if hashRecovered != embedRec.HashImageOrig {
		return nil, fmt.Errorf("batch: recovered image hash %s does not match recorded original %s", hashRecovered, embedRec.HashImageOrig)
	}

	sink := rasterio.PNGSink{Path: filepath.Join(req.SavePath, name)}
	if err := sink.WriteImage(extractResult.Recovered); err != nil {
		return nil, err
	}

	return &model.RemovalRecord{
		Filename:             name,
		WatermarkedImageHash: hashWat,
		RecoveredImageHash:   hashRecovered,
		MatchedBlockNumber:   blockNumber,
	}, nil
}

// lookupEmbedRecord resolves the embed record for a watermarked-image
// hash, preferring the SQLite index's single-row lookup over the
// ledger's own linear scan when the index is available and has the hash.
func lookupEmbedRecord(l *ledger.Ledger, idx *ledgerindex.Index, hashWat string) (*model.EmbedRecord, int, error) {
	if idx != nil {
		if blockNumber, found, err := idx.LookupByWatermarkedHash(hashWat); err == nil && found {
			if rec, err := l.RecordAtBlock(blockNumber, hashWat); err == nil {
				return rec, blockNumber, nil
			}
		}
	}
	return l.FindByWatermarkedHash(hashWat)
}
