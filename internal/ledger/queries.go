package ledger

import (
	"encoding/json"
	"sort"

	"github.com/paroma/watermarkchain/internal/model"
)

// FindByWatermarkedHash scans embedder blocks in chain order and returns
// the first embed record whose watermarked-image hash matches h. Exact
// removal has no way to know which block an image came from except by
// recomputing its hash and looking it up, so this is the authoritative
// fallback when a caller has no faster index to consult.
func (l *Ledger) FindByWatermarkedHash(h string) (*model.EmbedRecord, int, error) {
	for _, b := range l.Blocks() {
		if b.Info != InfoEmbedder {
			continue
		}
		tx, err := decodeBatchTransaction(b.Transaction)
		if err != nil {
			continue
		}
		for _, raw := range tx.Records {
			rec, err := decodeEmbedRecord(raw)
			if err != nil {
				continue
			}
			if rec.HashImageWat == h {
				return rec, b.Header.BlockNumber, nil
			}
		}
	}
	return nil, 0, ErrLedgerNotFound
}

// RecordAtBlock returns the embed record with watermarked-image hash h
// within block blockNumber, without scanning any other block. Callers
// that already know the owning block number — e.g. from an external
// index over hash_image_wat — use this instead of FindByWatermarkedHash
// to skip the full chain scan.
func (l *Ledger) RecordAtBlock(blockNumber int, h string) (*model.EmbedRecord, error) {
	blocks := l.Blocks()
	if blockNumber < 0 || blockNumber >= len(blocks) {
		return nil, ErrLedgerNotFound
	}
	b := blocks[blockNumber]
	if b.Info != InfoEmbedder {
		return nil, ErrLedgerNotFound
	}
	tx, err := decodeBatchTransaction(b.Transaction)
	if err != nil {
		return nil, err
	}
	for _, raw := range tx.Records {
		rec, err := decodeEmbedRecord(raw)
		if err != nil {
			continue
		}
		if rec.HashImageWat == h {
			return rec, nil
		}
	}
	return nil, ErrLedgerNotFound
}

// FindBestMatchByBits compares extracted bits against every embedder
// record's watermark field over the shorter of the two lengths, and
// returns the record with the lowest bit error rate. A forensic caller
// rarely has the embedding parameters the image was produced with, so
// there is no exact key to look up by — fuzzy matching against every
// candidate is the only option. maxRecords caps how many candidate
// records are examined (0 means no cap); it bounds forensic scan cost,
// not correctness.
func (l *Ledger) FindBestMatchByBits(bits []byte, maxRecords int) (*model.ForensicResult, error) {
	var best *model.ForensicResult
	examined := 0

	for _, b := range l.Blocks() {
		if b.Info != InfoEmbedder {
			continue
		}
		tx, err := decodeBatchTransaction(b.Transaction)
		if err != nil {
			continue
		}

		keys := make([]string, 0, len(tx.Records))
		for k := range tx.Records {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			if maxRecords > 0 && examined >= maxRecords {
				break
			}
			rec, err := decodeEmbedRecord(tx.Records[k])
			if err != nil {
				continue
			}
			examined++

			ber := bitErrorRate(bits, rec.Watermark)
			if best == nil || ber < best.BER {
				best = &model.ForensicResult{
					BlockNumber: b.Header.BlockNumber,
					BlockHash:   b.Hash,
					ImageHash:   rec.HashImageWat,
					Filename:    rec.Filename,
					BER:         ber,
					Timestamp:   b.Header.Timestamp,
					Info:        b.Info,
				}
			}
		}
	}

	if best == nil {
		return nil, ErrLedgerNotFound
	}
	return best, nil
}

// bitErrorRate computes the fraction of differing bits over the shorter of
// the two sequences. Two empty sequences compare as a perfect match
// (BER 0).
func bitErrorRate(a, b []byte) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}
	diff := 0
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			diff++
		}
	}
	return float64(diff) / float64(n)
}

// decodeBatchTransaction normalizes a block's Transaction field into a
// model.BatchTransaction regardless of whether it arrived as the concrete
// struct (freshly appended, still in memory) or as the generic
// map[string]any produced by decoding the ledger's JSON file.
func decodeBatchTransaction(tx any) (*model.BatchTransaction, error) {
	raw, err := json.Marshal(tx)
	if err != nil {
		return nil, err
	}
	var out model.BatchTransaction
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// decodeEmbedRecord normalizes one transaction-dict entry into a
// model.EmbedRecord, for the same reason as decodeBatchTransaction.
func decodeEmbedRecord(raw any) (*model.EmbedRecord, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var rec model.EmbedRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
