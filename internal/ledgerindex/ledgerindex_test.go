package ledgerindex_test

import (
	"path/filepath"
	"testing"

	watermarkchain "github.com/paroma/watermarkchain"
	"github.com/paroma/watermarkchain/internal/ledger"
	"github.com/paroma/watermarkchain/internal/ledgerindex"
	"github.com/paroma/watermarkchain/internal/model"
)

func openTestIndex(t *testing.T) (*ledgerindex.Index, string) {
	t.Helper()
	dir := t.TempDir()
	idx, err := ledgerindex.Open(dir, watermarkchain.MigrationFS)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx, dir
}

func TestRebuildAndLookup(t *testing.T) {
	idx, dir := openTestIndex(t)

	l, err := ledger.Open(filepath.Join(dir, "chain.json"))
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}

	rec := &model.EmbedRecord{
		Filename:      "a.png",
		HashImageOrig: "orig-hash",
		HashImageWat:  "wat-hash",
		Watermark:     []byte{1, 0, 1},
		Stride:        3,
		BitDepth:      8,
		MaskAlgorithm: "hkdf-hmac-ctr-sha256",
		CounterPolicy: "advance-on-carrier-only",
	}
	tx := model.BatchTransaction{Records: map[string]any{rec.HashImageWat: rec}}
	if _, err := l.Append(ledger.InfoEmbedder, tx); err != nil {
		t.Fatalf("Append: %v", err)
	}

	stale, err := idx.Stale(l)
	if err != nil {
		t.Fatalf("Stale: %v", err)
	}
	if !stale {
		t.Fatal("expected a freshly opened index to be stale")
	}

	if err := idx.Rebuild(l); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	stale, err = idx.Stale(l)
	if err != nil {
		t.Fatalf("Stale after rebuild: %v", err)
	}
	if stale {
		t.Fatal("expected index to be fresh immediately after Rebuild")
	}

	blockNumber, found, err := idx.LookupByWatermarkedHash("wat-hash")
	if err != nil {
		t.Fatalf("LookupByWatermarkedHash: %v", err)
	}
	if !found {
		t.Fatal("expected to find the embedded record's hash")
	}
	if blockNumber != 1 {
		t.Fatalf("blockNumber = %d, want 1", blockNumber)
	}

	if _, found, err := idx.LookupByWatermarkedHash("nonexistent"); err != nil {
		t.Fatalf("LookupByWatermarkedHash (miss): %v", err)
	} else if found {
		t.Fatal("expected a miss for an unknown hash")
	}
}
