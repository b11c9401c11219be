package batch_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paroma/watermarkchain/internal/batch"
	"github.com/paroma/watermarkchain/internal/ledger"
	"github.com/paroma/watermarkchain/internal/model"
)

// TestRunForensicBatchFindsBestMatch embeds one image, then runs a blind
// forensic extraction against the marked output with no overflow map, and
// checks the ledger record it matches by bit error rate is the one that
// was actually embedded, with a low enough BER to be considered plausible.
func TestRunForensicBatchFindsBestMatch(t *testing.T) {
	root := t.TempDir()
	dataDir := filepath.Join(root, "data")
	markedDir := filepath.Join(root, "marked")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dataDir, err)
	}
	if err := os.MkdirAll(markedDir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", markedDir, err)
	}

	writePNG(t, dataDir, "subject.png", randomTestImage(32, 32, 8, 11))

	l, err := ledger.Open(filepath.Join(root, "chain.json"))
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}

	embedReq := model.EmbedRequest{
		DataPath:  dataDir,
		SavePath:  markedDir,
		Message:   "forensic-case",
		SecretKey: testSecretKey,
		// A blind forensic extraction has no recorded stride to read back,
		// so it assumes one equal to the default kernel's side length;
		// matching that here keeps the recovered bitstream aligned with
		// what was actually embedded.
		Stride:   3,
		THi:      0,
		BitDepth: 8,
		DataType: ".png",
	}
	if _, err := batch.RunEmbed(embedReq, l, 1); err != nil {
		t.Fatalf("RunEmbed: %v", err)
	}

	extractReq := model.ExtractRequest{
		DataPath:  markedDir,
		DataType:  ".png",
		SecretKey: testSecretKey,
	}

	resp, err := batch.RunForensic(extractReq, l, nil, 1)
	if err != nil {
		t.Fatalf("RunForensic: %v", err)
	}
	if resp.ProcessedImages != 1 {
		t.Fatalf("processed_images = %d, want 1", resp.ProcessedImages)
	}
	if len(resp.PerImageRecords) != 1 {
		t.Fatalf("per_image_records has %d entries, want 1", len(resp.PerImageRecords))
	}

	rec, ok := resp.PerImageRecords[0].(*batch.ForensicRecord)
	if !ok {
		t.Fatalf("per_image_records[0] has type %T, want *batch.ForensicRecord", resp.PerImageRecords[0])
	}
	if rec.Match == nil {
		t.Fatalf("expected a non-nil forensic match")
	}
	if rec.Match.Filename != "subject.png" {
		t.Fatalf("matched filename = %q, want %q", rec.Match.Filename, "subject.png")
	}
	if rec.Implausible {
		t.Fatalf("expected a plausible match (BER %.4f), got implausible", rec.Match.BER)
	}
}
