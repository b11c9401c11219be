package batch_test

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/paroma/watermarkchain/internal/batch"
	"github.com/paroma/watermarkchain/internal/codec"
	"github.com/paroma/watermarkchain/internal/ledger"
	"github.com/paroma/watermarkchain/internal/model"
	"github.com/paroma/watermarkchain/internal/rasterio"
)

const testSecretKey = "0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20"

func randomTestImage(width, height, bitDepth int, seed int64) *codec.Image {
	rng := rand.New(rand.NewSource(seed))
	img := codec.NewImage(width, height, bitDepth)
	max := img.MaxValue()
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Pixels[y][x] = rng.Intn(max + 1)
		}
	}
	return img
}

func writePNG(t *testing.T, dir, name string, img *codec.Image) {
	t.Helper()
	sink := rasterio.PNGSink{Path: filepath.Join(dir, name)}
	if err := sink.WriteImage(img); err != nil {
		t.Fatalf("WriteImage %s: %v", name, err)
	}
}

// TestRunEmbedBatchAppendsSingleBlock covers a batch of 2 images against an
// empty ledger: the chain has only the genesis block beforehand, so the
// first appended block must be block_number 1, and its transaction_dict
// must hold one entry per successfully embedded image.
func TestRunEmbedBatchAppendsSingleBlock(t *testing.T) {
	dataDir := t.TempDir()
	saveDir := t.TempDir()

	writePNG(t, dataDir, "a.png", randomTestImage(20, 20, 8, 1))
	writePNG(t, dataDir, "b.png", randomTestImage(20, 20, 8, 2))

	l, err := ledger.Open(filepath.Join(t.TempDir(), "chain.json"))
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}

	req := model.EmbedRequest{
		DataPath:  dataDir,
		SavePath:  saveDir,
		Message:   "scenario-4",
		SecretKey: testSecretKey,
		Stride:    3,
		THi:       0,
		BitDepth:  8,
		DataType:  ".png",
	}

	resp, err := batch.RunEmbed(req, l, 2)
	if err != nil {
		t.Fatalf("RunEmbed: %v", err)
	}

	if resp.BlockNumber != 1 {
		t.Fatalf("block_number = %d, want 1", resp.BlockNumber)
	}
	if resp.TotalImages != 2 {
		t.Fatalf("total_images = %d, want 2", resp.TotalImages)
	}
	if resp.ProcessedImages != 2 {
		t.Fatalf("processed_images = %d, want 2 (failed=%v)", resp.ProcessedImages, resp.FailedImages)
	}
	if len(resp.PerImageRecords) != 2 {
		t.Fatalf("per_image_records has %d entries, want 2", len(resp.PerImageRecords))
	}

	head := l.Head()
	if head.Header.BlockNumber != 1 || head.Info != ledger.InfoEmbedder {
		t.Fatalf("unexpected head block: %+v", head.Header)
	}

	for _, name := range []string{"a.png", "b.png"} {
		if _, err := os.Stat(filepath.Join(saveDir, name)); err != nil {
			t.Fatalf("expected marked output for %s: %v", name, err)
		}
	}
}

// TestRunEmbedBatchIsolatesFailures checks that one unreadable file does
// not prevent the rest of the batch from embedding and appending a block.
func TestRunEmbedBatchIsolatesFailures(t *testing.T) {
	dataDir := t.TempDir()
	saveDir := t.TempDir()

	writePNG(t, dataDir, "good.png", randomTestImage(16, 16, 8, 3))
	if err := os.WriteFile(filepath.Join(dataDir, "bad.png"), []byte("not a png"), 0o644); err != nil {
		t.Fatalf("write bad.png: %v", err)
	}

	l, err := ledger.Open(filepath.Join(t.TempDir(), "chain.json"))
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}

	req := model.EmbedRequest{
		DataPath:  dataDir,
		SavePath:  saveDir,
		Message:   "isolation-case",
		SecretKey: testSecretKey,
		Stride:    3,
		THi:       0,
		BitDepth:  8,
		DataType:  ".png",
	}

	resp, err := batch.RunEmbed(req, l, 1)
	if err != nil {
		t.Fatalf("RunEmbed: %v", err)
	}
	if resp.ProcessedImages != 1 {
		t.Fatalf("processed_images = %d, want 1", resp.ProcessedImages)
	}
	if len(resp.FailedImages) != 1 || resp.FailedImages[0] != "bad.png" {
		t.Fatalf("failed_images = %v, want [bad.png]", resp.FailedImages)
	}
}
