package ledger_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/paroma/watermarkchain/internal/ledger"
)

func TestOpenFreshLedgerHasGenesisBlock(t *testing.T) {
	dir := t.TempDir()
	l, err := ledger.Open(filepath.Join(dir, "ledger.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	head := l.Head()
	if head.Header.BlockNumber != 0 {
		t.Fatalf("genesis block_number = %d, want 0", head.Header.BlockNumber)
	}
	if head.Header.PreviousHash != ledger.GenesisPreviousHash {
		t.Fatalf("genesis previous_hash = %q, want %q", head.Header.PreviousHash, ledger.GenesisPreviousHash)
	}
}

func TestAppendChainsCorrectly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.json")
	l, err := ledger.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	genesisHash := l.Head().Hash

	n1, err := l.Append(ledger.InfoEmbedder, map[string]any{"transaction_dict": map[string]any{"abc": "def"}})
	if err != nil {
		t.Fatalf("Append 1: %v", err)
	}
	if n1 != 1 {
		t.Fatalf("first append block_number = %d, want 1", n1)
	}

	n2, err := l.Append(ledger.InfoRemover, map[string]any{"transaction_dict": map[string]any{}})
	if err != nil {
		t.Fatalf("Append 2: %v", err)
	}
	if n2 != 2 {
		t.Fatalf("second append block_number = %d, want 2", n2)
	}

	blocks := l.Blocks()
	if len(blocks) != 3 {
		t.Fatalf("chain length = %d, want 3", len(blocks))
	}
	if blocks[1].Header.PreviousHash != genesisHash {
		t.Fatalf("block 1 previous_hash mismatch")
	}
	if blocks[2].Header.PreviousHash != blocks[1].Hash {
		t.Fatalf("block 2 previous_hash mismatch")
	}

	reopened, err := ledger.Open(path)
	if err != nil {
		t.Fatalf("reopen persisted ledger: %v", err)
	}
	if len(reopened.Blocks()) != 3 {
		t.Fatalf("reopened chain length = %d, want 3", len(reopened.Blocks()))
	}
}

func TestChainCorruptionDetected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.json")
	l, err := ledger.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := l.Append(ledger.InfoEmbedder, map[string]any{}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read persisted file: %v", err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal persisted ledger: %v", err)
	}

	var block map[string]any
	if err := json.Unmarshal(doc["1"], &block); err != nil {
		t.Fatalf("unmarshal block 1: %v", err)
	}
	block["hash"] = "0000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000"
	tampered, err := json.Marshal(block)
	if err != nil {
		t.Fatalf("marshal tampered block: %v", err)
	}
	doc["1"] = tampered

	out, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal tampered ledger: %v", err)
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		t.Fatalf("write tampered ledger: %v", err)
	}

	_, err = ledger.Open(path)
	if err == nil {
		t.Fatalf("expected chain corruption error, got nil")
	}
	var corrupted *ledger.ChainCorruptedError
	if !errors.As(err, &corrupted) {
		t.Fatalf("expected *ledger.ChainCorruptedError, got %T: %v", err, err)
	}
	if corrupted.BlockNumber != 1 {
		t.Fatalf("corrupted block number = %d, want 1", corrupted.BlockNumber)
	}
}
