// Package ledgerindex maintains a SQLite-backed lookup index over the
// authoritative JSON ledger (internal/ledger). The index is strictly
// derived and rebuildable: every row can be regenerated by re-scanning the
// ledger's embedder blocks, so losing or corrupting the SQLite file is
// never a data-loss event, only a "rebuild on next open" event. It uses the
// same WAL/busy_timeout/single-connection setup as any other embedded
// SQLite cache in front of slower authoritative storage.
package ledgerindex

import (
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	_ "modernc.org/sqlite"

	"github.com/paroma/watermarkchain/internal/ledger"
)

// Index wraps a SQLite database holding the derived embed-record lookup
// table. It keeps no handle on the ledger; callers pass one to Rebuild and
// Stale.
type Index struct {
	db *sql.DB
}

// Open creates or opens the SQLite index file under dataDir, applies the
// embedded schema, and returns an Index ready for Rebuild/Lookup.
func Open(dataDir string, migrationFS fs.FS) (*Index, error) {
	indexDir := filepath.Join(dataDir, "index")
	if err := os.MkdirAll(indexDir, 0o755); err != nil {
		return nil, fmt.Errorf("ledgerindex: create directory: %w", err)
	}

	dbPath := filepath.Join(indexDir, "ledgerindex.db")
	database, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("ledgerindex: open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := database.Exec(p); err != nil {
			database.Close()
			return nil, fmt.Errorf("ledgerindex: pragma %q: %w", p, err)
		}
	}
	database.SetMaxOpenConns(1)

	idx := &Index{db: database}
	if err := idx.migrate(migrationFS); err != nil {
		database.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *Index) migrate(migrationFS fs.FS) error {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("ledgerindex: read migrations dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		content, err := fs.ReadFile(migrationFS, "migrations/"+name)
		if err != nil {
			return fmt.Errorf("ledgerindex: read migration %s: %w", name, err)
		}
		if _, err := idx.db.Exec(string(content)); err != nil {
			return fmt.Errorf("ledgerindex: exec migration %s: %w", name, err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// Rebuild truncates the derived tables and repopulates them from scratch
// by scanning every embedder block in l. Called whenever the index might
// be stale — e.g. at startup, or after detecting the ledger's block count
// grew without a matching index update.
func (idx *Index) Rebuild(l *ledger.Ledger) error {
	tx, err := idx.db.Begin()
	if err != nil {
		return fmt.Errorf("ledgerindex: begin rebuild: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM embed_records"); err != nil {
		return fmt.Errorf("ledgerindex: clear embed_records: %w", err)
	}

	const insert = `INSERT INTO embed_records
		(block_number, filename, hash_image_orig, hash_image_wat, watermark,
		 bit_depth, stride, t_hi, mask_algorithm, counter_policy)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	for _, b := range l.Blocks() {
		if b.Info != ledger.InfoEmbedder {
			continue
		}
		records, err := embedRecordsOf(b)
		if err != nil {
			continue // a malformed legacy block shouldn't block the whole rebuild
		}
		for _, rec := range records {
			if _, err := tx.Exec(insert,
				b.Header.BlockNumber, rec.Filename, rec.HashImageOrig, rec.HashImageWat,
				rec.Watermark, rec.BitDepth, rec.Stride, rec.THi, rec.MaskAlgorithm, rec.CounterPolicy,
			); err != nil {
				return fmt.Errorf("ledgerindex: insert record %s: %w", rec.HashImageWat, err)
			}
		}
	}

	if _, err := tx.Exec(
		`INSERT INTO ledger_meta (key, value) VALUES ('block_count', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		len(l.Blocks()),
	); err != nil {
		return fmt.Errorf("ledgerindex: update meta: %w", err)
	}

	return tx.Commit()
}

// Stale reports whether the index's recorded block count disagrees with
// the ledger's current length, which is the only staleness signal needed
// for a derived, rebuild-on-demand index.
func (idx *Index) Stale(l *ledger.Ledger) (bool, error) {
	var stored int
	err := idx.db.QueryRow("SELECT value FROM ledger_meta WHERE key = 'block_count'").Scan(&stored)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("ledgerindex: read block_count: %w", err)
	}
	return stored != len(l.Blocks()), nil
}

// LookupByWatermarkedHash looks up the block number owning a watermarked
// image hash, without needing to scan the JSON ledger. Returns false if
// absent.
func (idx *Index) LookupByWatermarkedHash(hash string) (blockNumber int, found bool, err error) {
	row := idx.db.QueryRow("SELECT block_number FROM embed_records WHERE hash_image_wat = ? LIMIT 1", hash)
	err = row.Scan(&blockNumber)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("ledgerindex: lookup %s: %w", hash, err)
	}
	return blockNumber, true, nil
}
