// Package batch drives directory-wide embed/remove/extract runs: it
// iterates a data directory, isolates per-image failures so one bad file
// doesn't abort the rest, and appends a single ledger block per batch
// rather than one per image.
package batch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrBatchEmpty is returned when every image in a batch failed and no
// ledger block was appended — an empty transaction has nothing to record
// and no previous_hash it would meaningfully extend.
var ErrBatchEmpty = errors.New("batch: all images failed")

// listFiles returns the entries of dir whose extension matches dataType,
// sorted by filename so reruns over the same directory process images in
// the same order and produce the same transaction_dict ordering.
func listFiles(dir, dataType string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("batch: read directory %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), dataType) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
