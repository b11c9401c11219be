package ledgerindex

import (
	"encoding/json"

	"github.com/paroma/watermarkchain/internal/ledger"
	"github.com/paroma/watermarkchain/internal/model"
)

// embedRecordsOf extracts the per-image embed records out of an embedder
// block's transaction payload, tolerating both the concrete in-memory
// struct (freshly appended) and the generic map decoded from the JSON
// ledger file.
func embedRecordsOf(b ledger.Block) ([]*model.EmbedRecord, error) {
	raw, err := json.Marshal(b.Transaction)
	if err != nil {
		return nil, err
	}
	var tx model.BatchTransaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, err
	}

	records := make([]*model.EmbedRecord, 0, len(tx.Records))
	for _, v := range tx.Records {
		data, err := json.Marshal(v)
		if err != nil {
			continue
		}
		var rec model.EmbedRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		records = append(records, &rec)
	}
	return records, nil
}
