package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/boddenberg/cashbook-bfa-go/internal/domain"
	"github.com/boddenberg/cashbook-bfa-go/internal/report"
)

// loadBatch reads transactions from path. A .csv file is taken to be one
// of our own CSV exports; anything else is a JSON array of stored records.
func loadBatch(path string, now time.Time, loc *time.Location, logger *zap.Logger) (report.Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return report.Batch{}, fmt.Errorf("read input: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		txs, err := report.ParseCSV(data)
		if err != nil {
			return report.Batch{}, err
		}
		for i := range txs {
			txs[i].ID = fmt.Sprintf("csv-%d", i+1)
		}
		return report.Batch{Transactions: txs}, nil
	}

	raws, err := decodeRecords(data)
	if err != nil {
		return report.Batch{}, err
	}
	return report.NormalizeAll(raws, now, loc, logger), nil
}

// decodeRecords keeps numbers as json.Number so amounts are not rounded
// through float64.
func decodeRecords(data []byte) ([]domain.RawRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var rows []map[string]any
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}

	out := make([]domain.RawRecord, 0, len(rows))
	for i, row := range rows {
		id := fmt.Sprint(i + 1)
		if v, ok := row["id"]; ok && v != nil {
			id = fmt.Sprint(v)
		}
		out = append(out, domain.RawRecord{ID: id, Fields: row})
	}
	return out, nil
}
