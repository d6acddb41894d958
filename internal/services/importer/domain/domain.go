// Package domain defines the importer request, result and ports
package domain

import (
	"context"
	"strings"
)

// Request names one completed download to land
type Request struct {
	DownloadID      int64
	WorkUnitID      int64
	SellerAccountID int64
	ReportType      string
	Range           string
	ReportID        string
	Path            string
	// NoData is set when the provider returned zero rows; nothing is read
	NoData bool
}

// Result reports what was written
type Result struct {
	Rows   int
	Sinks  []string
	Errors []string
}

// Row is one decoded report record
type Row = map[string]any

// ASIN finds the product id on a row; empty when the record has none
func ASIN(r Row) string {
	for _, k := range []string{"asin", "ASIN", "childAsin", "parentAsin"} {
		if v, ok := r[k].(string); ok && v != "" {
			return strings.ToUpper(strings.TrimSpace(v))
		}
	}
	return ""
}

// ImportPort is what the harvest orchestrator calls after a download completes
type ImportPort interface {
	Import(ctx context.Context, req Request) (Result, error)
}

// Sink writes rows somewhere queryable
type Sink interface {
	Name() string
	Write(ctx context.Context, req Request, rows []Row) error
}

// Source reads a saved artifact back
type Source interface {
	Load(ctx context.Context, path string) ([]Row, error)
}
