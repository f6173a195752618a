// Package ingestion loads startup lists into the store.
package ingestion

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/startup-matcher/internal/db"
	"github.com/jonathan/startup-matcher/internal/types"
)

// DataSourceYC marks records imported from a YC company export.
const DataSourceYC = "yc_csv"

// ErrMissingColumn is returned when the header lacks a required column.
var ErrMissingColumn = errors.New("missing required column")

// Inserter creates startup records.
type Inserter interface {
	InsertStartup(ctx context.Context, s *types.StartupRecord) error
}

// Row is one company line of a YC export.
type Row struct {
	Name        string `validate:"required"`
	Batch       string
	Link        string
	Description string
	Website     string
	Industry    string
	Location    string
}

// Record converts the row into a pending startup.
func (r *Row) Record() *types.StartupRecord {
	return &types.StartupRecord{
		Name:             strings.TrimSpace(r.Name),
		Industry:         CleanText(r.Industry),
		Description:      CleanText(r.Description),
		Location:         CleanText(r.Location),
		Website:          types.NormalizeDomain(r.Website),
		YCBatch:          strings.TrimSpace(r.Batch),
		CompanySlug:      CompanySlug(r.Link),
		SourceURL:        strings.TrimSpace(r.Link),
		DataSource:       DataSourceYC,
		NeedsEnrichment:  true,
		EnrichmentStatus: types.EnrichmentPending,
		QualityStatus:    types.QualityFailed,
	}
}

// ImportResult summarizes one import.
type ImportResult struct {
	Imported []string `json:"imported"`
	// Skipped names already exist in the store.
	Skipped []string `json:"skipped,omitempty"`
	// Invalid counts rows that could not be read.
	Invalid int `json:"invalid,omitempty"`
}

// Importer reads YC CSV exports.
type Importer struct {
	store    Inserter
	validate *validator.Validate
	logger   *slog.Logger
}

// NewImporter creates an Importer writing to store.
func NewImporter(store Inserter, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default().With("component", "ingestion")
	}
	return &Importer{store: store, validate: validator.New(), logger: logger}
}

var columns = map[string]func(*Row, string){
	"company_name":        func(r *Row, v string) { r.Name = v },
	"batch":               func(r *Row, v string) { r.Batch = v },
	"yc_link":             func(r *Row, v string) { r.Link = v },
	"company_description": func(r *Row, v string) { r.Description = v },
	"website":             func(r *Row, v string) { r.Website = v },
	"industry":            func(r *Row, v string) { r.Industry = v },
	"location":            func(r *Row, v string) { r.Location = v },
}

// ReadRows parses a CSV export. Header names are matched case-insensitively
// and unknown columns are ignored.
func ReadRows(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	setters := make([]func(*Row, string), len(header))
	hasName := false
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		setters[i] = columns[key]
		hasName = hasName || key == "company_name"
	}
	if !hasName {
		return nil, fmt.Errorf("%w: Company_Name", ErrMissingColumn)
	}

	var rows []Row
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rows, fmt.Errorf("failed to read row %d: %w", len(rows)+2, err)
		}
		var row Row
		for i, v := range fields {
			if i < len(setters) && setters[i] != nil {
				setters[i](&row, v)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Import reads a CSV export and inserts every new company. Names already in
// the store are skipped.
func (im *Importer) Import(ctx context.Context, r io.Reader) (*ImportResult, error) {
	rows, err := ReadRows(r)
	if err != nil {
		return nil, err
	}

	res := &ImportResult{}
	seen := make(map[string]bool)
	for i := range rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		row := &rows[i]
		row.Name = strings.TrimSpace(row.Name)
		if err := im.validate.Struct(row); err != nil {
			im.logger.Warn("skipping invalid row", "row", i+2, "error", err)
			res.Invalid++
			continue
		}
		if seen[row.Name] {
			res.Skipped = append(res.Skipped, row.Name)
			continue
		}
		seen[row.Name] = true

		err := im.store.InsertStartup(ctx, row.Record())
		if errors.Is(err, db.ErrAlreadyExists) {
			res.Skipped = append(res.Skipped, row.Name)
			continue
		}
		if err != nil {
			return res, err
		}
		res.Imported = append(res.Imported, row.Name)
	}

	im.logger.Info("import finished", "imported", len(res.Imported), "skipped", len(res.Skipped), "invalid", res.Invalid)
	return res, nil
}
