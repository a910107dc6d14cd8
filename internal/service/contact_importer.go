package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"campaign-mailer-go/internal/apperrors"
	"campaign-mailer-go/internal/metrics"
	"campaign-mailer-go/internal/repository"
)

// ImportRowError describes one rejected row. Row is 1-based and counts the header.
type ImportRowError struct {
	Row   int    `json:"row"`
	Email string `json:"email,omitempty"`
	Error string `json:"error"`
}

// ImportResult summarizes a contact import
type ImportResult struct {
	Total    int              `json:"total"`
	Imported int              `json:"imported"`
	Skipped  int              `json:"skipped"`
	Errors   []ImportRowError `json:"errors"`
}

// ContactImporter loads contacts from CSV or XLSX files and exports them back
// to XLSX
type ContactImporter struct {
	contacts *ContactService
	repo     *repository.ContactRepository
	metrics  *metrics.Metrics
}

func NewContactImporter(contacts *ContactService, repo *repository.ContactRepository, m *metrics.Metrics) *ContactImporter {
	return &ContactImporter{contacts: contacts, repo: repo, metrics: m}
}

var contactColumns = []string{"email", "first_name", "last_name", "company", "tags"}

// Import reads a header row followed by one contact per row. Emails that
// already exist are skipped; invalid rows are reported and do not stop the import.
func (i *ContactImporter) Import(ctx context.Context, filename string, r io.Reader) (*ImportResult, error) {
	rows, err := readRows(filename, r)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperrors.Validation("file is empty")
	}

	columns, err := mapHeader(rows[0])
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Errors: []ImportRowError{}}
	for n, row := range rows[1:] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if blankRow(row) {
			continue
		}
		result.Total++
		rowNum := n + 2

		in := ContactInput{
			Email:     cell(row, columns, "email"),
			FirstName: cell(row, columns, "first_name"),
			LastName:  strPtr(cell(row, columns, "last_name")),
			Company:   strPtr(cell(row, columns, "company")),
			Tags:      strings.Split(cell(row, columns, "tags"), ";"),
		}

		taken, err := i.repo.EmailTaken(ctx, normalizeEmail(in.Email), 0)
		if err != nil {
			return nil, err
		}
		if taken {
			result.Skipped++
			continue
		}

		if _, err := i.contacts.Create(ctx, in); err != nil {
			if apperrors.IsValidation(err) || apperrors.IsConflict(err) {
				result.Errors = append(result.Errors, ImportRowError{Row: rowNum, Email: in.Email, Error: err.Error()})
				continue
			}
			return nil, err
		}
		result.Imported++
	}

	if i.metrics != nil {
		i.metrics.ContactsImported.Add(float64(result.Imported))
	}
	logrus.WithFields(logrus.Fields{
		"file":     filename,
		"total":    result.Total,
		"imported": result.Imported,
		"skipped":  result.Skipped,
		"errors":   len(result.Errors),
	}).Info("Contact import finished")

	return result, nil
}

// ExportXLSX writes the contacts matching f to w as a workbook
func (i *ContactImporter) ExportXLSX(ctx context.Context, f repository.ContactFilter, w io.Writer) error {
	book := excelize.NewFile()
	defer book.Close()

	sheet := "Contacts"
	if err := book.SetSheetName(book.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}

	header := make([]interface{}, 0, len(contactColumns)+1)
	for _, col := range contactColumns {
		header = append(header, col)
	}
	header = append(header, "created_at")
	if err := book.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	headerStyle, err := book.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"DDEBF7"}, Pattern: 1},
	})
	if err == nil {
		last, _ := excelize.CoordinatesToCellName(len(header), 1)
		book.SetCellStyle(sheet, "A1", last, headerStyle)
	}
	book.SetColWidth(sheet, "A", "A", 32)
	book.SetColWidth(sheet, "B", "E", 20)

	row := 2
	f.Page = repository.Page{Page: 1, PageSize: repository.MaxPageSize}
	for {
		contacts, _, err := i.repo.List(ctx, f)
		if err != nil {
			return err
		}
		for _, c := range contacts {
			values := []interface{}{
				c.Email, c.FirstName, deref(c.LastName), deref(c.Company),
				strings.Join(c.Tags, ";"), c.CreatedAt.Format(time.RFC3339),
			}
			cellName, _ := excelize.CoordinatesToCellName(1, row)
			if err := book.SetSheetRow(sheet, cellName, &values); err != nil {
				return fmt.Errorf("failed to write row %d: %w", row, err)
			}
			row++
		}
		if len(contacts) < f.Page.PageSize {
			break
		}
		f.Page.Page++
	}

	if _, err := book.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func readRows(filename string, r io.Reader) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		reader := csv.NewReader(r)
		reader.FieldsPerRecord = -1
		reader.TrimLeadingSpace = true
		rows, err := reader.ReadAll()
		if err != nil {
			return nil, apperrors.Validation("invalid CSV: %v", err)
		}
		return rows, nil
	case ".xlsx":
		book, err := excelize.OpenReader(r)
		if err != nil {
			return nil, apperrors.Validation("invalid XLSX: %v", err)
		}
		defer book.Close()

		sheets := book.GetSheetList()
		if len(sheets) == 0 {
			return nil, apperrors.Validation("workbook has no sheets")
		}
		rows, err := book.GetRows(sheets[0])
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
		}
		return rows, nil
	default:
		return nil, apperrors.Validation("unsupported file type %q: use .csv or .xlsx", filepath.Ext(filename))
	}
}

var headerReplacer = strings.NewReplacer("_", "", " ", "", "-", "")

// mapHeader resolves column positions, accepting snake_case or camelCase names
func mapHeader(header []string) (map[string]int, error) {
	columns := make(map[string]int)
	for idx, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		key = strings.TrimPrefix(key, "\ufeff")
		switch headerReplacer.Replace(key) {
		case "email":
			columns["email"] = idx
		case "firstname":
			columns["first_name"] = idx
		case "lastname":
			columns["last_name"] = idx
		case "company":
			columns["company"] = idx
		case "tags":
			columns["tags"] = idx
		}
	}

	var missing []string
	for _, required := range []string{"email", "first_name"} {
		if _, ok := columns[required]; !ok {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return nil, apperrors.Validation("missing required columns: %s", strings.Join(missing, ", "))
	}
	return columns, nil
}

func cell(row []string, columns map[string]int, name string) string {
	idx, ok := columns[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func blankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
