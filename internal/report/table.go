// Package report reads and writes the flat conversation table consumed by the
// BI dashboard, and joins it with the area-code region reference.
package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"lead-dashboard/internal/domain"
)

// Column names of the flat table, in file order.
const (
	ColSelected         = "selected"
	ColPhone            = "phone"
	ColCreatedAt        = "created_at"
	ColSummary          = "summary"
	ColMessagesSnapshot = "messages_snapshot"
	ColUserMessageCount = "user_message_count"
	ColStatus           = "status"
	ColUserName         = "user_name"
	ColThreadID         = "thread_id"
	ColContactLink      = "contact_link"
	ColAreaCode         = "area_code"
)

// Header is the column set written by Write.
var Header = []string{
	ColSelected,
	ColPhone,
	ColCreatedAt,
	ColSummary,
	ColMessagesSnapshot,
	ColUserMessageCount,
	ColStatus,
	ColUserName,
	ColThreadID,
	ColContactLink,
	ColAreaCode,
}

// requiredColumns are the columns the dashboard aggregates over.
var requiredColumns = []string{
	ColCreatedAt,
	ColSummary,
	ColUserMessageCount,
	ColStatus,
	ColUserName,
	ColAreaCode,
}

// MissingColumnError reports a table that lacks a column the dashboard needs.
type MissingColumnError struct {
	Column    string
	Available []string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("report: column %q not found; available columns: %s",
		e.Column, strings.Join(e.Available, ", "))
}

// Write encodes rows as CSV with Header as the first record.
func Write(w io.Writer, rows []domain.AnalysisRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("report: write header: %w", err)
	}
	for _, r := range rows {
		rec := []string{
			strconv.FormatBool(r.Selected),
			r.Phone,
			r.CreatedAt,
			r.Summary,
			r.MessagesSnapshot,
			strconv.Itoa(r.UserMessageCount),
			r.Status,
			r.UserName,
			r.ThreadID,
			r.ContactLink,
			r.AreaCode,
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("report: write row %q: %w", r.Phone, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("report: flush: %w", err)
	}
	return nil
}

// Read decodes a table written by Write. Header names are matched after
// trimming and lower-casing; column order is free and unknown columns are
// ignored. A missing required column yields *MissingColumnError. Cells that do
// not parse fall back to their zero value.
func Read(r io.Reader) ([]domain.AnalysisRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	head, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &MissingColumnError{Column: ColCreatedAt}
	}
	if err != nil {
		return nil, fmt.Errorf("report: read header: %w", err)
	}

	index := make(map[string]int, len(head))
	available := make([]string, 0, len(head))
	for i, h := range head {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		available = append(available, name)
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, &MissingColumnError{Column: col, Available: available}
		}
	}

	var rows []domain.AnalysisRow
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("report: read row: %w", err)
		}
		cell := func(col string) string {
			i, ok := index[col]
			if !ok || i >= len(rec) {
				return ""
			}
			return rec[i]
		}
		selected, _ := strconv.ParseBool(strings.TrimSpace(cell(ColSelected)))
		count, _ := strconv.Atoi(strings.TrimSpace(cell(ColUserMessageCount)))
		rows = append(rows, domain.AnalysisRow{
			Selected:         selected,
			Phone:            cell(ColPhone),
			CreatedAt:        cell(ColCreatedAt),
			Summary:          cell(ColSummary),
			MessagesSnapshot: cell(ColMessagesSnapshot),
			UserMessageCount: count,
			Status:           cell(ColStatus),
			UserName:         cell(ColUserName),
			ThreadID:         cell(ColThreadID),
			ContactLink:      cell(ColContactLink),
			AreaCode:         strings.TrimSpace(cell(ColAreaCode)),
		})
	}
}
