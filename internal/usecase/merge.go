package usecase

import (
	"sort"
	"time"

	"lead-dashboard/internal/domain"
	"lead-dashboard/internal/normalize"
)

// Fresh is what a sync observed for one conversation.
type Fresh struct {
	ThreadID         string
	UserMessageCount int
	Snapshot         string
	// Fields holds analyzer output; nil means the analyzer was not run.
	Fields *domain.AnalysisFields
}

// NeedsAnalysis reports whether a conversation must be re-analyzed: there is
// no previous row, its user message count differs from count, or one of its
// fields still holds an analyzer failure.
func NeedsAnalysis(prev *domain.AnalysisRow, count int) bool {
	if prev == nil || prev.UserMessageCount != count {
		return true
	}
	return hasFailedFields(*prev)
}

func hasFailedFields(row domain.AnalysisRow) bool {
	return IsAnalysisError(row.Summary) || IsAnalysisError(row.UserName) || IsAnalysisError(row.Status)
}

// Merge builds the row for conversation key. When the count is unchanged the
// previous row is returned as is. Otherwise the row is rebuilt from fresh,
// using placeholder fields when no analysis ran. A fresh date that does not
// normalize keeps the previous created_at.
func Merge(prev *domain.AnalysisRow, key string, fresh Fresh) domain.AnalysisRow {
	if !NeedsAnalysis(prev, fresh.UserMessageCount) {
		return *prev
	}

	fields := domain.PlaceholderFields()
	if fresh.Fields != nil {
		fields = *fresh.Fields
	}

	var row domain.AnalysisRow
	if prev != nil {
		row = *prev
	}
	row.Phone = key
	row.Summary = fields.Summary
	row.UserName = fields.UserName
	row.Status = fields.Status
	row.MessagesSnapshot = fresh.Snapshot
	row.UserMessageCount = fresh.UserMessageCount
	row.ThreadID = fresh.ThreadID
	row.ContactLink = domain.ContactLink(key)
	row.AreaCode = domain.AreaCode(key)
	if d := normalize.Date(fields.LastActivity); d != "" || prev == nil {
		row.CreatedAt = d
	}
	return row
}

// SortRows orders rows by created_at, newest first. Rows whose date does not
// parse go last; equal keys keep their relative order.
func SortRows(rows []domain.AnalysisRow) {
	type keyed struct {
		t  time.Time
		ok bool
	}
	keys := make([]keyed, len(rows))
	for i, r := range rows {
		t, ok := normalize.ParseCanonical(r.CreatedAt, time.UTC)
		keys[i] = keyed{t: t, ok: ok}
	}
	idx := make([]int, len(rows))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ka, kb := keys[idx[a]], keys[idx[b]]
		if ka.ok != kb.ok {
			return ka.ok
		}
		return ka.ok && ka.t.After(kb.t)
	})
	sorted := make([]domain.AnalysisRow, len(rows))
	for i, j := range idx {
		sorted[i] = rows[j]
	}
	copy(rows, sorted)
}
