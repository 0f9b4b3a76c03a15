package usecase

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"lead-dashboard/internal/domain"
	"lead-dashboard/internal/normalize"
	"lead-dashboard/internal/report"
)

// Period selects which rows a view shows, by created_at.
type Period string

const (
	PeriodAll        Period = "all"
	PeriodLastMonth  Period = "last_month"
	PeriodLast14Days Period = "last_14_days"
	PeriodLast7Days  Period = "last_7_days"
	PeriodYesterday  Period = "yesterday"
	PeriodToday      Period = "today"
)

var periodAliases = map[string]Period{
	"":                PeriodAll,
	"all":             PeriodAll,
	"completo":        PeriodAll,
	"last_month":      PeriodLastMonth,
	"último mês":      PeriodLastMonth,
	"last_14_days":    PeriodLast14Days,
	"últimos 14 dias": PeriodLast14Days,
	"last_7_days":     PeriodLast7Days,
	"últimos 7 dias":  PeriodLast7Days,
	"yesterday":       PeriodYesterday,
	"ontem":           PeriodYesterday,
	"today":           PeriodToday,
	"hoje":            PeriodToday,
}

// ParsePeriod accepts the period identifiers and their Portuguese labels,
// case-insensitively. Empty means PeriodAll.
func ParsePeriod(s string) (Period, error) {
	p, ok := periodAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", newError(ErrorInvalidInput, "invalid_period", nil)
	}
	return p, nil
}

func (p Period) window() (days int, ok bool) {
	switch p {
	case PeriodLastMonth:
		return 30, true
	case PeriodLast14Days:
		return 14, true
	case PeriodLast7Days:
		return 7, true
	}
	return 0, false
}

// Filter returns the rows whose created_at falls in period relative to now.
// Rolling windows keep rows at or after now minus N days; Yesterday and Today
// compare calendar dates in now's location. Rows with an unparseable date are
// kept only for PeriodAll.
func Filter(rows []domain.AnalysisRow, period Period, now time.Time) []domain.AnalysisRow {
	if period == PeriodAll || period == "" {
		return append([]domain.AnalysisRow(nil), rows...)
	}
	loc := now.Location()
	out := make([]domain.AnalysisRow, 0, len(rows))
	for _, r := range rows {
		t, ok := normalize.ParseCanonical(r.CreatedAt, loc)
		if !ok {
			continue
		}
		if inPeriod(t, period, now) {
			out = append(out, r)
		}
	}
	return out
}

func inPeriod(t time.Time, period Period, now time.Time) bool {
	if days, ok := period.window(); ok {
		return !t.Before(now.Add(-time.Duration(days) * 24 * time.Hour))
	}
	switch period {
	case PeriodToday:
		return sameDay(t, now)
	case PeriodYesterday:
		return sameDay(t, now.AddDate(0, 0, -1))
	}
	return false
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

var satisfactionKeywords = []string{"satisfação", "agradecimento", "obrigado", "obrigada"}

// KPIs are the headline aggregates of a filtered table.
type KPIs struct {
	Total            int     `json:"total"`
	MeanUserMessages float64 `json:"mean_user_messages"`
	SatisfactionRate float64 `json:"satisfaction_rate"`
}

// ComputeKPIs aggregates rows. An empty set yields all zeros.
func ComputeKPIs(rows []domain.AnalysisRow) KPIs {
	if len(rows) == 0 {
		return KPIs{}
	}
	var messages, satisfied int
	for _, r := range rows {
		messages += r.UserMessageCount
		if mentionsSatisfaction(r.Summary) {
			satisfied++
		}
	}
	n := float64(len(rows))
	return KPIs{
		Total:            len(rows),
		MeanUserMessages: float64(messages) / n,
		SatisfactionRate: float64(satisfied) / n * 100,
	}
}

func mentionsSatisfaction(summary string) bool {
	s := strings.ToLower(summary)
	for _, k := range satisfactionKeywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// Count is one labeled bar or slice of a chart.
type Count struct {
	Label string `json:"label"`
	Value int    `json:"value"`
}

// TreemapNode is one region/area-code leaf weighted by user messages.
type TreemapNode struct {
	Region       string `json:"region"`
	AreaCode     string `json:"area_code"`
	UserMessages int    `json:"user_messages"`
}

// Dashboard is the BI page: KPIs plus chart series over the filtered table.
type Dashboard struct {
	Period             Period        `json:"period"`
	KPIs               KPIs          `json:"kpis"`
	StatusDistribution []Count       `json:"status_distribution"`
	ByRegion           []Count       `json:"by_region"`
	ByDay              []Count       `json:"by_day"`
	MessagesByUser     []Count       `json:"messages_by_user"`
	Treemap            []TreemapNode `json:"treemap"`
}

const dayLabelLayout = "2006-01-02"

// BuildDashboard computes chart series for rows already filtered by period.
// Rows whose area code has no region are left out of the region charts.
func BuildDashboard(rows []domain.AnalysisRow, period Period, regions report.Regions, loc *time.Location) Dashboard {
	status := map[string]int{}
	byRegion := map[string]int{}
	byDay := map[string]int{}
	byUser := map[string]int{}
	type leaf struct{ region, code string }
	tree := map[leaf]int{}

	for _, r := range rows {
		status[r.Status]++
		byUser[r.UserName] += r.UserMessageCount
		if t, ok := normalize.ParseCanonical(r.CreatedAt, loc); ok {
			byDay[t.Format(dayLabelLayout)]++
		}
		if region, ok := regions.Lookup(r.AreaCode); ok {
			byRegion[region]++
			tree[leaf{region, r.AreaCode}] += r.UserMessageCount
		}
	}

	days := countsOf(byDay)
	sort.Slice(days, func(i, j int) bool { return days[i].Label < days[j].Label })

	treemap := make([]TreemapNode, 0, len(tree))
	for k, v := range tree {
		treemap = append(treemap, TreemapNode{Region: k.region, AreaCode: k.code, UserMessages: v})
	}
	sort.Slice(treemap, func(i, j int) bool {
		if treemap[i].Region != treemap[j].Region {
			return treemap[i].Region < treemap[j].Region
		}
		return treemap[i].AreaCode < treemap[j].AreaCode
	})

	return Dashboard{
		Period:             period,
		KPIs:               ComputeKPIs(rows),
		StatusDistribution: byValueDesc(countsOf(status)),
		ByRegion:           byValueDesc(countsOf(byRegion)),
		ByDay:              days,
		MessagesByUser:     byValueDesc(countsOf(byUser)),
		Treemap:            treemap,
	}
}

func countsOf(m map[string]int) []Count {
	out := make([]Count, 0, len(m))
	for k, v := range m {
		out = append(out, Count{Label: k, Value: v})
	}
	return out
}

// byValueDesc sorts by value descending, then label ascending.
func byValueDesc(c []Count) []Count {
	sort.Slice(c, func(i, j int) bool {
		if c[i].Value != c[j].Value {
			return c[i].Value > c[j].Value
		}
		return c[i].Label < c[j].Label
	})
	return c
}

// RowStore is the key-value access the view service needs.
type RowStore interface {
	LoadRows(ctx context.Context) ([]domain.AnalysisRow, error)
	SaveSelection(ctx context.Context, key string, selected bool) error
	Selections(ctx context.Context, keys []string) (map[string]bool, error)
}

type TableReader interface {
	Load(ctx context.Context) ([]domain.AnalysisRow, error)
}

// ViewService serves the message panel and the BI dashboard.
type ViewService struct {
	store   RowStore
	table   TableReader
	cache   *RowCache
	regions report.Regions
	loc     *time.Location
	now     func() time.Time
}

// NewViewService creates a ViewService. A nil loc means UTC.
func NewViewService(store RowStore, table TableReader, cache *RowCache, regions report.Regions, loc *time.Location) (*ViewService, error) {
	if store == nil {
		return nil, errors.New("usecase: row store must not be nil")
	}
	if table == nil {
		return nil, errors.New("usecase: table reader must not be nil")
	}
	if cache == nil {
		return nil, errors.New("usecase: row cache must not be nil")
	}
	if regions == nil {
		regions = report.DefaultRegions()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &ViewService{
		store:   store,
		table:   table,
		cache:   cache,
		regions: regions,
		loc:     loc,
		now:     time.Now,
	}, nil
}

// Panel returns the message-panel rows for period, newest first, with
// selection flags restored.
func (v *ViewService) Panel(ctx context.Context, period Period) ([]domain.AnalysisRow, error) {
	rows, ok := v.cache.Get()
	if !ok {
		loaded, err := v.store.LoadRows(ctx)
		if err != nil {
			return nil, newError(ErrorUpstream, "kv_unreachable", err)
		}
		rows = loaded
	}

	keys := make([]string, len(rows))
	for i := range rows {
		rows[i].CreatedAt = normalize.DateIn(rows[i].CreatedAt, v.loc)
		keys[i] = rows[i].Phone
	}
	SortRows(rows)

	sel, err := v.store.Selections(ctx, keys)
	if err != nil {
		return nil, newError(ErrorUpstream, "kv_unreachable", err)
	}
	for i := range rows {
		if s, ok := sel[rows[i].Phone]; ok {
			rows[i].Selected = s
		}
	}
	return Filter(rows, period, v.now().In(v.loc)), nil
}

// Dashboard reads the flat table, joins regions and aggregates for period.
func (v *ViewService) Dashboard(ctx context.Context, period Period) (Dashboard, error) {
	rows, err := v.table.Load(ctx)
	if err != nil {
		var missing *report.MissingColumnError
		switch {
		case errors.Is(err, report.ErrMissing):
			return Dashboard{}, newError(ErrorNotFound, "report_missing", err)
		case errors.As(err, &missing):
			return Dashboard{}, newError(ErrorDataShape, "missing_column", err)
		default:
			return Dashboard{}, newError(ErrorInternal, "report_read_error", err)
		}
	}
	filtered := Filter(rows, period, v.now().In(v.loc))
	return BuildDashboard(filtered, period, v.regions, v.loc), nil
}

// SaveSelections stores the selection flag of every key in sel.
func (v *ViewService) SaveSelections(ctx context.Context, sel map[string]bool) error {
	if len(sel) == 0 {
		return newError(ErrorInvalidInput, "empty_selection", nil)
	}
	keys := make([]string, 0, len(sel))
	for k := range sel {
		if strings.TrimSpace(k) == "" {
			return newError(ErrorInvalidInput, "empty_key", nil)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := v.store.SaveSelection(ctx, k, sel[k]); err != nil {
			return newError(ErrorUpstream, "kv_write_error", err)
		}
	}
	v.cache.applySelections(sel)
	return nil
}
