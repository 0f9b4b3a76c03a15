package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"lead-dashboard/internal/domain"
	"lead-dashboard/internal/normalize"
	"lead-dashboard/internal/report"
	"lead-dashboard/internal/repository"
)

const defaultSyncConcurrency = 4

// ConversationStore is the key-value access the sync and view services need.
type ConversationStore interface {
	KnownNumbers(ctx context.Context) ([]domain.KnownNumber, error)
	ThreadID(ctx context.Context, key string) (string, error)
	Conversation(ctx context.Context, key, thread string) ([]domain.ChatMessage, error)
	SaveAnalysis(ctx context.Context, key, kind, value string) error
	SaveRow(ctx context.Context, row domain.AnalysisRow) error
	LoadRows(ctx context.Context) ([]domain.AnalysisRow, error)
	SaveSelection(ctx context.Context, key string, selected bool) error
	Selections(ctx context.Context, keys []string) (map[string]bool, error)
}

type ConversationAnalyzer interface {
	Analyze(ctx context.Context, window, phone string, s domain.Settings) domain.AnalysisFields
}

type SettingsProvider interface {
	Settings(ctx context.Context) (domain.Settings, error)
}

type TableWriter interface {
	Save(ctx context.Context, rows []domain.AnalysisRow) error
}

type RunLedger interface {
	SaveRun(ctx context.Context, run domain.SyncRun) error
	LatestRun(ctx context.Context) (domain.SyncRun, bool, error)
}

// RowCache holds the last materialized table for the life of the process.
type RowCache struct {
	mu     sync.RWMutex
	rows   []domain.AnalysisRow
	loaded bool
}

// Get returns a copy of the cached rows and whether the cache is populated.
func (c *RowCache) Get() ([]domain.AnalysisRow, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loaded {
		return nil, false
	}
	return append([]domain.AnalysisRow(nil), c.rows...), true
}

// Set replaces the cached rows.
func (c *RowCache) Set(rows []domain.AnalysisRow) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows = append([]domain.AnalysisRow(nil), rows...)
	c.loaded = true
}

// applySelections updates the selected flag of cached rows in place.
func (c *RowCache) applySelections(sel map[string]bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.rows {
		if v, ok := sel[c.rows[i].Phone]; ok {
			c.rows[i].Selected = v
		}
	}
}

// SyncResult is the outcome of one Sync call.
type SyncResult struct {
	Run  domain.SyncRun       `json:"run"`
	Rows []domain.AnalysisRow `json:"rows"`
}

type SyncServiceConfig struct {
	Concurrency int
	Logger      *slog.Logger
	// Ledger is optional.
	Ledger RunLedger
	// Location renders timestamp dates; UTC when nil.
	Location *time.Location
}

// SyncService rebuilds the analysis table from the key-value store.
type SyncService struct {
	store       ConversationStore
	analyzer    ConversationAnalyzer
	settings    SettingsProvider
	table       TableWriter
	cache       *RowCache
	ledger      RunLedger
	concurrency int
	logger      *slog.Logger
	loc         *time.Location
	now         func() time.Time

	running sync.Mutex
}

func NewSyncService(store ConversationStore, analyzer ConversationAnalyzer, settings SettingsProvider, table TableWriter, cache *RowCache, cfg SyncServiceConfig) (*SyncService, error) {
	if store == nil {
		return nil, errors.New("usecase: conversation store must not be nil")
	}
	if analyzer == nil {
		return nil, errors.New("usecase: analyzer must not be nil")
	}
	if settings == nil {
		return nil, errors.New("usecase: settings provider must not be nil")
	}
	if table == nil {
		return nil, errors.New("usecase: table writer must not be nil")
	}
	if cache == nil {
		return nil, errors.New("usecase: row cache must not be nil")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultSyncConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &SyncService{
		store:       store,
		analyzer:    analyzer,
		settings:    settings,
		table:       table,
		cache:       cache,
		ledger:      cfg.Ledger,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
		loc:         cfg.Location,
		now:         time.Now,
	}, nil
}

type syncOutcome struct {
	row        domain.AnalysisRow
	reanalyzed bool
	failed     int
}

// Sync re-reads every known conversation, re-analyzes those whose user
// message count changed and persists the resulting table.
func (s *SyncService) Sync(ctx context.Context) (SyncResult, error) {
	if !s.running.TryLock() {
		return SyncResult{}, newError(ErrorRateLimited, "sync_in_progress", nil)
	}
	defer s.running.Unlock()

	run := domain.SyncRun{ID: newUUID(), StartedAt: s.now()}

	settings, err := s.settings.Settings(ctx)
	if err != nil {
		return SyncResult{}, err
	}
	if !settings.Complete() {
		return SyncResult{}, newError(ErrorConfigMissing, "settings_incomplete", nil)
	}

	numbers, err := s.store.KnownNumbers(ctx)
	if err != nil {
		return SyncResult{}, newError(ErrorUpstream, "kv_unreachable", err)
	}
	if len(numbers) == 0 {
		run.FinishedAt = s.now()
		s.logger.Info("sync found no conversations", "run_id", run.ID)
		return SyncResult{Run: run}, nil
	}

	previous, err := s.previousRows(ctx)
	if err != nil {
		return SyncResult{}, newError(ErrorUpstream, "kv_unreachable", err)
	}

	keys := uniqueKeys(numbers)
	outcomes := make([]syncOutcome, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			out, err := s.syncOne(gctx, key, previous[key], settings)
			if err != nil {
				return err
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return SyncResult{}, newError(ErrorInternal, "sync_cancelled", err)
		}
		return SyncResult{}, newError(ErrorUpstream, "kv_unreachable", err)
	}

	rows := make([]domain.AnalysisRow, len(outcomes))
	for i, o := range outcomes {
		o.row.Summary = domain.FlattenLines(o.row.Summary)
		rows[i] = o.row
		if o.reanalyzed {
			run.Reanalyzed++
		} else {
			run.Carried++
		}
		run.Failed += o.failed
	}
	SortRows(rows)

	for _, row := range rows {
		if err := s.store.SaveRow(ctx, row); err != nil {
			return SyncResult{}, newError(ErrorUpstream, "kv_write_error", err)
		}
	}

	sel, err := s.store.Selections(ctx, keys)
	if err != nil {
		return SyncResult{}, newError(ErrorUpstream, "kv_unreachable", err)
	}
	for i := range rows {
		if v, ok := sel[rows[i].Phone]; ok {
			rows[i].Selected = v
		}
	}

	if err := s.table.Save(ctx, rows); err != nil {
		var uploadErr *report.UploadError
		if !errors.As(err, &uploadErr) {
			return SyncResult{}, newError(ErrorInternal, "report_write_error", err)
		}
		s.logger.Warn("report upload failed", "run_id", run.ID, "err", err)
	}

	s.cache.Set(rows)

	run.Rows = len(rows)
	run.FinishedAt = s.now()
	if s.ledger != nil {
		if err := s.ledger.SaveRun(ctx, run); err != nil {
			s.logger.Warn("failed to record sync run", "run_id", run.ID, "err", err)
		}
	}

	s.logger.Info("sync finished",
		"run_id", run.ID,
		"rows", run.Rows,
		"reanalyzed", run.Reanalyzed,
		"carried", run.Carried,
		"failed_fields", run.Failed,
		"duration", run.FinishedAt.Sub(run.StartedAt),
	)
	return SyncResult{Run: run, Rows: rows}, nil
}

// LatestRun returns the most recent recorded sync run.
func (s *SyncService) LatestRun(ctx context.Context) (domain.SyncRun, error) {
	if s.ledger == nil {
		return domain.SyncRun{}, newError(ErrorConfigMissing, "ledger_not_configured", nil)
	}
	run, ok, err := s.ledger.LatestRun(ctx)
	if err != nil {
		return domain.SyncRun{}, newError(ErrorUpstream, "ledger_read_error", err)
	}
	if !ok {
		return domain.SyncRun{}, newError(ErrorNotFound, "no_sync_runs", nil)
	}
	return run, nil
}

func (s *SyncService) previousRows(ctx context.Context) (map[string]*domain.AnalysisRow, error) {
	rows, ok := s.cache.Get()
	if !ok {
		var err error
		rows, err = s.store.LoadRows(ctx)
		if err != nil {
			return nil, err
		}
	}
	out := make(map[string]*domain.AnalysisRow, len(rows))
	for i := range rows {
		if _, seen := out[rows[i].Phone]; !seen {
			out[rows[i].Phone] = &rows[i]
		}
	}
	return out, nil
}

func (s *SyncService) syncOne(ctx context.Context, key string, prev *domain.AnalysisRow, settings domain.Settings) (syncOutcome, error) {
	thread, err := s.store.ThreadID(ctx, key)
	if err != nil {
		return syncOutcome{}, err
	}

	var msgs []domain.ChatMessage
	if thread != "" {
		msgs, err = s.store.Conversation(ctx, key, thread)
		if err != nil {
			return syncOutcome{}, err
		}
	}
	fresh := Fresh{ThreadID: thread, UserMessageCount: CountUserMessages(msgs)}

	if !NeedsAnalysis(prev, fresh.UserMessageCount) {
		return syncOutcome{row: Merge(prev, key, fresh)}, nil
	}

	out := syncOutcome{reanalyzed: true}
	if thread != "" {
		fresh.Snapshot = BuildWindow(msgs)
		fields := s.analyzer.Analyze(ctx, fresh.Snapshot, key, settings)
		analyses := []struct{ kind, value string }{
			{repository.AnalysisSummary, fields.Summary},
			{repository.AnalysisDate, fields.LastActivity},
			{repository.AnalysisName, fields.UserName},
			{repository.AnalysisClassification, fields.Status},
		}
		for _, a := range analyses {
			if IsAnalysisError(a.value) {
				out.failed++
			}
			if err := s.store.SaveAnalysis(ctx, key, a.kind, a.value); err != nil {
				return syncOutcome{}, err
			}
		}
		fields.LastActivity = normalize.DateIn(fields.LastActivity, s.loc)
		fresh.Fields = &fields
	}
	out.row = Merge(prev, key, fresh)
	return out, nil
}

// uniqueKeys normalizes every known number and keeps the first occurrence of
// each key, preserving order. Numbers that normalize to nothing are dropped.
func uniqueKeys(numbers []domain.KnownNumber) []string {
	seen := make(map[string]struct{}, len(numbers))
	keys := make([]string, 0, len(numbers))
	for _, n := range numbers {
		key := normalize.Phone(n.Phone)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}

var newUUID = func() string {
	return uuid.NewString()
}
