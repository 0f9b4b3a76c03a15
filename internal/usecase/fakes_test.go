package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"

	"lead-dashboard/internal/domain"
	"lead-dashboard/internal/integrations/openai"
)

type completion struct {
	out string
	err error
}

type fakeCompleter struct {
	mu        sync.Mutex
	responses []completion
	requests  []openai.CompletionRequest
	// respond, when set, overrides responses.
	respond func(req openai.CompletionRequest) (string, error)
}

func (f *fakeCompleter) Complete(_ context.Context, in openai.CompletionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, in)
	if f.respond != nil {
		return f.respond(in)
	}
	if len(f.responses) == 0 {
		return "", errors.New("no completion configured")
	}
	idx := len(f.requests) - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx].out, f.responses[idx].err
}

func (f *fakeCompleter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeStore struct {
	mu sync.Mutex

	numbers    []domain.KnownNumber
	numbersErr error
	threads    map[string]string
	threadErr  error
	convs      map[string][]domain.ChatMessage
	rows       []domain.AnalysisRow
	loadErr    error
	selections map[string]bool
	selErr     error
	saveRowErr error

	loadCalls     int
	savedRows     []domain.AnalysisRow
	savedAnalyses map[string]string
	savedSel      map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		threads:       map[string]string{},
		convs:         map[string][]domain.ChatMessage{},
		selections:    map[string]bool{},
		savedAnalyses: map[string]string{},
		savedSel:      map[string]bool{},
	}
}

func (f *fakeStore) KnownNumbers(_ context.Context) ([]domain.KnownNumber, error) {
	return f.numbers, f.numbersErr
}

func (f *fakeStore) ThreadID(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.threadErr != nil {
		return "", f.threadErr
	}
	return f.threads[key], nil
}

func (f *fakeStore) Conversation(_ context.Context, key, thread string) ([]domain.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.convs[key+":"+thread], nil
}

func (f *fakeStore) SaveAnalysis(_ context.Context, key, kind, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.savedAnalyses[kind+":"+key] = value
	return nil
}

func (f *fakeStore) SaveRow(_ context.Context, row domain.AnalysisRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveRowErr != nil {
		return f.saveRowErr
	}
	f.savedRows = append(f.savedRows, row)
	return nil
}

func (f *fakeStore) LoadRows(_ context.Context) ([]domain.AnalysisRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadCalls++
	return append([]domain.AnalysisRow(nil), f.rows...), f.loadErr
}

func (f *fakeStore) SaveSelection(_ context.Context, key string, selected bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.selErr != nil {
		return f.selErr
	}
	f.savedSel[key] = selected
	f.selections[key] = selected
	return nil
}

func (f *fakeStore) Selections(_ context.Context, keys []string) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.selErr != nil {
		return nil, f.selErr
	}
	out := map[string]bool{}
	for _, k := range keys {
		if v, ok := f.selections[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

// addConversation registers a thread with the given number of user turns,
// each followed by an assistant reply.
func (f *fakeStore) addConversation(key, thread string, userTurns int) {
	f.threads[key] = thread
	var msgs []domain.ChatMessage
	for i := 0; i < userTurns; i++ {
		msgs = append(msgs,
			domain.ChatMessage{Role: domain.RoleUser, Content: "pergunta"},
			domain.ChatMessage{Role: domain.RoleAssistant, Content: "resposta"},
		)
	}
	f.convs[key+":"+thread] = msgs
}

type fakeAnalyzer struct {
	mu     sync.Mutex
	fields domain.AnalysisFields
	calls  []string
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _ string, phone string, _ domain.Settings) domain.AnalysisFields {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, phone)
	return f.fields
}

type fakeSettings struct {
	settings domain.Settings
	err      error
}

func (f *fakeSettings) Settings(_ context.Context) (domain.Settings, error) {
	return f.settings, f.err
}

func completeSettings() *fakeSettings {
	return &fakeSettings{settings: domain.Settings{
		AssistantName: "Sofia",
		Objectives:    "interesse em compra, reclamações",
		Taxonomy:      "Lead quente, Lead morno, Lead frio",
	}}
}

type fakeTable struct {
	saved   []domain.AnalysisRow
	saveErr error
	loadOut []domain.AnalysisRow
	loadErr error
}

func (f *fakeTable) Save(_ context.Context, rows []domain.AnalysisRow) error {
	f.saved = append([]domain.AnalysisRow(nil), rows...)
	return f.saveErr
}

func (f *fakeTable) Load(_ context.Context) ([]domain.AnalysisRow, error) {
	return f.loadOut, f.loadErr
}

type fakeLedger struct {
	saved   []domain.SyncRun
	saveErr error
	latest  domain.SyncRun
	found   bool
	readErr error
}

func (f *fakeLedger) SaveRun(_ context.Context, run domain.SyncRun) error {
	f.saved = append(f.saved, run)
	return f.saveErr
}

func (f *fakeLedger) LatestRun(_ context.Context) (domain.SyncRun, bool, error) {
	return f.latest, f.found, f.readErr
}

func systemPrompt(req openai.CompletionRequest) string {
	for _, m := range req.Messages {
		if m.Role == domain.RoleSystem {
			return m.Content
		}
	}
	return ""
}

func isSummaryRequest(req openai.CompletionRequest) bool {
	return strings.HasPrefix(systemPrompt(req), "Escreva o resumo")
}
