package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"lead-dashboard/internal/domain"
	"lead-dashboard/internal/integrations/paramstore"
)

const (
	paramAssistantName = "/settings/assistant_name"
	paramObjectives    = "/settings/objectives"
	paramTaxonomy      = "/settings/taxonomy"
)

type ParamStore interface {
	GetParameter(ctx context.Context, name string) (string, error)
	PutParameter(ctx context.Context, name, value string) error
}

// SettingsService loads and saves the operator settings that steer analysis.
// Complete settings are cached for the life of the process; incomplete ones
// are re-read on every call so a save from another process is picked up.
type SettingsService struct {
	params      ParamStore
	paramPrefix string

	cacheMu     sync.RWMutex
	cacheLoaded bool
	cached      domain.Settings
}

func NewSettingsService(p ParamStore, paramPrefix string) (*SettingsService, error) {
	if p == nil {
		return nil, errors.New("usecase: param store must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("usecase: parameter prefix must not be empty")
	}
	return &SettingsService{params: p, paramPrefix: paramPrefix}, nil
}

// Settings returns the stored settings. Parameters that do not exist yet come
// back empty.
func (s *SettingsService) Settings(ctx context.Context) (domain.Settings, error) {
	s.cacheMu.RLock()
	if s.cacheLoaded {
		out := s.cached
		s.cacheMu.RUnlock()
		return out, nil
	}
	s.cacheMu.RUnlock()

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.cacheLoaded {
		return s.cached, nil
	}

	loaded, err := s.load(ctx)
	if err != nil {
		return domain.Settings{}, newError(ErrorInternal, "ssm_load_error", err)
	}
	if loaded.Complete() {
		s.cached = loaded
		s.cacheLoaded = true
	}
	return loaded, nil
}

// Save validates and stores all three settings.
func (s *SettingsService) Save(ctx context.Context, in domain.Settings) (domain.Settings, error) {
	in = domain.Settings{
		AssistantName: strings.TrimSpace(in.AssistantName),
		Objectives:    strings.TrimSpace(in.Objectives),
		Taxonomy:      strings.TrimSpace(in.Taxonomy),
	}
	switch {
	case in.AssistantName == "":
		return domain.Settings{}, newError(ErrorInvalidInput, "empty_assistant_name", nil)
	case in.Objectives == "":
		return domain.Settings{}, newError(ErrorInvalidInput, "empty_objectives", nil)
	case in.Taxonomy == "":
		return domain.Settings{}, newError(ErrorInvalidInput, "empty_taxonomy", nil)
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cacheLoaded = false

	writes := []struct{ name, value string }{
		{paramAssistantName, in.AssistantName},
		{paramObjectives, in.Objectives},
		{paramTaxonomy, in.Taxonomy},
	}
	for _, w := range writes {
		if err := s.params.PutParameter(ctx, s.paramPrefix+w.name, w.value); err != nil {
			return domain.Settings{}, newError(ErrorInternal, "ssm_write_error", err)
		}
	}
	s.cached = in
	s.cacheLoaded = true
	return in, nil
}

func (s *SettingsService) load(ctx context.Context) (domain.Settings, error) {
	var out domain.Settings
	reads := []struct {
		name string
		dst  *string
	}{
		{paramAssistantName, &out.AssistantName},
		{paramObjectives, &out.Objectives},
		{paramTaxonomy, &out.Taxonomy},
	}
	for _, r := range reads {
		v, err := s.params.GetParameter(ctx, s.paramPrefix+r.name)
		if errors.Is(err, paramstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return domain.Settings{}, fmt.Errorf("usecase: load %s: %w", strings.TrimPrefix(r.name, "/settings/"), err)
		}
		*r.dst = strings.TrimSpace(v)
	}
	return out, nil
}
