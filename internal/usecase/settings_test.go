package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"lead-dashboard/internal/domain"
	"lead-dashboard/internal/integrations/paramstore"
)

type mockParams struct {
	vals    map[string]string
	getErr  error
	putErr  error
	gets    int
	putKeys []string
}

func (m *mockParams) GetParameter(_ context.Context, name string) (string, error) {
	m.gets++
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.vals[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", paramstore.ErrNotFound, name)
	}
	return v, nil
}

func (m *mockParams) PutParameter(_ context.Context, name, value string) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.putKeys = append(m.putKeys, name)
	m.vals[name] = value
	return nil
}

func defaultParams() *mockParams {
	return &mockParams{vals: map[string]string{
		"/prefix/settings/assistant_name": "Sofia",
		"/prefix/settings/objectives":     "interesse em compra",
		"/prefix/settings/taxonomy":       "Lead quente, Lead frio",
	}}
}

func newTestSettingsService(t *testing.T, p ParamStore) *SettingsService {
	t.Helper()
	svc, err := NewSettingsService(p, "/prefix/")
	require.NoError(t, err)
	return svc
}

func TestNewSettingsService_ValidatesDependencies(t *testing.T) {
	_, err := NewSettingsService(nil, "/prefix")
	require.Error(t, err)
	_, err = NewSettingsService(defaultParams(), " ")
	require.Error(t, err)
}

func TestSettings_LoadsAndCachesComplete(t *testing.T) {
	p := defaultParams()
	svc := newTestSettingsService(t, p)

	s, err := svc.Settings(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.Settings{
		AssistantName: "Sofia",
		Objectives:    "interesse em compra",
		Taxonomy:      "Lead quente, Lead frio",
	}, s)
	require.Equal(t, 3, p.gets)

	_, err = svc.Settings(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, p.gets)
}

func TestSettings_IncompleteIsNotCached(t *testing.T) {
	p := &mockParams{vals: map[string]string{"/prefix/settings/assistant_name": " Sofia "}}
	svc := newTestSettingsService(t, p)

	s, err := svc.Settings(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Sofia", s.AssistantName)
	require.False(t, s.Complete())

	_, err = svc.Settings(context.Background())
	require.NoError(t, err)
	require.Equal(t, 6, p.gets)
}

func TestSettings_LoadError(t *testing.T) {
	svc := newTestSettingsService(t, &mockParams{getErr: errors.New("AccessDenied")})
	_, err := svc.Settings(context.Background())
	expectUsecaseError(t, err, ErrorInternal, "ssm_load_error")
	require.ErrorContains(t, err, "load assistant_name")
}

func TestSaveSettings(t *testing.T) {
	p := &mockParams{vals: map[string]string{}}
	svc := newTestSettingsService(t, p)

	saved, err := svc.Save(context.Background(), domain.Settings{
		AssistantName: " Sofia ",
		Objectives:    "reclamações",
		Taxonomy:      "Lead quente",
	})
	require.NoError(t, err)
	require.Equal(t, "Sofia", saved.AssistantName)
	require.Equal(t, []string{
		"/prefix/settings/assistant_name",
		"/prefix/settings/objectives",
		"/prefix/settings/taxonomy",
	}, p.putKeys)

	s, err := svc.Settings(context.Background())
	require.NoError(t, err)
	require.Equal(t, saved, s)
	require.Zero(t, p.gets)
}

func TestSaveSettings_Validation(t *testing.T) {
	svc := newTestSettingsService(t, defaultParams())
	cases := []struct {
		in     domain.Settings
		reason string
	}{
		{domain.Settings{Objectives: "o", Taxonomy: "t"}, "empty_assistant_name"},
		{domain.Settings{AssistantName: "a", Taxonomy: "t"}, "empty_objectives"},
		{domain.Settings{AssistantName: "a", Objectives: "o", Taxonomy: "  "}, "empty_taxonomy"},
	}
	for _, tc := range cases {
		_, err := svc.Save(context.Background(), tc.in)
		expectUsecaseError(t, err, ErrorInvalidInput, tc.reason)
	}
}

func TestSaveSettings_WriteError(t *testing.T) {
	p := defaultParams()
	p.putErr = errors.New("ThrottlingException")
	svc := newTestSettingsService(t, p)
	_, err := svc.Save(context.Background(), domain.Settings{AssistantName: "a", Objectives: "o", Taxonomy: "t"})
	expectUsecaseError(t, err, ErrorInternal, "ssm_write_error")
}
