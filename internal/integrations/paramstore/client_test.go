package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

// fakeAPI is a simple fake implementing ssmAPI for tests.
type fakeAPI struct {
	getOut *ssm.GetParameterOutput
	getErr error
	putErr error
	lastPu *ssm.PutParameterInput
}

func (f *fakeAPI) GetParameter(_ context.Context, _ *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	return f.getOut, f.getErr
}

func (f *fakeAPI) PutParameter(_ context.Context, in *ssm.PutParameterInput, _ ...func(*ssm.Options)) (*ssm.PutParameterOutput, error) {
	f.lastPu = in
	return &ssm.PutParameterOutput{}, f.putErr
}

func strPtr(s string) *string { return &s }

func TestGetParameter_HappyPath(t *testing.T) {
	api := &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{
		Name: strPtr("p"), Value: strPtr(`{"k":"v"}`),
	}}}
	client, err := New(api)
	require.NoError(t, err)
	v, err := client.GetParameter(context.Background(), "p")
	require.NoError(t, err)
	require.Equal(t, `{"k":"v"}`, v)
}

func TestGetParameter_HappyPath_SecureString(t *testing.T) {
	api := &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{
		Name: strPtr("p"), Value: strPtr("Ana"), Type: types.ParameterTypeSecureString,
	}}}
	client, err := New(api)
	require.NoError(t, err)
	v, err := client.GetParameter(context.Background(), "p")
	require.NoError(t, err)
	require.Equal(t, "Ana", v)
}

func TestGetParameter_MissingValue(t *testing.T) {
	api := &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: strPtr("p"), Value: nil}}}
	client, err := New(api)
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "p")
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing value")
}

func TestGetParameter_NotFound(t *testing.T) {
	api := &fakeAPI{getErr: &types.ParameterNotFound{}}
	client, err := New(api)
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "/prefix/settings/assistant_name")
	require.ErrorIs(t, err, ErrNotFound)
	require.Contains(t, err.Error(), "assistant_name")
}

func TestGetParameter_ApiError(t *testing.T) {
	api := &fakeAPI{getErr: errors.New("boom")}
	client, err := New(api)
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "p")
	require.Error(t, err)
	require.ErrorContains(t, err, "boom")
	require.NotErrorIs(t, err, ErrNotFound)
}

func TestGetParameter_ClientNotInitialized(t *testing.T) {
	_, err := (&Client{}).GetParameter(context.Background(), "p")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not initialized")
}

func TestGetParameter_EmptyName(t *testing.T) {
	api := &fakeAPI{}
	client, err := New(api)
	require.NoError(t, err)
	_, err = client.GetParameter(context.Background(), "  ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "required")
}

func TestPutParameter_HappyPath(t *testing.T) {
	api := &fakeAPI{}
	client, err := New(api)
	require.NoError(t, err)

	err = client.PutParameter(context.Background(), " /prefix/settings/taxonomy ", "Lead quente, Lead frio")
	require.NoError(t, err)
	require.NotNil(t, api.lastPu)
	require.Equal(t, "/prefix/settings/taxonomy", *api.lastPu.Name)
	require.Equal(t, "Lead quente, Lead frio", *api.lastPu.Value)
	require.Equal(t, types.ParameterTypeSecureString, api.lastPu.Type)
	require.True(t, *api.lastPu.Overwrite)
}

func TestPutParameter_Validation(t *testing.T) {
	client, err := New(&fakeAPI{})
	require.NoError(t, err)

	err = client.PutParameter(context.Background(), " ", "v")
	require.ErrorContains(t, err, "required")

	err = client.PutParameter(context.Background(), "p", "")
	require.ErrorContains(t, err, "must not be empty")

	err = (&Client{}).PutParameter(context.Background(), "p", "v")
	require.ErrorContains(t, err, "not initialized")
}

func TestPutParameter_ApiError(t *testing.T) {
	client, err := New(&fakeAPI{putErr: errors.New("AccessDenied")})
	require.NoError(t, err)
	err = client.PutParameter(context.Background(), "p", "v")
	require.ErrorContains(t, err, "AccessDenied")
	require.ErrorContains(t, err, "put parameter")
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be nil")
}
