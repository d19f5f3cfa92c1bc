package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolbill_backend/internals/helpers/apperr"
)

type fakeProvider struct {
	name     string
	calls    int
	initiate func(calls int) (*InitiateResult, error)
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	f.calls++
	return f.initiate(f.calls)
}

func (f *fakeProvider) QueryStatus(ctx context.Context, externalID string) (*StatusResult, error) {
	f.calls++
	return nil, apperr.Gatewayf(apperr.GatewayTransient, "down")
}

func (f *fakeProvider) VerifyCallback(headers map[string]string, body []byte) (*ParsedEvent, error) {
	return nil, apperr.Signature("not implemented")
}

func TestInitiateWithRetryRecoversFromTransient(t *testing.T) {
	p := &fakeProvider{name: "fake", initiate: func(calls int) (*InitiateResult, error) {
		if calls < 3 {
			return nil, apperr.Gatewayf(apperr.GatewayTransient, "timeout")
		}
		return &InitiateResult{ProviderRef: "ok"}, nil
	}}

	res, err := InitiateWithRetry(context.Background(), p, InitiateRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.ProviderRef)
	assert.Equal(t, 3, p.calls)
}

func TestInitiateWithRetryGivesUpAfterMaxTries(t *testing.T) {
	p := &fakeProvider{name: "fake", initiate: func(int) (*InitiateResult, error) {
		return nil, apperr.Gatewayf(apperr.GatewayTransient, "timeout")
	}}

	_, err := InitiateWithRetry(context.Background(), p, InitiateRequest{})
	require.Error(t, err)
	assert.True(t, apperr.IsTransient(err))
	assert.Equal(t, maxInitiateTries, p.calls)
}

func TestInitiateWithRetryNeverRetriesAuthErrors(t *testing.T) {
	p := &fakeProvider{name: "fake", initiate: func(int) (*InitiateResult, error) {
		return nil, apperr.Gatewayf(apperr.GatewayAuth, "bad key")
	}}

	_, err := InitiateWithRetry(context.Background(), p, InitiateRequest{})
	require.Error(t, err)
	assert.Equal(t, 1, p.calls, "AUTH tidak boleh di-retry")
}

func TestRegistry(t *testing.T) {
	a := &fakeProvider{name: "mpesa"}
	b := &fakeProvider{name: "cardpro"}
	reg := NewRegistry(a, b)

	got, err := reg.Get("MPESA")
	require.NoError(t, err)
	assert.Equal(t, "mpesa", got.Name())

	_, err = reg.Get("paypal")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	assert.ElementsMatch(t, []string{"mpesa", "cardpro"}, reg.Names())
}
