package setting

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/risiti/core"
)

type memRepo struct {
	settings map[string]Setting
	queries  int
}

func (r *memRepo) QuerySettings(context.Context, ...core.DBExecutor) ([]Setting, error) {
	r.queries++
	out := make([]Setting, 0, len(r.settings))
	for _, s := range r.settings {
		out = append(out, s)
	}
	return out, nil
}

func (r *memRepo) UpsertSettings(_ context.Context, settings []Setting, _ ...core.DBExecutor) error {
	for _, s := range settings {
		r.settings[s.Name] = s
	}
	return nil
}

type memCache struct {
	profile     *Profile
	invalidated int
	failing     bool
}

func (c *memCache) GetProfile(context.Context) (Profile, bool, error) {
	if c.failing {
		return Profile{}, false, errors.New("cache down")
	}
	if c.profile == nil {
		return Profile{}, false, nil
	}
	return *c.profile, true, nil
}

func (c *memCache) SetProfile(_ context.Context, p Profile) error {
	c.profile = &p
	return nil
}

func (c *memCache) Invalidate(context.Context) error {
	c.invalidated++
	c.profile = nil
	return nil
}

type noTx struct{}

func (noTx) WithinTx(_ context.Context, fn core.TxFunc) error { return fn(nil) }

type discardLogger struct{}

func (discardLogger) Debug(string, ...interface{}) {}
func (discardLogger) Info(string, ...interface{})  {}
func (discardLogger) Warn(string, ...interface{})  {}
func (discardLogger) Error(string, ...interface{}) {}
func (discardLogger) Fatal(string, ...interface{}) {}

func TestClean(t *testing.T) {
	tests := []struct {
		name    string
		values  map[string]string
		want    map[string]string
		wantErr []core.FieldError
	}{
		{
			name:   "normalized",
			values: map[string]string{ReceiptPrefix: " inv ", Currency: "cdf", InstitutionEmail: ""},
			want:   map[string]string{ReceiptPrefix: "INV", Currency: "CDF", InstitutionEmail: ""},
		},
		{
			name:    "unknown",
			values:  map[string]string{"lol": "1"},
			wantErr: []core.FieldError{{Field: "lol", Error: "unknown setting"}},
		},
		{
			name:   "invalid",
			values: map[string]string{InstitutionEmail: "lol", ReceiptPrefix: "RCT-1", Currency: "US1"},
			wantErr: []core.FieldError{
				{Field: Currency, Error: "must be a 3 letter currency code"},
				{Field: InstitutionEmail, Error: "must be a valid email address"},
				{Field: ReceiptPrefix, Error: "only letters and digits are allowed"},
			},
		},
		{
			name:    "too long",
			values:  map[string]string{ReceiptPrefix: "ABCDEFGHIJK"},
			wantErr: []core.FieldError{{Field: ReceiptPrefix, Error: "must be at most 10 characters long"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := clean(tt.values)
			if tt.wantErr != nil {
				verr, ok := err.(*core.ValidationError)
				require.True(t, ok, "got %T", err)
				assert.Equal(t, tt.wantErr, verr.Fields)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProfileFrom(t *testing.T) {
	p := ProfileFrom(map[string]string{InstitutionName: "Institut Umoja", Currency: " ", ReceiptPrefix: "INV"})
	assert.Equal(t, "Institut Umoja", p.InstitutionName)
	assert.Equal(t, "INV", p.ReceiptPrefix)
	assert.Equal(t, Defaults[Currency], p.Currency, "blank values take their default")
	assert.Equal(t, Defaults[ReceiptSignerTitle], p.ReceiptSignerTitle)
}

func TestService_Profile(t *testing.T) {
	ctx := context.Background()

	t.Run("from context", func(t *testing.T) {
		repo := &memRepo{settings: map[string]Setting{}}
		svc := NewService(noTx{}, repo, nil, discardLogger{})

		want := Profile{InstitutionName: "Cached"}
		got, err := svc.Profile(ContextWithProfile(ctx, want))
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Zero(t, repo.queries)
	})

	t.Run("cached until set", func(t *testing.T) {
		repo := &memRepo{settings: map[string]Setting{}}
		cache := new(memCache)
		svc := NewService(noTx{}, repo, cache, discardLogger{})

		p, err := svc.Profile(ctx)
		require.NoError(t, err)
		assert.Equal(t, "RCT", p.ReceiptPrefix)
		_, err = svc.Profile(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, repo.queries)

		_, err = svc.Set(ctx, map[string]string{ReceiptPrefix: "inv"})
		require.NoError(t, err)
		assert.Equal(t, 1, cache.invalidated)

		p, err = svc.Profile(ctx)
		require.NoError(t, err)
		assert.Equal(t, "INV", p.ReceiptPrefix)
	})

	t.Run("cache errors fall back to the store", func(t *testing.T) {
		repo := &memRepo{settings: map[string]Setting{InstitutionName: {Name: InstitutionName, Value: "Umoja"}}}
		svc := NewService(noTx{}, repo, &memCache{failing: true}, discardLogger{})

		p, err := svc.Profile(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Umoja", p.InstitutionName)
	})
}

func TestService_All(t *testing.T) {
	repo := &memRepo{settings: map[string]Setting{
		Currency: {Name: Currency, Value: "CDF"},
		"stale":  {Name: "stale", Value: "1"},
	}}
	svc := NewService(noTx{}, repo, nil, discardLogger{})

	values, err := svc.All(context.Background())
	require.NoError(t, err)
	assert.Len(t, values, len(Defaults))
	assert.Equal(t, "CDF", values[Currency])
	assert.NotContains(t, values, "stale")
}
