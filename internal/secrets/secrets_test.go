package secrets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvProvider_KeyMapping(t *testing.T) {
	t.Setenv("VENWATCH_LLM_API_KEY", "abc123")

	p := NewEnvProvider("")
	s, err := p.Get(context.Background(), "llm.api_key")
	require.NoError(t, err)
	assert.Equal(t, "abc123", s.String())

	_, err = p.Get(context.Background(), "llm.missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEnvProvider_List(t *testing.T) {
	t.Setenv("VENWATCH_ADAPTER_FRED", "x")
	t.Setenv("VENWATCH_ADAPTER_COMTRADE", "y")
	t.Setenv("OTHER_ADAPTER_GDELT", "z")

	p := NewEnvProvider("")
	keys, err := p.List(context.Background(), "adapter")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"adapter.fred", "adapter.comtrade"}, keys)
}

type countingProvider struct {
	inner Provider
	gets  int
}

func (c *countingProvider) Get(ctx context.Context, key string) (*Secret, error) {
	c.gets++
	return c.inner.Get(ctx, key)
}

func (c *countingProvider) List(ctx context.Context, prefix string) ([]string, error) {
	return c.inner.List(ctx, prefix)
}

func TestCache_LazyLoadAndMissPassthrough(t *testing.T) {
	t.Setenv("VENWATCH_POSTGRES_DSN", "postgres://x")

	inner := &countingProvider{inner: NewEnvProvider("")}
	c := NewCache(inner)

	for i := 0; i < 3; i++ {
		s, err := c.Get(context.Background(), "postgres.dsn")
		require.NoError(t, err)
		assert.Equal(t, "postgres://x", s.String())
	}
	assert.Equal(t, 1, inner.gets, "hit served from cache")

	_, err := c.Get(context.Background(), "late.secret")
	assert.ErrorIs(t, err, ErrNotFound)

	// The miss was not cached; a later provisioned value resolves.
	t.Setenv("VENWATCH_LATE_SECRET", "now-set")
	s, err := c.Get(context.Background(), "late.secret")
	require.NoError(t, err)
	assert.Equal(t, "now-set", s.String())
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "[REDACTED]", Redact("postgres_dsn", "postgres://u:p@h/db"))
	assert.Equal(t, "[REDACTED]", Redact("LLM_API_KEY", "k"))
	assert.Equal(t, ":8080", Redact("http_addr", ":8080"))
	assert.Equal(t, "", Redact("api_key", ""))
}
