// Package secrets resolves credentials for external services. The only
// backing store is the process environment; values are cached in-process on
// first read.
package secrets

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"
)

// ErrNotFound reports a missing secret.
var ErrNotFound = fmt.Errorf("secret not found")

// Secret is one resolved credential. Value never serializes.
type Secret struct {
	Key      string    `json:"key"`
	Value    []byte    `json:"-"`
	LoadedAt time.Time `json:"loaded_at"`
}

func (s *Secret) String() string { return string(s.Value) }

// Provider is a read-only secret source.
type Provider interface {
	Get(ctx context.Context, key string) (*Secret, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// EnvProvider reads secrets from VENWATCH_-prefixed environment variables.
// Keys are lowercase dotted names; "llm.api_key" maps to
// VENWATCH_LLM_API_KEY.
type EnvProvider struct {
	prefix string
}

func NewEnvProvider(prefix string) *EnvProvider {
	if prefix == "" {
		prefix = "VENWATCH"
	}
	return &EnvProvider{prefix: strings.ToUpper(prefix)}
}

func (p *EnvProvider) envKey(key string) string {
	k := strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
	return p.prefix + "_" + k
}

func (p *EnvProvider) Get(_ context.Context, key string) (*Secret, error) {
	value := os.Getenv(p.envKey(key))
	if value == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return &Secret{Key: key, Value: []byte(value), LoadedAt: time.Now().UTC()}, nil
}

func (p *EnvProvider) List(_ context.Context, prefix string) ([]string, error) {
	envPrefix := p.envKey(prefix)
	var keys []string
	for _, env := range os.Environ() {
		name, _, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(name, envPrefix) {
			continue
		}
		key := strings.ToLower(strings.TrimPrefix(name, p.prefix+"_"))
		keys = append(keys, strings.ReplaceAll(key, "_", "."))
	}
	return keys, nil
}

// Cache wraps a provider with lazy in-process caching. Misses are not
// cached, so a secret provisioned after startup becomes visible.
type Cache struct {
	provider Provider

	mu     sync.RWMutex
	loaded map[string]*Secret
}

func NewCache(p Provider) *Cache {
	return &Cache{provider: p, loaded: make(map[string]*Secret)}
}

func (c *Cache) Get(ctx context.Context, key string) (*Secret, error) {
	c.mu.RLock()
	s, ok := c.loaded[key]
	c.mu.RUnlock()
	if ok {
		return s, nil
	}

	s, err := c.provider.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.loaded[key] = s
	c.mu.Unlock()
	return s, nil
}

func (c *Cache) List(ctx context.Context, prefix string) ([]string, error) {
	return c.provider.List(ctx, prefix)
}

// sensitiveKey matches names whose values must never appear in logs.
var sensitiveKey = regexp.MustCompile(`(?i)(password|secret|key|token|dsn|auth|credential)`)

// Redact masks a value when its name looks sensitive. Meant for config
// dumps and startup logging.
func Redact(name, value string) string {
	if value != "" && sensitiveKey.MatchString(name) {
		return "[REDACTED]"
	}
	return value
}
