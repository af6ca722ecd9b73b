package entity

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venwatch/venwatch/internal/persistence"
)

type fakeStore struct {
	entities  map[string]persistence.Entity
	aliases   map[string]persistence.Alias // key alias|source
	createErr []error                      // popped per CreateWithAlias call
	touched   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		entities: make(map[string]persistence.Entity),
		aliases:  make(map[string]persistence.Alias),
	}
}

func aliasKey(alias, source string) string {
	return strings.ToLower(alias) + "|" + source
}

func (f *fakeStore) FindAlias(_ context.Context, alias, source string) (*persistence.Alias, error) {
	a, ok := f.aliases[aliasKey(alias, source)]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return &a, nil
}

func (f *fakeStore) CandidatesByBlock(_ context.Context, prefix, country, entityType string) ([]persistence.Entity, error) {
	var out []persistence.Entity
	for _, e := range f.entities {
		if strings.HasPrefix(strings.ToLower(e.PrimaryName), prefix) &&
			e.CountryCode == country && e.EntityType == entityType {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateWithAlias(_ context.Context, ent persistence.Entity, alias persistence.Alias) error {
	if len(f.createErr) > 0 {
		err := f.createErr[0]
		f.createErr = f.createErr[1:]
		if err != nil {
			return err
		}
	}
	if _, exists := f.aliases[aliasKey(alias.Alias, alias.Source)]; exists {
		return persistence.ErrDuplicate
	}
	f.entities[ent.ID] = ent
	f.aliases[aliasKey(alias.Alias, alias.Source)] = alias
	return nil
}

func (f *fakeStore) UpsertAlias(_ context.Context, alias persistence.Alias) error {
	f.aliases[aliasKey(alias.Alias, alias.Source)] = alias
	return nil
}

func (f *fakeStore) TouchAlias(_ context.Context, alias, source string, _ time.Time) error {
	f.touched++
	return nil
}

func (f *fakeStore) Get(_ context.Context, id string) (*persistence.Entity, error) {
	e, ok := f.entities[id]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return &e, nil
}

func (f *fakeStore) InsertMention(context.Context, persistence.Mention) error { return nil }

func (f *fakeStore) MentionsSince(context.Context, time.Time) ([]persistence.Mention, error) {
	return nil, nil
}

func (f *fakeStore) DailyMentionCounts(context.Context, string, time.Time, time.Time) (map[time.Time]int, error) {
	return nil, nil
}

func TestResolve_CreatesNewThenMatchesExact(t *testing.T) {
	store := newFakeStore()
	r := NewResolver(store)
	ctx := context.Background()

	first, err := r.Resolve(ctx, Request{RawName: "PDVSA", Source: "gdelt", EntityType: "organization", CountryCode: "VE"})
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, MethodExact, first.Method)
	assert.Equal(t, 1.0, first.Confidence)

	second, err := r.Resolve(ctx, Request{RawName: "PDVSA", Source: "gdelt", EntityType: "organization", CountryCode: "VE"})
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.CanonicalID, second.CanonicalID)
	assert.Equal(t, 1, store.touched)
}

func TestResolve_ProbabilisticVariantSpelling(t *testing.T) {
	store := newFakeStore()
	r := NewResolver(store)
	ctx := context.Background()

	first, err := r.Resolve(ctx, Request{RawName: "Petroleos de Venezuela", Source: "reliefweb", EntityType: "organization", CountryCode: "VE"})
	require.NoError(t, err)
	require.True(t, first.Created)

	// Same block, high string similarity, different source: should link to
	// the existing canonical entity instead of creating a second one.
	second, err := r.Resolve(ctx, Request{RawName: "Petroleos de Venezuela SA", Source: "edgar", EntityType: "organization", CountryCode: "VE"})
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, MethodProbabilistic, second.Method)
	assert.Equal(t, first.CanonicalID, second.CanonicalID)
	assert.GreaterOrEqual(t, second.Confidence, 0.85)
	assert.Len(t, store.entities, 1)
}

func TestResolve_DissimilarNameCreatesNew(t *testing.T) {
	store := newFakeStore()
	r := NewResolver(store)
	ctx := context.Background()

	first, err := r.Resolve(ctx, Request{RawName: "Banco Central", Source: "gdelt", EntityType: "organization", CountryCode: "VE"})
	require.NoError(t, err)

	// Shares the "ban" block but is not the same organization.
	second, err := r.Resolve(ctx, Request{RawName: "Bandes Uruguay", Source: "gdelt", EntityType: "organization", CountryCode: "VE"})
	require.NoError(t, err)
	assert.True(t, second.Created)
	assert.NotEqual(t, first.CanonicalID, second.CanonicalID)
	assert.Len(t, store.entities, 2)
}

func TestResolve_DifferentTypeNotBlockedTogether(t *testing.T) {
	store := newFakeStore()
	r := NewResolver(store)
	ctx := context.Background()

	org, err := r.Resolve(ctx, Request{RawName: "Maduro Holdings", Source: "gdelt", EntityType: "organization", CountryCode: "VE"})
	require.NoError(t, err)

	person, err := r.Resolve(ctx, Request{RawName: "Maduro Holdings", Source: "reliefweb", EntityType: "person", CountryCode: "VE"})
	require.NoError(t, err)
	assert.NotEqual(t, org.CanonicalID, person.CanonicalID)
}

func TestResolve_RetriesOnDuplicateRace(t *testing.T) {
	store := newFakeStore()
	r := NewResolver(store)
	ctx := context.Background()

	// First create attempt loses a unique-constraint race; the retry loop
	// should go back through the lookup tiers and succeed.
	store.createErr = []error{persistence.ErrDuplicate}
	res, err := r.Resolve(ctx, Request{RawName: "Corpoelec", Source: "gdelt", EntityType: "organization", CountryCode: "VE"})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Len(t, store.entities, 1)
}

func TestBlockPrefix_RuneBoundaries(t *testing.T) {
	assert.Equal(t, "pdv", blockPrefix("PDVSA"))
	assert.Equal(t, "ga", blockPrefix("GA"))
	// Accented names keep whole characters in the blocking key.
	assert.Equal(t, "ñán", blockPrefix("Ñáñez"))
	assert.True(t, utf8.ValidString(blockPrefix("Ñáñez")))
}

func TestResolve_EmptyNameRejected(t *testing.T) {
	r := NewResolver(newFakeStore())
	_, err := r.Resolve(context.Background(), Request{RawName: "   ", Source: "gdelt"})
	assert.Error(t, err)
}
