package edgar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venwatch/venwatch/internal/event"
)

func hit(id, filer, fileType, date string) Hit {
	var h Hit
	h.ID = id
	h.Source.DisplayNames = []string{filer}
	h.Source.FileType = fileType
	h.Source.FileDate = date
	return h
}

func TestTransform_FilingMention(t *testing.T) {
	hits := []Hit{hit("0001193125-26-012345:d12345d10k.htm", "Chevron Corp (CVX)", "10-K", "2026-08-20")}

	evs := Transform(hits, 0.95)
	require.Len(t, evs, 1)
	ev := evs[0]

	assert.Equal(t, "0001193125-26-012345:d12345d10k.htm", ev.SourceEventID)
	assert.Equal(t, time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC), ev.EventTimestamp)
	assert.Equal(t, event.CategoryRegulatory, ev.Category, "no keyword hit falls back to regulatory")
	assert.Equal(t, "FILING_MENTION", ev.EventType)
	assert.Equal(t, "https://www.sec.gov/Archives/edgar/data/000119312526012345/d12345d10k.htm", ev.SourceURL)
	require.NotNil(t, ev.Actor1)
	assert.Equal(t, event.ActorCorporate, ev.Actor1.Type)
	require.NoError(t, ev.Validate())
}

func TestTransform_KeywordCategory(t *testing.T) {
	hits := []Hit{hit("a:b", "PDVSA Finance Ltd", "8-K", "2026-08-20")}
	evs := Transform(hits, 0.95)
	require.Len(t, evs, 1)
	assert.Equal(t, event.CategoryEnergy, evs[0].Category, "filer name matches the pdvsa keyword")
}

func TestTransform_SkipsBadHits(t *testing.T) {
	hits := []Hit{
		hit("", "Acme", "10-Q", "2026-08-20"),
		hit("x:y", "Acme", "10-Q", ""),
		hit("x:y", "Acme", "10-Q", "20/08/2026"),
		hit("ok:doc.htm", "Acme", "10-Q", "2026-08-20"),
	}
	assert.Len(t, Transform(hits, 0.95), 1)
}

func TestTransform_MissingFilerAndFormFallbacks(t *testing.T) {
	var h Hit
	h.ID = "acc:doc.htm"
	h.Source.FileDate = "2026-08-20"
	h.Source.RootForms = []string{"SC 13D"}

	evs := Transform([]Hit{h}, 0.95)
	require.Len(t, evs, 1)
	assert.Nil(t, evs[0].Actor1)
	assert.Equal(t, "SC 13D", evs[0].Metadata["file_type"])
}

func TestFilingURL(t *testing.T) {
	assert.Equal(t, "", filingURL("no-colon"))
	assert.Equal(t,
		"https://www.sec.gov/Archives/edgar/data/000119312526012345/doc.htm",
		filingURL("0001193125-26-012345:doc.htm"))
}

func TestSchedule(t *testing.T) {
	a := New("", time.Second)
	assert.Equal(t, event.SourceSECEdgar, a.Source())
	assert.Equal(t, 6*time.Hour, a.Schedule().Frequency)
}
