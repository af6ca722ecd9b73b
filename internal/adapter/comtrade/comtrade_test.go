package comtrade

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venwatch/venwatch/internal/event"
)

func oilExport(period string, value float64) Record {
	return Record{
		Period:        period,
		ReporterCode:  "862",
		PartnerCode:   "156",
		CommodityCode: "27",
		FlowDesc:      "Export",
		PrimaryValue:  value,
	}
}

func TestTransform_AggregatesPartnersAndComputesSwing(t *testing.T) {
	records := []Record{
		oilExport("202601", 600_000_000),
		{Period: "202601", CommodityCode: "27", FlowDesc: "Export", PartnerCode: "356", PrimaryValue: 400_000_000},
		oilExport("202602", 700_000_000),
	}

	evs := Transform(records, 0.9)
	require.Len(t, evs, 2)

	jan := evs[0]
	assert.Equal(t, event.CategoryEnergy, jan.Category, "HS 27 is mineral fuels")
	assert.Equal(t, []string{"OIL"}, jan.Commodities)
	assert.Nil(t, jan.MagnitudeRaw, "no prior period in batch")
	assert.Equal(t, 1_000_000_000.0, jan.Metadata["value_usd"])
	require.NoError(t, jan.Validate())

	feb := evs[1]
	require.NotNil(t, feb.MagnitudeRaw)
	assert.InDelta(t, -30.0, *feb.MagnitudeRaw, 1e-9, "700M against 1000M")
	assert.Equal(t, event.DirectionNegative, feb.Direction, "falling exports are adverse")
	assert.InDelta(t, 0.6, *feb.MagnitudeNorm, 1e-9)
}

func TestTransform_ImportDirectionInverted(t *testing.T) {
	records := []Record{
		{Period: "202601", CommodityCode: "30", FlowDesc: "Import", PrimaryValue: 100},
		{Period: "202602", CommodityCode: "30", FlowDesc: "Import", PrimaryValue: 150},
	}
	evs := Transform(records, 0.9)
	require.Len(t, evs, 2)
	assert.Equal(t, event.DirectionNegative, evs[1].Direction, "rising import dependence is adverse")
	assert.Equal(t, event.CategoryHealthcare, evs[1].Category)
}

func TestTransform_SkipsBadRecords(t *testing.T) {
	records := []Record{
		{Period: "", CommodityCode: "27"},
		{Period: "202601", CommodityCode: ""},
		oilExport("202601", 10),
	}
	assert.Len(t, Transform(records, 0.9), 1)
}

func TestPeriodHelpers(t *testing.T) {
	assert.Equal(t, "202512", previousPeriod("202601"))
	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "202601,202602,202603", periodRange(start, end))
}

func TestSchedule(t *testing.T) {
	a := New("", "", nil, time.Second)
	assert.Equal(t, event.SourceUNComtrade, a.Source())
	assert.Equal(t, 24*time.Hour, a.Schedule().Frequency)
}
