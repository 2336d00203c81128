package tz

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmornati/homeplate/internal/config"
)

func central() *Timezone {
	return New(
		Rule{Abbrev: "CEST", Week: Last, DOW: Sunday, Month: 3, Hour: 2, Offset: 120},
		Rule{Abbrev: "CET", Week: Last, DOW: Sunday, Month: 10, Hour: 3, Offset: 60},
	)
}

func utc(y int, m time.Month, d, h, min, s int) int64 {
	return time.Date(y, m, d, h, min, s, 0, time.UTC).Unix()
}

func TestCentralEuropeTransitions(t *testing.T) {
	z := central()

	// 2024: DST с 31 марта 01:00 UTC до 27 октября 01:00 UTC
	tests := []struct {
		name   string
		at     int64
		offset int64
		abbrev string
	}{
		{"winter", utc(2024, time.January, 15, 12, 0, 0), 3600, "CET"},
		{"before spring", utc(2024, time.March, 31, 0, 59, 59), 3600, "CET"},
		{"spring", utc(2024, time.March, 31, 1, 0, 0), 7200, "CEST"},
		{"summer", utc(2024, time.July, 1, 0, 0, 0), 7200, "CEST"},
		{"before autumn", utc(2024, time.October, 27, 0, 59, 59), 7200, "CEST"},
		{"autumn", utc(2024, time.October, 27, 1, 0, 0), 3600, "CET"},
		{"new year", utc(2024, time.December, 31, 23, 59, 59), 3600, "CET"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.offset, z.Offset(tt.at))
			assert.Equal(t, tt.abbrev, z.Abbrev(tt.at))
			assert.Equal(t, tt.at+tt.offset, z.ToLocal(tt.at))
		})
	}
}

func TestTransitionLastSunday(t *testing.T) {
	// последнее воскресенье октября 2023 это 29-е, марта 2025 это 30-е
	r := Rule{Week: Last, DOW: Sunday, Month: 10, Hour: 3}
	assert.Equal(t, utc(2023, time.October, 29, 3, 0, 0), transition(r, 2023))
	r = Rule{Week: Last, DOW: Sunday, Month: 3, Hour: 2}
	assert.Equal(t, utc(2025, time.March, 30, 2, 0, 0), transition(r, 2025))
	// последнее воскресенье декабря: переход через год
	r = Rule{Week: Last, DOW: Sunday, Month: 12, Hour: 0}
	assert.Equal(t, utc(2024, time.December, 29, 0, 0, 0), transition(r, 2024))
	// второе воскресенье марта 2024: 10-е
	r = Rule{Week: 2, DOW: Sunday, Month: 3, Hour: 2}
	assert.Equal(t, utc(2024, time.March, 10, 2, 0, 0), transition(r, 2024))
}

func TestSouthernHemisphere(t *testing.T) {
	// AEDT: первое воскресенье октября, AEST: первое воскресенье апреля
	z := New(
		Rule{Abbrev: "AEDT", Week: 1, DOW: Sunday, Month: 10, Hour: 2, Offset: 660},
		Rule{Abbrev: "AEST", Week: 1, DOW: Sunday, Month: 4, Hour: 3, Offset: 600},
	)
	assert.Equal(t, int64(11*3600), z.Offset(utc(2024, time.January, 10, 0, 0, 0)))
	assert.Equal(t, int64(10*3600), z.Offset(utc(2024, time.July, 10, 0, 0, 0)))
	assert.Equal(t, int64(11*3600), z.Offset(utc(2024, time.December, 10, 0, 0, 0)))
	assert.True(t, z.IsDST(utc(2024, time.February, 1, 0, 0, 0)))
}

func TestNegativeOffset(t *testing.T) {
	z := New(
		Rule{Abbrev: "EDT", Week: 2, DOW: Sunday, Month: 3, Hour: 2, Offset: -240},
		Rule{Abbrev: "EST", Week: 1, DOW: Sunday, Month: 11, Hour: 2, Offset: -300},
	)
	assert.Equal(t, int64(-5*3600), z.Offset(utc(2024, time.January, 1, 12, 0, 0)))
	assert.Equal(t, int64(-4*3600), z.Offset(utc(2024, time.June, 1, 12, 0, 0)))
}

func TestOffsetDeterministicAndRoundTrips(t *testing.T) {
	zones := []*Timezone{central(), Fixed("UTC", 0), Fixed("IST", 330), Fixed("HST", -600)}
	start := config.MinPlausibleEpoch
	for _, z := range zones {
		for e := start; e < start+40*365*secsPerDay; e += 7*secsPerDay + 3607 {
			off := z.Offset(e)
			require.Equal(t, off, z.Offset(e))
			require.Equal(t, e, e+off-off)
			require.Equal(t, e, z.ToLocal(e)-off)
		}
	}
}

func TestToUTC(t *testing.T) {
	z := central()
	for _, e := range []int64{
		utc(2024, time.January, 15, 12, 0, 0),
		utc(2024, time.July, 1, 0, 0, 0),
		utc(2030, time.May, 5, 5, 5, 5),
	} {
		assert.Equal(t, e, z.ToUTC(z.ToLocal(e)))
	}
}

func TestFixedHasNoDST(t *testing.T) {
	z := Fixed("UTC", 0)
	assert.False(t, z.IsDST(utc(2024, time.July, 1, 0, 0, 0)))
	assert.Equal(t, int64(0), z.Offset(utc(2024, time.July, 1, 0, 0, 0)))
}

func TestFromConfig(t *testing.T) {
	z := FromConfig(config.Default().Timezone)
	assert.Equal(t, central().Offset(utc(2024, time.July, 1, 0, 0, 0)), z.Offset(utc(2024, time.July, 1, 0, 0, 0)))
	assert.Equal(t, "CET", z.Abbrev(utc(2024, time.January, 1, 0, 0, 0)))
}
