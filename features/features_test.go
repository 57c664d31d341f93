package features

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, header string, rows []string) {
	t.Helper()
	data := header + "\n" + strings.Join(rows, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
}

func TestHaversineIdentityAndSymmetry(t *testing.T) {
	points := [][2]float64{{40.7128, -74.0060}, {0, 0}, {-33.86, 151.2}, {89.9, 179.9}}
	for _, p := range points {
		assert.Equal(t, 0.0, HaversineDistance(p[0], p[1], p[0], p[1]))
	}
	for i := range points {
		for j := range points {
			a, b := points[i], points[j]
			assert.InDelta(t, HaversineDistance(a[0], a[1], b[0], b[1]), HaversineDistance(b[0], b[1], a[0], a[1]), 1e-9)
		}
	}
}

func TestHaversineReferenceDistance(t *testing.T) {
	d := HaversineDistance(40.7128, -74.0060, 34.0522, -118.2437)
	assert.InDelta(t, 3935.0, d, 5.0)
}

func TestHaversineSmallDistanceIsStable(t *testing.T) {
	// ~1.1 m apart along a meridian
	d := HaversineDistance(40.75, -73.99, 40.75001, -73.99)
	assert.Greater(t, d, 0.0)
	assert.InDelta(t, 0.00111, d, 1e-5)
}

func TestBucketsForEastern(t *testing.T) {
	cases := []struct {
		in      string
		hour    int
		weekday int
		amOrPm  int
	}{
		// EDT, Monday
		{"2010-04-19 08:17:56 UTC", 4, 0, 0},
		// EDT, Saturday
		{"2010-04-17 15:43:53 UTC", 11, 5, 0},
		// EST, crosses back into Thursday evening
		{"2010-01-01 00:30:00 UTC", 19, 3, 1},
		// noon local is pm
		{"2012-07-01 16:00:00 UTC", 12, 6, 1},
	}
	for _, c := range cases {
		ts, err := ParsePickup(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, time.UTC, ts.Location())
		b := BucketsFor(ts)
		assert.Equal(t, c.hour, b.Hour, c.in)
		assert.Equal(t, c.weekday, b.Weekday, c.in)
		assert.Equal(t, c.amOrPm, b.AmOrPm, c.in)
	}
}

func TestParsePickupRejectsOtherFormats(t *testing.T) {
	for _, s := range []string{
		"2010-04-19T08:17:56Z",
		"2010-04-19 08:17:56",
		"",
		"yesterday",
		"2010-04-19 08:17:56.123 UTC",
		"2010-04-19 8:17:56 UTC",
		"  2010-04-19 08:17:56 UTC  ",
		"2010-04-19 08:17:56,5 UTC",
		"2010-13-19 08:17:56 UTC",
		"2010-04-19 08:17:56 utc",
	} {
		_, err := ParsePickup(s)
		require.Error(t, err, s)
		assert.True(t, errors.Is(err, ErrData))
	}
}

func TestEngineerAllFailsWholeBatch(t *testing.T) {
	raw := []RawRecord{
		{FareAmount: 6.5, PickupDatetime: "2010-04-19 08:17:56 UTC"},
		{FareAmount: 7.5, PickupDatetime: "not a time"},
	}
	out, err := EngineerAll(raw)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.True(t, errors.Is(err, ErrData))
	assert.Contains(t, err.Error(), "row 2")
}

func TestEngineerPreservesFields(t *testing.T) {
	r := RawRecord{
		FareAmount: 10.1, PickupDatetime: "2010-04-19 08:17:56 UTC",
		PickupLongitude: -73.992365, PickupLatitude: 40.730521,
		DropoffLongitude: -73.975499, DropoffLatitude: 40.744746,
		PassengerCount: 1,
	}
	e, err := Engineer(r)
	require.NoError(t, err)
	assert.Equal(t, r.FareAmount, e.FareAmount)
	assert.Equal(t, r.PickupLatitude, e.PickupLatitude)
	assert.Equal(t, r.DropoffLongitude, e.DropoffLongitude)
	assert.Equal(t, 1.0, e.PassengerCount)
	assert.InDelta(t, 2.13, e.Distance, 0.05)
	assert.False(t, math.IsNaN(e.Distance))
	require.NoError(t, e.Validate())
}

func TestPrepareFileWritesPreparedHeaderInOrder(t *testing.T) {
	dir := t.TempDir()
	rawPath := filepath.Join(dir, "NYCTaxiFares.csv")
	outPath := filepath.Join(dir, "out", "TaxiFaresPrepared.csv")
	writeFile(t, rawPath,
		"pickup_datetime,fare_amount,fare_class,pickup_longitude,pickup_latitude,dropoff_longitude,dropoff_latitude,passenger_count",
		[]string{
			"2010-04-19 08:17:56 UTC,6.5,0,-73.992365,40.730521,-73.975499,40.744746,1",
			"2010-04-17 15:43:53 UTC,6.9,0,-73.990078,40.740558,-73.974232,40.744114,1",
			"2010-04-17 11:23:26 UTC,10.1,1,-73.994149,40.751118,-73.960064,40.766235,2",
		})

	n, err := PrepareFile(rawPath, outPath, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	firstLine := strings.SplitN(string(data), "\n", 2)[0]
	assert.Equal(t, strings.Join(PreparedColumns, ","), firstLine)

	recs, err := ReadPrepared(outPath)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, 6.5, recs[0].FareAmount)
	assert.Equal(t, 10.1, recs[2].FareAmount)
	assert.Equal(t, 2.0, recs[2].PassengerCount)
	assert.Equal(t, 0, recs[0].PickupWeekday)
	assert.Equal(t, 5, recs[1].PickupWeekday)
	assert.Equal(t, 7, recs[2].PickupHour)
}

func TestReadRawMissingFileIsDataError(t *testing.T) {
	_, err := ReadRaw(filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrData))
}

func TestReadRawMissingColumn(t *testing.T) {
	p := filepath.Join(t.TempDir(), "raw.csv")
	writeFile(t, p, "fare_amount,pickup_datetime", []string{"1,2010-04-19 08:17:56 UTC"})
	_, err := ReadRaw(p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrData))
	assert.Contains(t, err.Error(), "pickup_longitude")
}

func TestReadPreparedRejectsOutOfRangeCategory(t *testing.T) {
	p := filepath.Join(t.TempDir(), "prepared.csv")
	writeFile(t, p, strings.Join(PreparedColumns, ","), []string{
		"6.5,40.7,-73.9,40.7,-73.9,1,2.1,24,0,1",
	})
	_, err := ReadPrepared(p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrData))
}
