// readings_test.go: tests for reading persistence, filtering and pagination.
package datastore

import (
	"fmt"
	"testing"
	"time"

	"github.com/ecosense/ecosense-go/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveReading_Validation(t *testing.T) {
	t.Parallel()

	settings := createTestSettings(t)
	ds := createDatabase(t, settings)

	sensor := createTestSensor(t, ds, "valid-1", "air_quality")

	// empty channel map
	err := ds.SaveReading(&SensorReading{
		SensorID:  sensor.ID,
		Timestamp: time.Now().UTC(),
		Channels:  ChannelValues{},
	})
	require.Error(t, err)
	assert.Equal(t, errors.CategoryValidation, errors.CategoryOf(err))

	// non-scalar channel value
	err = ds.SaveReading(&SensorReading{
		SensorID:  sensor.ID,
		Timestamp: time.Now().UTC(),
		Channels:  ChannelValues{"spectrum": []any{1.0, 2.0}},
	})
	require.Error(t, err)
	assert.Equal(t, errors.CategoryValidation, errors.CategoryOf(err))

	// zero timestamp
	err = ds.SaveReading(&SensorReading{
		SensorID: sensor.ID,
		Channels: ChannelValues{"pm25": 12.5},
	})
	require.Error(t, err)
	assert.Equal(t, errors.CategoryValidation, errors.CategoryOf(err))
}

func TestSaveReading_UnknownSensorRejected(t *testing.T) {
	t.Parallel()

	settings := createTestSettings(t)
	ds := createDatabase(t, settings)

	err := ds.SaveReading(&SensorReading{
		SensorID:  4242,
		Timestamp: time.Now().UTC(),
		Channels:  ChannelValues{"pm25": 12.5},
	})
	require.Error(t, err, "Reading for an unregistered sensor must be rejected")
	assert.ErrorIs(t, err, ErrSensorMissing)
	assert.Equal(t, errors.CategoryReferential, errors.CategoryOf(err))
}

func TestSaveReading_ChannelsRoundTrip(t *testing.T) {
	t.Parallel()

	settings := createTestSettings(t)
	ds := createDatabase(t, settings)

	sensor := createTestSensor(t, ds, "roundtrip-1", "multi")
	ts := time.Date(2026, 5, 2, 8, 15, 0, 0, time.UTC)

	reading := SensorReading{
		SensorID:  sensor.ID,
		Timestamp: ts,
		Channels: ChannelValues{
			"temperature": 23.4,
			"door_open":   true,
			"firmware":    "v2.1.0",
		},
	}
	require.NoError(t, ds.SaveReading(&reading))

	found, err := ds.SearchReadings(ReadingFilter{SensorID: &sensor.ID})
	require.NoError(t, err)
	require.Len(t, found, 1)

	got := found[0].Channels
	assert.InDelta(t, 23.4, got["temperature"], 0.0001)
	assert.Equal(t, true, got["door_open"])
	assert.Equal(t, "v2.1.0", got["firmware"])
	assert.Equal(t, sensor.ExternalID, found[0].Sensor.ExternalID, "Sensor should be preloaded")
}

// seedReadings persists n readings one minute apart, oldest first, starting at base.
func seedReadings(t *testing.T, ds Interface, sensorID uint, base time.Time, n int) []SensorReading {
	t.Helper()
	readings := make([]SensorReading, 0, n)
	for i := 0; i < n; i++ {
		reading := SensorReading{
			SensorID:  sensorID,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Channels:  ChannelValues{"seq": float64(i)},
		}
		require.NoError(t, ds.SaveReading(&reading))
		readings = append(readings, reading)
	}
	return readings
}

func TestSearchReadings_OrderingAndPagination(t *testing.T) {
	t.Parallel()

	settings := createTestSettings(t)
	ds := createDatabase(t, settings)

	sensor := createTestSensor(t, ds, "page-1", "weather")
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	seedReadings(t, ds, sensor.ID, base, 30)

	// Default limit applies when none is given.
	page, err := ds.SearchReadings(ReadingFilter{SensorID: &sensor.ID})
	require.NoError(t, err)
	assert.Len(t, page, DefaultReadingLimit)

	// Most recent event timestamp first.
	for i := 1; i < len(page); i++ {
		assert.False(t, page[i].Timestamp.After(page[i-1].Timestamp),
			"Readings must be ordered by timestamp descending")
	}
	assert.True(t, page[0].Timestamp.Equal(base.Add(29*time.Minute)))

	// Offset past part of the set returns the remainder.
	page, err = ds.SearchReadings(ReadingFilter{SensorID: &sensor.ID, Limit: 10, Offset: 25})
	require.NoError(t, err)
	assert.Len(t, page, 5)

	// Offset beyond the set returns an empty page, not an error.
	page, err = ds.SearchReadings(ReadingFilter{SensorID: &sensor.ID, Limit: 10, Offset: 100})
	require.NoError(t, err)
	assert.Empty(t, page)

	// Requested limits above the cap are clamped.
	for i := 0; i < 80; i++ {
		createTestReading(t, ds, sensor.ID, base.Add(time.Duration(30+i)*time.Minute))
	}
	page, err = ds.SearchReadings(ReadingFilter{SensorID: &sensor.ID, Limit: 500})
	require.NoError(t, err)
	assert.Len(t, page, MaxReadingLimit)

	count, err := ds.CountReadings(ReadingFilter{SensorID: &sensor.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 110, count, "Count ignores limit and offset")
}

func TestSearchReadings_TimeBoundsInclusive(t *testing.T) {
	t.Parallel()

	settings := createTestSettings(t)
	ds := createDatabase(t, settings)

	sensor := createTestSensor(t, ds, "bounds-1", "weather")
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	seedReadings(t, ds, sensor.ID, base, 5)

	start := base.Add(1 * time.Minute)
	end := base.Add(3 * time.Minute)
	page, err := ds.SearchReadings(ReadingFilter{SensorID: &sensor.ID, StartTime: &start, EndTime: &end})
	require.NoError(t, err)
	require.Len(t, page, 3, "Both bounds are inclusive")
	assert.True(t, page[0].Timestamp.Equal(end))
	assert.True(t, page[2].Timestamp.Equal(start))
}

func TestReadingsSince_AscendingAcrossSensors(t *testing.T) {
	t.Parallel()

	settings := createTestSettings(t)
	ds := createDatabase(t, settings)

	base := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		sensor := createTestSensor(t, ds, fmt.Sprintf("since-%d", i), "soil")
		seedReadings(t, ds, sensor.ID, base.Add(time.Duration(i)*time.Second), 4)
	}

	cutoff := base.Add(2 * time.Minute)
	readings, err := ds.ReadingsSince(cutoff)
	require.NoError(t, err)
	require.Len(t, readings, 6, "Two readings per sensor at or after the cutoff")
	for i := 1; i < len(readings); i++ {
		assert.False(t, readings[i].Timestamp.Before(readings[i-1].Timestamp),
			"ReadingsSince must be ordered oldest first")
	}
	for _, r := range readings {
		assert.False(t, r.Timestamp.Before(cutoff), "Cutoff is inclusive")
	}
}

func TestDeleteReading_UnlinksAnomalies(t *testing.T) {
	t.Parallel()

	settings := createTestSettings(t)
	ds := createDatabase(t, settings)

	sensor := createTestSensor(t, ds, "unlink-1", "air_quality")
	reading := createTestReading(t, ds, sensor.ID, time.Now().UTC())

	anomaly := Anomaly{
		ReadingID:  &reading.ID,
		SensorID:   sensor.ID,
		DetectedAt: time.Now().UTC(),
		Score:      0.88,
		Category:   "environmental_imbalance",
	}
	require.NoError(t, ds.SaveAnomaly(&anomaly))

	require.NoError(t, ds.DeleteReading(reading.ID))

	// The anomaly row survives with its reading reference cleared.
	reloaded, err := ds.GetAnomaly(anomaly.ID)
	require.NoError(t, err)
	assert.Nil(t, reloaded.ReadingID, "Anomaly must outlive its triggering reading")
	assert.Equal(t, sensor.ID, reloaded.SensorID)
	assert.InDelta(t, 0.88, reloaded.Score, 0.0001)

	// Deleting an unknown reading reports not found.
	err = ds.DeleteReading(reading.ID)
	assert.ErrorIs(t, err, ErrReadingNotFound)
}
