// anomalies_test.go: tests for anomaly persistence and the review lifecycle.
package datastore

import (
	"testing"
	"time"

	"github.com/ecosense/ecosense-go/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestAnomaly persists an anomaly linked to the given sensor and reading.
func createTestAnomaly(t *testing.T, ds Interface, sensorID uint, readingID *uint, detectedAt time.Time) Anomaly {
	t.Helper()
	anomaly := Anomaly{
		ReadingID:            readingID,
		SensorID:             sensorID,
		DetectedAt:           detectedAt,
		Score:                0.91,
		Category:             "environmental_imbalance",
		ContributingChannels: StringList{"temperature", "humidity"},
		RawSnapshot:          ChannelValues{"temperature": 48.2, "humidity": 8.0},
	}
	require.NoError(t, ds.SaveAnomaly(&anomaly), "Failed to save test anomaly")
	require.NotZero(t, anomaly.ID)
	return anomaly
}

func TestSaveAnomaly_DefaultsAndReferentialChecks(t *testing.T) {
	t.Parallel()

	settings := createTestSettings(t)
	ds := createDatabase(t, settings)

	sensor := createTestSensor(t, ds, "anom-1", "air_quality")
	reading := createTestReading(t, ds, sensor.ID, time.Now().UTC())

	anomaly := createTestAnomaly(t, ds, sensor.ID, &reading.ID, time.Now().UTC())
	assert.Equal(t, AnomalyStatusNew, anomaly.Status, "Status should default to new")

	// unknown sensor
	err := ds.SaveAnomaly(&Anomaly{
		SensorID:   9999,
		DetectedAt: time.Now().UTC(),
		Score:      0.5,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSensorMissing)
	assert.Equal(t, errors.CategoryReferential, errors.CategoryOf(err))

	// unknown reading
	missing := uint(8888)
	err = ds.SaveAnomaly(&Anomaly{
		ReadingID:  &missing,
		SensorID:   sensor.ID,
		DetectedAt: time.Now().UTC(),
		Score:      0.5,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReadingNotFound)
	assert.Equal(t, errors.CategoryReferential, errors.CategoryOf(err))

	// zero detection time
	err = ds.SaveAnomaly(&Anomaly{SensorID: sensor.ID, Score: 0.5})
	require.Error(t, err)
	assert.Equal(t, errors.CategoryValidation, errors.CategoryOf(err))
}

func TestSaveAnomaly_SnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	settings := createTestSettings(t)
	ds := createDatabase(t, settings)

	sensor := createTestSensor(t, ds, "snap-1", "soil")
	reading := createTestReading(t, ds, sensor.ID, time.Now().UTC())
	anomaly := createTestAnomaly(t, ds, sensor.ID, &reading.ID, time.Now().UTC())

	reloaded, err := ds.GetAnomaly(anomaly.ID)
	require.NoError(t, err)
	assert.Equal(t, StringList{"temperature", "humidity"}, reloaded.ContributingChannels)
	assert.InDelta(t, 48.2, reloaded.RawSnapshot["temperature"], 0.0001)
	assert.Equal(t, sensor.ExternalID, reloaded.Sensor.ExternalID, "Sensor should be preloaded")
	require.NotNil(t, reloaded.ReadingID)
	assert.Equal(t, reading.ID, *reloaded.ReadingID)
}

func TestSearchAnomalies_Filters(t *testing.T) {
	t.Parallel()

	settings := createTestSettings(t)
	ds := createDatabase(t, settings)

	sensorA := createTestSensor(t, ds, "filter-a", "air_quality")
	sensorB := createTestSensor(t, ds, "filter-b", "air_quality")

	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	first := createTestAnomaly(t, ds, sensorA.ID, nil, base)
	second := createTestAnomaly(t, ds, sensorA.ID, nil, base.Add(time.Hour))
	third := createTestAnomaly(t, ds, sensorB.ID, nil, base.Add(2*time.Hour))

	resolved := AnomalyStatusResolved
	_, err := ds.UpdateAnomalyStatus(second.ID, &resolved, nil)
	require.NoError(t, err)

	// no filter: everything, most recent detection first
	all, err := ds.SearchAnomalies(AnomalyFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, third.ID, all[0].ID)
	assert.Equal(t, first.ID, all[2].ID)

	// status filter
	page, err := ds.SearchAnomalies(AnomalyFilter{Status: &resolved})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, second.ID, page[0].ID)

	// sensor filter
	page, err = ds.SearchAnomalies(AnomalyFilter{SensorID: &sensorA.ID})
	require.NoError(t, err)
	assert.Len(t, page, 2)

	// inclusive time window
	start := base.Add(time.Hour)
	end := base.Add(2 * time.Hour)
	page, err = ds.SearchAnomalies(AnomalyFilter{StartTime: &start, EndTime: &end})
	require.NoError(t, err)
	assert.Len(t, page, 2)
}

func TestUpdateAnomalyStatus_Lifecycle(t *testing.T) {
	t.Parallel()

	settings := createTestSettings(t)
	ds := createDatabase(t, settings)

	sensor := createTestSensor(t, ds, "lifecycle-1", "water_quality")
	anomaly := createTestAnomaly(t, ds, sensor.ID, nil, time.Now().UTC())

	status := AnomalyStatusInvestigating
	notes := "checked pump intake, sediment buildup"
	updated, err := ds.UpdateAnomalyStatus(anomaly.ID, &status, &notes)
	require.NoError(t, err)
	assert.Equal(t, status, updated.Status)
	assert.Equal(t, notes, updated.Notes)

	// Notes-only update leaves the status unchanged.
	moreNotes := "false alarm after flushing"
	updated, err = ds.UpdateAnomalyStatus(anomaly.ID, nil, &moreNotes)
	require.NoError(t, err)
	assert.Equal(t, status, updated.Status)
	assert.Equal(t, moreNotes, updated.Notes)

	// Empty string clears the notes.
	empty := ""
	updated, err = ds.UpdateAnomalyStatus(anomaly.ID, nil, &empty)
	require.NoError(t, err)
	assert.Empty(t, updated.Notes)

	// Status outside the lifecycle is rejected before storage is touched.
	bad := "ignored"
	_, err = ds.UpdateAnomalyStatus(anomaly.ID, &bad, nil)
	require.Error(t, err)
	assert.Equal(t, errors.CategoryValidation, errors.CategoryOf(err))
	reloaded, err := ds.GetAnomaly(anomaly.ID)
	require.NoError(t, err)
	assert.Equal(t, status, reloaded.Status, "Rejected update must not mutate the row")

	// Neither field supplied.
	_, err = ds.UpdateAnomalyStatus(anomaly.ID, nil, nil)
	require.Error(t, err)
	assert.Equal(t, errors.CategoryValidation, errors.CategoryOf(err))

	// Unknown anomaly.
	_, err = ds.UpdateAnomalyStatus(12345, &status, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAnomalyNotFound)
}
