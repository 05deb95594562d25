package ingest

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/ecosense/ecosense-go/internal/conf"
	"github.com/ecosense/ecosense-go/internal/datastore"
	"github.com/ecosense/ecosense-go/internal/detector"
	"github.com/ecosense/ecosense-go/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockStore implements datastore.Interface for pipeline tests.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Open() error  { return m.Called().Error(0) }
func (m *MockStore) Close() error { return m.Called().Error(0) }

func (m *MockStore) CreateSensor(sensor *datastore.Sensor) error {
	return m.Called(sensor).Error(0)
}

func (m *MockStore) GetSensor(id uint) (datastore.Sensor, error) {
	args := m.Called(id)
	return args.Get(0).(datastore.Sensor), args.Error(1)
}

func (m *MockStore) GetSensorByExternalID(externalID string) (datastore.Sensor, error) {
	args := m.Called(externalID)
	return args.Get(0).(datastore.Sensor), args.Error(1)
}

func (m *MockStore) ResolveSensor(candidate string) (datastore.Sensor, error) {
	args := m.Called(candidate)
	return args.Get(0).(datastore.Sensor), args.Error(1)
}

func (m *MockStore) ListSensors() ([]datastore.Sensor, error) {
	args := m.Called()
	return args.Get(0).([]datastore.Sensor), args.Error(1)
}

func (m *MockStore) UpdateSensor(id uint, update datastore.SensorUpdate) (datastore.Sensor, error) {
	args := m.Called(id, update)
	return args.Get(0).(datastore.Sensor), args.Error(1)
}

func (m *MockStore) DeleteSensor(id uint) error {
	return m.Called(id).Error(0)
}

func (m *MockStore) TouchSensor(id uint, seenAt time.Time) error {
	return m.Called(id, seenAt).Error(0)
}

func (m *MockStore) SaveReading(reading *datastore.SensorReading) error {
	return m.Called(reading).Error(0)
}

func (m *MockStore) SearchReadings(filter datastore.ReadingFilter) ([]datastore.SensorReading, error) {
	args := m.Called(filter)
	return args.Get(0).([]datastore.SensorReading), args.Error(1)
}

func (m *MockStore) CountReadings(filter datastore.ReadingFilter) (int64, error) {
	args := m.Called(filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) ReadingsSince(cutoff time.Time) ([]datastore.SensorReading, error) {
	args := m.Called(cutoff)
	return args.Get(0).([]datastore.SensorReading), args.Error(1)
}

func (m *MockStore) DeleteReading(id uint) error {
	return m.Called(id).Error(0)
}

func (m *MockStore) SaveAnomaly(anomaly *datastore.Anomaly) error {
	return m.Called(anomaly).Error(0)
}

func (m *MockStore) SearchAnomalies(filter datastore.AnomalyFilter) ([]datastore.Anomaly, error) {
	args := m.Called(filter)
	return args.Get(0).([]datastore.Anomaly), args.Error(1)
}

func (m *MockStore) GetAnomaly(id uint) (datastore.Anomaly, error) {
	args := m.Called(id)
	return args.Get(0).(datastore.Anomaly), args.Error(1)
}

func (m *MockStore) UpdateAnomalyStatus(id uint, status, notes *string) (datastore.Anomaly, error) {
	args := m.Called(id, status, notes)
	return args.Get(0).(datastore.Anomaly), args.Error(1)
}

// MockDetector implements detector.Interface for pipeline tests.
type MockDetector struct {
	mock.Mock
}

func (m *MockDetector) Score(ctx context.Context, externalSensorID string, timestamp time.Time, channels datastore.ChannelValues) (*detector.Verdict, error) {
	args := m.Called(ctx, externalSensorID, timestamp, channels)
	verdict, _ := args.Get(0).(*detector.Verdict)
	return verdict, args.Error(1)
}

func (m *MockDetector) Retrain(ctx context.Context, batch []datastore.ChannelValues) (map[string]any, error) {
	args := m.Called(ctx, batch)
	ack, _ := args.Get(0).(map[string]any)
	return ack, args.Error(1)
}

func (m *MockDetector) HealthCheck(ctx context.Context) bool {
	return m.Called(ctx).Bool(0)
}

func testSettings() *conf.Settings {
	settings := &conf.Settings{}
	settings.Retrain.WindowDays = 30
	return settings
}

func newTestPipeline(ds datastore.Interface, det detector.Interface) *Pipeline {
	return New(ds, det, testSettings(), nil, slog.Default())
}

func testSensor() datastore.Sensor {
	return datastore.Sensor{
		ID:         7,
		ExternalID: "field-042",
		Name:       "air_quality-field-042",
		Type:       "air_quality",
		Status:     datastore.SensorStatusActive,
	}
}

func testRequest() *Request {
	return &Request{
		SensorID:  "field-042",
		Timestamp: time.Date(2026, 5, 2, 8, 15, 0, 0, time.UTC),
		Data:      datastore.ChannelValues{"temperature": 42.7},
	}
}

func TestProcessReading_NormalVerdict(t *testing.T) {
	t.Parallel()

	ds := new(MockStore)
	det := new(MockDetector)
	req := testRequest()
	sensor := testSensor()

	ds.On("ResolveSensor", "field-042").Return(sensor, nil)
	ds.On("SaveReading", mock.AnythingOfType("*datastore.SensorReading")).
		Run(func(args mock.Arguments) {
			reading := args.Get(0).(*datastore.SensorReading)
			assert.Equal(t, sensor.ID, reading.SensorID)
			reading.ID = 101
		}).Return(nil)
	ds.On("TouchSensor", sensor.ID, req.Timestamp).Return(nil)
	det.On("Score", mock.Anything, "field-042", req.Timestamp, req.Data).
		Return(&detector.Verdict{IsAnomaly: false, Score: 0.1}, nil)

	pipeline := newTestPipeline(ds, det)
	result, err := pipeline.ProcessReading(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, uint(101), result.ReadingID)
	assert.False(t, result.Anomaly)
	assert.InDelta(t, 0.1, result.Score, 0.0001)

	ds.AssertNotCalled(t, "SaveAnomaly", mock.Anything)
	ds.AssertExpectations(t)
	det.AssertExpectations(t)
}

func TestProcessReading_AnomalyVerdictMaterializesRecord(t *testing.T) {
	t.Parallel()

	ds := new(MockStore)
	det := new(MockDetector)
	req := testRequest()
	sensor := testSensor()

	ds.On("ResolveSensor", "field-042").Return(sensor, nil)
	ds.On("SaveReading", mock.AnythingOfType("*datastore.SensorReading")).
		Run(func(args mock.Arguments) {
			args.Get(0).(*datastore.SensorReading).ID = 202
		}).Return(nil)
	ds.On("TouchSensor", sensor.ID, req.Timestamp).Return(nil)
	det.On("Score", mock.Anything, "field-042", req.Timestamp, req.Data).
		Return(&detector.Verdict{
			IsAnomaly:            true,
			Score:                0.95,
			ContributingChannels: []string{"temperature"},
		}, nil)
	ds.On("SaveAnomaly", mock.AnythingOfType("*datastore.Anomaly")).
		Run(func(args mock.Arguments) {
			anomaly := args.Get(0).(*datastore.Anomaly)
			require.NotNil(t, anomaly.ReadingID)
			assert.Equal(t, uint(202), *anomaly.ReadingID)
			assert.Equal(t, sensor.ID, anomaly.SensorID)
			assert.Equal(t, DefaultAnomalyCategory, anomaly.Category)
			assert.Equal(t, datastore.AnomalyStatusNew, anomaly.Status)
			assert.InDelta(t, 0.95, anomaly.Score, 0.0001)
			assert.Equal(t, datastore.StringList{"temperature"}, anomaly.ContributingChannels)
			assert.Equal(t, req.Data, anomaly.RawSnapshot)
		}).Return(nil)

	pipeline := newTestPipeline(ds, det)
	result, err := pipeline.ProcessReading(context.Background(), req)

	require.NoError(t, err)
	assert.True(t, result.Anomaly)
	assert.InDelta(t, 0.95, result.Score, 0.0001)

	ds.AssertExpectations(t)
	det.AssertExpectations(t)
}

func TestProcessReading_ValidationRejectsBeforePersistence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  *Request
	}{
		{"blank_sensor_id", &Request{Timestamp: time.Now(), Data: datastore.ChannelValues{"x": 1.0}}},
		{"zero_timestamp", &Request{SensorID: "field-042", Data: datastore.ChannelValues{"x": 1.0}}},
		{"empty_data", &Request{SensorID: "field-042", Timestamp: time.Now(), Data: datastore.ChannelValues{}}},
		{"non_scalar_data", &Request{SensorID: "field-042", Timestamp: time.Now(), Data: datastore.ChannelValues{"x": map[string]any{}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ds := new(MockStore)
			det := new(MockDetector)
			pipeline := newTestPipeline(ds, det)

			result, err := pipeline.ProcessReading(context.Background(), tt.req)

			require.Error(t, err)
			assert.Nil(t, result)
			assert.Equal(t, errors.CategoryValidation, errors.CategoryOf(err))
			ds.AssertNotCalled(t, "SaveReading", mock.Anything)
			det.AssertNotCalled(t, "Score", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestProcessReading_UnknownSensorRefused(t *testing.T) {
	t.Parallel()

	ds := new(MockStore)
	det := new(MockDetector)

	ds.On("ResolveSensor", "ghost-1").
		Return(datastore.Sensor{}, datastore.ErrSensorNotFound)

	pipeline := newTestPipeline(ds, det)
	result, err := pipeline.ProcessReading(context.Background(), &Request{
		SensorID:  "ghost-1",
		Timestamp: time.Now().UTC(),
		Data:      datastore.ChannelValues{"temperature": 20.0},
	})

	require.Error(t, err, "Ingestion must refuse to auto-register unknown sensors")
	assert.Nil(t, result)
	assert.Equal(t, errors.CategoryNotFound, errors.CategoryOf(err))
	assert.Contains(t, err.Error(), "not registered")
	ds.AssertNotCalled(t, "SaveReading", mock.Anything)
	ds.AssertNotCalled(t, "CreateSensor", mock.Anything)
}

func TestProcessReading_ReadingRetainedOnDetectorFailure(t *testing.T) {
	t.Parallel()

	ds := new(MockStore)
	det := new(MockDetector)
	req := testRequest()
	sensor := testSensor()

	ds.On("ResolveSensor", "field-042").Return(sensor, nil)
	ds.On("SaveReading", mock.AnythingOfType("*datastore.SensorReading")).
		Run(func(args mock.Arguments) {
			args.Get(0).(*datastore.SensorReading).ID = 303
		}).Return(nil)
	ds.On("TouchSensor", sensor.ID, req.Timestamp).Return(nil)
	det.On("Score", mock.Anything, "field-042", req.Timestamp, req.Data).
		Return(nil, errors.Newf("detector unreachable").
			Component("detector").
			Category(errors.CategoryNetwork).
			Build())

	pipeline := newTestPipeline(ds, det)
	result, err := pipeline.ProcessReading(context.Background(), req)

	require.Error(t, err, "Detector failure must surface to the caller")
	assert.Nil(t, result)
	// The reading write happened and is never rolled back.
	ds.AssertCalled(t, "SaveReading", mock.AnythingOfType("*datastore.SensorReading"))
	ds.AssertNotCalled(t, "SaveAnomaly", mock.Anything)
}

func TestProcessReading_TouchFailureDoesNotFailRun(t *testing.T) {
	t.Parallel()

	ds := new(MockStore)
	det := new(MockDetector)
	req := testRequest()
	sensor := testSensor()

	ds.On("ResolveSensor", "field-042").Return(sensor, nil)
	ds.On("SaveReading", mock.AnythingOfType("*datastore.SensorReading")).Return(nil)
	ds.On("TouchSensor", sensor.ID, req.Timestamp).Return(assert.AnError)
	det.On("Score", mock.Anything, "field-042", req.Timestamp, req.Data).
		Return(&detector.Verdict{IsAnomaly: false, Score: 0.05}, nil)

	pipeline := newTestPipeline(ds, det)
	result, err := pipeline.ProcessReading(context.Background(), req)

	require.NoError(t, err, "A failed last-seen update never fails the run")
	assert.False(t, result.Anomaly)
}

func TestProcessReading_NotIdempotent(t *testing.T) {
	t.Parallel()

	ds := new(MockStore)
	det := new(MockDetector)
	req := testRequest()
	sensor := testSensor()

	var saved int
	ds.On("ResolveSensor", "field-042").Return(sensor, nil)
	ds.On("SaveReading", mock.AnythingOfType("*datastore.SensorReading")).
		Run(func(args mock.Arguments) {
			saved++
			args.Get(0).(*datastore.SensorReading).ID = uint(saved)
		}).Return(nil)
	ds.On("TouchSensor", sensor.ID, req.Timestamp).Return(nil)
	det.On("Score", mock.Anything, "field-042", req.Timestamp, req.Data).
		Return(&detector.Verdict{IsAnomaly: false, Score: 0.2}, nil)

	pipeline := newTestPipeline(ds, det)

	first, err := pipeline.ProcessReading(context.Background(), req)
	require.NoError(t, err)
	second, err := pipeline.ProcessReading(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 2, saved, "The same logical reading submitted twice produces two rows")
	assert.NotEqual(t, first.ReadingID, second.ReadingID)

	// The second run hits the resolve cache instead of the registry.
	ds.AssertNumberOfCalls(t, "ResolveSensor", 1)
}

func TestRetrain_ForwardsWindowedBatch(t *testing.T) {
	t.Parallel()

	ds := new(MockStore)
	det := new(MockDetector)

	readings := []datastore.SensorReading{
		{ID: 1, Channels: datastore.ChannelValues{"temperature": 20.0}},
		{ID: 2, Channels: datastore.ChannelValues{"temperature": 21.5}},
	}
	ds.On("ReadingsSince", mock.AnythingOfType("time.Time")).
		Run(func(args mock.Arguments) {
			cutoff := args.Get(0).(time.Time)
			expected := time.Now().AddDate(0, 0, -30)
			assert.WithinDuration(t, expected, cutoff, time.Minute)
		}).Return(readings, nil)
	det.On("Retrain", mock.Anything, []datastore.ChannelValues{
		{"temperature": 20.0},
		{"temperature": 21.5},
	}).Return(map[string]any{"message": "Model trained successfully"}, nil)

	pipeline := newTestPipeline(ds, det)
	ack, err := pipeline.Retrain(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "Model trained successfully", ack["message"])
	ds.AssertExpectations(t)
	det.AssertExpectations(t)
}

func TestRetrain_InsufficientDataSkipsDetector(t *testing.T) {
	t.Parallel()

	ds := new(MockStore)
	det := new(MockDetector)

	ds.On("ReadingsSince", mock.AnythingOfType("time.Time")).
		Return([]datastore.SensorReading{}, nil)

	pipeline := newTestPipeline(ds, det)
	ack, err := pipeline.Retrain(context.Background())

	require.Error(t, err)
	assert.Nil(t, ack)
	assert.Equal(t, errors.CategoryInsufficientData, errors.CategoryOf(err))
	det.AssertNotCalled(t, "Retrain", mock.Anything, mock.Anything)
}

func TestRetrain_DetectorFailurePropagates(t *testing.T) {
	t.Parallel()

	ds := new(MockStore)
	det := new(MockDetector)

	ds.On("ReadingsSince", mock.AnythingOfType("time.Time")).
		Return([]datastore.SensorReading{{ID: 1, Channels: datastore.ChannelValues{"x": 1.0}}}, nil)
	det.On("Retrain", mock.Anything, mock.Anything).
		Return(nil, errors.Newf("training failed").
			Component("detector").
			Category(errors.CategoryDetection).
			Build())

	pipeline := newTestPipeline(ds, det)
	ack, err := pipeline.Retrain(context.Background())

	require.Error(t, err)
	assert.Nil(t, ack)
	assert.Equal(t, errors.CategoryDetection, errors.CategoryOf(err))
}
