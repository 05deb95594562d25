// test_utils.go: mock datastore, mock detector and test environment setup
// shared by the handler tests in this package.
package api

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ecosense/ecosense-go/internal/conf"
	"github.com/ecosense/ecosense-go/internal/datastore"
	"github.com/ecosense/ecosense-go/internal/detector"
	"github.com/ecosense/ecosense-go/internal/ingest"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockDataStore implements datastore.Interface for handler tests.
type MockDataStore struct {
	mock.Mock
}

func (m *MockDataStore) Open() error  { return m.Called().Error(0) }
func (m *MockDataStore) Close() error { return m.Called().Error(0) }

func (m *MockDataStore) CreateSensor(sensor *datastore.Sensor) error {
	return m.Called(sensor).Error(0)
}

func (m *MockDataStore) GetSensor(id uint) (datastore.Sensor, error) {
	args := m.Called(id)
	return args.Get(0).(datastore.Sensor), args.Error(1)
}

func (m *MockDataStore) GetSensorByExternalID(externalID string) (datastore.Sensor, error) {
	args := m.Called(externalID)
	return args.Get(0).(datastore.Sensor), args.Error(1)
}

func (m *MockDataStore) ResolveSensor(candidate string) (datastore.Sensor, error) {
	args := m.Called(candidate)
	return args.Get(0).(datastore.Sensor), args.Error(1)
}

func (m *MockDataStore) ListSensors() ([]datastore.Sensor, error) {
	args := m.Called()
	return args.Get(0).([]datastore.Sensor), args.Error(1)
}

func (m *MockDataStore) UpdateSensor(id uint, update datastore.SensorUpdate) (datastore.Sensor, error) {
	args := m.Called(id, update)
	return args.Get(0).(datastore.Sensor), args.Error(1)
}

func (m *MockDataStore) DeleteSensor(id uint) error {
	return m.Called(id).Error(0)
}

func (m *MockDataStore) TouchSensor(id uint, seenAt time.Time) error {
	return m.Called(id, seenAt).Error(0)
}

func (m *MockDataStore) SaveReading(reading *datastore.SensorReading) error {
	return m.Called(reading).Error(0)
}

func (m *MockDataStore) SearchReadings(filter datastore.ReadingFilter) ([]datastore.SensorReading, error) {
	args := m.Called(filter)
	return args.Get(0).([]datastore.SensorReading), args.Error(1)
}

func (m *MockDataStore) CountReadings(filter datastore.ReadingFilter) (int64, error) {
	args := m.Called(filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDataStore) ReadingsSince(cutoff time.Time) ([]datastore.SensorReading, error) {
	args := m.Called(cutoff)
	return args.Get(0).([]datastore.SensorReading), args.Error(1)
}

func (m *MockDataStore) DeleteReading(id uint) error {
	return m.Called(id).Error(0)
}

func (m *MockDataStore) SaveAnomaly(anomaly *datastore.Anomaly) error {
	return m.Called(anomaly).Error(0)
}

func (m *MockDataStore) SearchAnomalies(filter datastore.AnomalyFilter) ([]datastore.Anomaly, error) {
	args := m.Called(filter)
	return args.Get(0).([]datastore.Anomaly), args.Error(1)
}

func (m *MockDataStore) GetAnomaly(id uint) (datastore.Anomaly, error) {
	args := m.Called(id)
	return args.Get(0).(datastore.Anomaly), args.Error(1)
}

func (m *MockDataStore) UpdateAnomalyStatus(id uint, status, notes *string) (datastore.Anomaly, error) {
	args := m.Called(id, status, notes)
	return args.Get(0).(datastore.Anomaly), args.Error(1)
}

// MockDetector implements detector.Interface for handler tests.
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

// setupTestEnvironment creates a test environment with an echo instance, a
// mock datastore, a mock detector and a controller wired with a real pipeline.
func setupTestEnvironment(t *testing.T) (*echo.Echo, *MockDataStore, *MockDetector, *Controller) {
	t.Helper()

	e := echo.New()
	mockDS := new(MockDataStore)
	mockDet := new(MockDetector)

	settings := &conf.Settings{}
	settings.Retrain.WindowDays = 30

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pipeline := ingest.New(mockDS, mockDet, settings, nil, logger)

	controller, err := New(e, mockDS, settings, pipeline, mockDet, nil, logger)
	require.NoError(t, err, "Failed to create test controller")

	return e, mockDS, mockDet, controller
}
