package testutils

import (
	"testing"

	"github.com/sirupsen/logrus"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
}

// NewTestHelper creates a test helper with a debug-level logger so test
// failures carry the full execution trace.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	return &TestHelper{
		T:      t,
		Logger: logger,
	}
}

func CreateMockRadio() *MockRadioBuilder {
	return NewMockRadioBuilder()
}

func CreateMockSensorSource() *MockSensorSource {
	return NewMockSensorSource()
}
