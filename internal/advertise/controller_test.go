package advertise

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/srg/pulsim/internal/radio"
	"github.com/srg/pulsim/internal/testutils"
	"github.com/stretchr/testify/suite"
)

// failureRecorder captures onFailure invocations.
type failureRecorder struct {
	mu       sync.Mutex
	failures []recordedFailure
}

type recordedFailure struct {
	err      error
	terminal bool
}

func (r *failureRecorder) callback(err error, terminal bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, recordedFailure{err: err, terminal: terminal})
}

func (r *failureRecorder) all() []recordedFailure {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]recordedFailure, len(r.failures))
	copy(out, r.failures)
	return out
}

type ControllerTestSuite struct {
	suite.Suite
	helper   *testutils.TestHelper
	mockR    *testutils.MockRadio
	adv      *testutils.MockAdvertiser
	recorder *failureRecorder
	ctrl     *Controller

	mu      sync.Mutex
	delays  []time.Duration
	retries []func()
}

func (suite *ControllerTestSuite) SetupTest() {
	suite.helper = testutils.NewTestHelper(suite.T())
	suite.mockR = testutils.CreateMockRadio().Build()
	suite.adv = suite.mockR.MockAdv()
	suite.recorder = &failureRecorder{}
	suite.delays = nil
	suite.retries = nil

	suite.ctrl = NewController(
		suite.adv,
		suite.mockR,
		radio.AdvertisingOptions{LocalName: "Pulsim HR", ServiceUUIDs: []string{"180d"}},
		suite.recorder.callback,
		suite.helper.Logger,
	)
	// Capture scheduled retries instead of arming real timers
	suite.ctrl.afterFunc = func(d time.Duration, fn func()) *time.Timer {
		suite.mu.Lock()
		defer suite.mu.Unlock()
		suite.delays = append(suite.delays, d)
		suite.retries = append(suite.retries, fn)
		return time.NewTimer(time.Hour)
	}
}

// fireRetry runs the most recently scheduled retry as the timer would.
func (suite *ControllerTestSuite) fireRetry() {
	suite.mu.Lock()
	suite.Require().NotEmpty(suite.retries, "a retry MUST have been scheduled")
	fn := suite.retries[len(suite.retries)-1]
	suite.mu.Unlock()
	fn()
}

func (suite *ControllerTestSuite) scheduledDelays() []time.Duration {
	suite.mu.Lock()
	defer suite.mu.Unlock()
	out := make([]time.Duration, len(suite.delays))
	copy(out, suite.delays)
	return out
}

func (suite *ControllerTestSuite) TestStart_Success() {
	suite.ctrl.Start()

	suite.Equal(StateAdvertising, suite.ctrl.State())
	suite.Equal(0, suite.ctrl.Attempts())
	suite.Equal("Pulsim HR", suite.adv.Options().LocalName)
	suite.Equal([]string{"180d"}, suite.adv.Options().ServiceUUIDs)
	suite.Empty(suite.recorder.all())
}

func (suite *ControllerTestSuite) TestBackoff_DoublesUntilTerminal() {
	// GOAL: Verify the exponential backoff schedule and the terminal failure
	//
	// TEST SCENARIO: every start attempt fails → delays double 500ms..8s →
	// sixth failure gives up with a terminal error

	advErr := errors.New("tx power unavailable")
	suite.adv.SetStartError(advErr)

	suite.ctrl.Start()
	suite.Equal(StateBackingOff, suite.ctrl.State())

	for i := 0; i < 5; i++ {
		if i < 4 {
			suite.fireRetry()
			suite.Equal(StateBackingOff, suite.ctrl.State())
		} else {
			suite.fireRetry()
		}
	}

	suite.Equal([]time.Duration{
		500 * time.Millisecond,
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
	}, suite.scheduledDelays(), "backoff MUST double from 500ms and stop at the fifth retry")

	suite.Equal(StateFailed, suite.ctrl.State(), "sixth consecutive failure MUST be terminal")

	failures := suite.recorder.all()
	suite.Require().Len(failures, 6)
	for i := 0; i < 5; i++ {
		suite.False(failures[i].terminal, "failure %d MUST be transient", i)
		suite.ErrorIs(failures[i].err, radio.ErrAdvertisingFailed)
	}
	suite.True(failures[5].terminal, "final failure MUST be terminal")
	suite.ErrorIs(failures[5].err, radio.ErrAdvertisingFailed)
}

func (suite *ControllerTestSuite) TestBackoff_SuccessResetsAttempts() {
	suite.adv.SetStartError(errors.New("busy"))
	suite.ctrl.Start()
	suite.fireRetry()
	suite.Equal(2, suite.ctrl.Attempts())

	suite.adv.SetStartError(nil)
	suite.fireRetry()

	suite.Equal(StateAdvertising, suite.ctrl.State())
	suite.Equal(0, suite.ctrl.Attempts(), "a successful start MUST reset the failure counter")

	// The next failure starts the schedule over from the initial delay
	suite.adv.FailBroadcast(errors.New("link lost"))
	delays := suite.scheduledDelays()
	suite.Equal(500*time.Millisecond, delays[len(delays)-1],
		"backoff after a recovery MUST restart from the initial delay")
}

func (suite *ControllerTestSuite) TestAsyncFailure_EntersBackoff() {
	suite.ctrl.Start()
	suite.Require().Equal(StateAdvertising, suite.ctrl.State())

	suite.adv.FailBroadcast(errors.New("controller reset"))

	suite.Equal(StateBackingOff, suite.ctrl.State())
	failures := suite.recorder.all()
	suite.Require().Len(failures, 1)
	suite.False(failures[0].terminal)
}

func (suite *ControllerTestSuite) TestRetry_PermissionLossIsTerminal() {
	// GOAL: Verify permissions are re-checked before each retry
	//
	// TEST SCENARIO: failure enters backoff → permissions revoked while
	// waiting → retry aborts with a terminal permission error

	suite.adv.SetStartError(errors.New("busy"))
	suite.ctrl.Start()

	suite.mockR.SetPermissions(false)
	suite.fireRetry()

	suite.Equal(StateFailed, suite.ctrl.State())
	failures := suite.recorder.all()
	suite.Require().Len(failures, 2)
	suite.True(failures[1].terminal, "permission loss MUST be terminal")
	suite.ErrorIs(failures[1].err, radio.ErrPermissionDenied)
	suite.Equal(1, suite.adv.StartCount(), "no further start attempt MUST be made without permissions")
}

func (suite *ControllerTestSuite) TestStop_CancelsPendingRetry() {
	suite.adv.SetStartError(errors.New("busy"))
	suite.ctrl.Start()

	suite.NoError(suite.ctrl.Stop())
	suite.Equal(StateIdle, suite.ctrl.State())

	// The already-scheduled retry fires after Stop: it must do nothing
	suite.fireRetry()
	suite.Equal(StateIdle, suite.ctrl.State())
	suite.Equal(1, suite.adv.StartCount())
	suite.Equal(1, suite.adv.StopCount())
}

func (suite *ControllerTestSuite) TestStop_IgnoresLateAsyncFailure() {
	suite.ctrl.Start()
	suite.NoError(suite.ctrl.Stop())

	suite.adv.FailBroadcast(errors.New("stack teardown"))

	suite.Equal(StateIdle, suite.ctrl.State())
	suite.Empty(suite.recorder.all(), "failures after Stop MUST NOT be surfaced")
}

func (suite *ControllerTestSuite) TestRestart_ResetsStateMachine() {
	suite.adv.SetStartError(errors.New("busy"))
	suite.ctrl.Start()
	suite.fireRetry()
	suite.Require().Equal(2, suite.ctrl.Attempts())

	suite.adv.SetStartError(nil)
	suite.ctrl.Restart()

	suite.Equal(StateAdvertising, suite.ctrl.State())
	suite.Equal(0, suite.ctrl.Attempts(), "Restart MUST begin a fresh session with a zero counter")
}

func TestControllerTestSuite(t *testing.T) {
	suite.Run(t, new(ControllerTestSuite))
}
