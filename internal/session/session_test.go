package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/srg/pulsim/internal/hrs"
	"github.com/srg/pulsim/internal/radio"
	"github.com/srg/pulsim/internal/session"
	"github.com/srg/pulsim/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type SessionTestSuite struct {
	suite.Suite
	helper *testutils.TestHelper
	mockR  *testutils.MockRadio
	source *testutils.MockSensorSource
	sess   *session.Session
	cancel context.CancelFunc
}

func (suite *SessionTestSuite) SetupTest() {
	suite.helper = testutils.NewTestHelper(suite.T())
	suite.mockR = testutils.CreateMockRadio().Build()
	suite.source = testutils.CreateMockSensorSource()
	suite.sess = session.New(suite.mockR, suite.source, session.Options{}, suite.helper.Logger)
}

func (suite *SessionTestSuite) TearDownTest() {
	suite.sess.Stop()
	if suite.cancel != nil {
		suite.cancel()
		suite.cancel = nil
	}
}

func (suite *SessionTestSuite) start() {
	ctx, cancel := context.WithCancel(context.Background())
	suite.cancel = cancel
	suite.Require().NoError(suite.sess.Start(ctx))
}

// waitEvent drains the event stream until an event of type E arrives.
func waitEvent[E session.Event](suite *SessionTestSuite) E {
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-suite.sess.Events():
			if !ok {
				suite.Require().FailNow("event stream closed while waiting")
			}
			if e, match := ev.(E); match {
				return e
			}
		case <-deadline:
			var zero E
			suite.Require().FailNowf("timeout", "timed out waiting for %T", zero)
			return zero
		}
	}
}

func (suite *SessionTestSuite) enableNotifications(addr string) {
	handler := suite.mockR.MockGATT().Handler()
	suite.Require().NotNil(handler)
	status := handler.HandleDescriptorWrite(
		testutils.MockCentral{Address: addr}, hrs.MeasurementUUID, hrs.CCCDUUID, []byte{0x01, 0x00}, 0)
	suite.Require().Equal(radio.StatusSuccess, status)
}

func (suite *SessionTestSuite) disableNotifications(addr string) {
	handler := suite.mockR.MockGATT().Handler()
	handler.HandleDescriptorWrite(
		testutils.MockCentral{Address: addr}, hrs.MeasurementUUID, hrs.CCCDUUID, []byte{0x00, 0x00}, 0)
}

func (suite *SessionTestSuite) TestStart_RequiresEnabledRadio() {
	suite.mockR.SetEnabled(false)
	err := suite.sess.Start(context.Background())
	suite.ErrorIs(err, radio.ErrRadioOff)
}

func (suite *SessionTestSuite) TestStart_RequiresPermissions() {
	suite.mockR.SetPermissions(false)
	err := suite.sess.Start(context.Background())
	suite.ErrorIs(err, radio.ErrPermissionDenied)
}

func (suite *SessionTestSuite) TestStart_AttachesServerAndAdvertises() {
	suite.start()

	suite.Equal(1, suite.mockR.MockGATT().OpenCount())
	suite.Equal(1, suite.mockR.MockAdv().StartCount())
	suite.Equal("Pulsim HR", suite.mockR.MockAdv().Options().LocalName,
		"default local name MUST be applied")
	suite.Equal([]string{hrs.ServiceUUID}, suite.mockR.MockAdv().Options().ServiceUUIDs)
	suite.False(suite.source.Subscribed(), "sensor MUST stay idle without subscribers")
}

func (suite *SessionTestSuite) TestStart_IsSingleUse() {
	suite.start()
	suite.Error(suite.sess.Start(context.Background()), "second start MUST be rejected")

	suite.sess.Stop()
	suite.Error(suite.sess.Start(context.Background()), "a stopped session MUST NOT restart")
}

func (suite *SessionTestSuite) TestSubscriberLifecycle_GatesSensor() {
	// GOAL: Verify the sensor runs iff at least one central is subscribed
	//
	// TEST SCENARIO: CCCD enable → sensor subscribed, count event; sample →
	// notification + BPM event; CCCD disable → sensor released, count event

	suite.start()

	suite.enableNotifications("aa:bb")
	ev := waitEvent[session.SubscriberCountChanged](suite)
	suite.Equal(1, ev.Count)
	suite.True(suite.source.Subscribed(), "first subscriber MUST activate the sensor")

	suite.source.Emit(88)
	bpm := waitEvent[session.BPMChanged](suite)
	suite.Equal(88, bpm.BPM)

	calls := suite.mockR.MockGATT().LastConn().NotifyCalls()
	suite.Require().Len(calls, 1)
	suite.Equal("aa:bb", calls[0].CentralAddr)
	suite.Equal([]byte{0x00, 88}, calls[0].Value)

	suite.disableNotifications("aa:bb")
	ev = waitEvent[session.SubscriberCountChanged](suite)
	suite.Equal(0, ev.Count)
	suite.False(suite.source.Subscribed(), "last subscriber leaving MUST release the sensor")
}

func (suite *SessionTestSuite) TestSecondSubscriberDoesNotResubscribe() {
	suite.start()
	suite.enableNotifications("aa:bb")
	suite.enableNotifications("cc:dd")

	suite.Equal(1, suite.source.SubscribeCount(), "sensor MUST be subscribed once regardless of central count")

	suite.disableNotifications("aa:bb")
	suite.True(suite.source.Subscribed(), "a remaining subscriber MUST keep the sensor running")
}

func (suite *SessionTestSuite) TestStop_TearsDownAndClosesEvents() {
	suite.start()
	suite.enableNotifications("aa:bb")

	suite.sess.Stop()

	stopped := waitEvent[session.Stopped](suite)
	suite.Equal(session.ReasonRequested, stopped.Reason)

	suite.False(suite.source.Subscribed(), "teardown MUST release the sensor")
	suite.GreaterOrEqual(suite.mockR.MockAdv().StopCount(), 1, "teardown MUST stop advertising")
	suite.Equal(1, suite.mockR.MockGATT().LastConn().CloseCount(), "teardown MUST close the GATT server")

	_, open := <-suite.sess.Events()
	suite.False(open, "event stream MUST close after the Stopped event")

	suite.sess.Stop() // second stop is a no-op
}

func (suite *SessionTestSuite) TestAutoStop() {
	suite.sess = session.New(suite.mockR, suite.source,
		session.Options{AutoStop: 20 * time.Millisecond}, suite.helper.Logger)
	suite.start()

	stopped := waitEvent[session.Stopped](suite)
	suite.Equal(session.ReasonAutoStop, stopped.Reason)
}

func (suite *SessionTestSuite) TestAdvertisingFailure_Surfaced() {
	suite.start()

	suite.mockR.MockAdv().FailBroadcast(errors.New("controller reset"))

	ev := waitEvent[session.AdvertisingFailed](suite)
	suite.False(ev.Terminal, "first failure MUST be transient")
	suite.ErrorIs(ev.Err, radio.ErrAdvertisingFailed)
}

func (suite *SessionTestSuite) TestAdvertisingFailure_TerminalStopsSession() {
	// GOAL: Verify a terminal advertising failure ends the session on its own,
	// without the host reacting to the event stream
	//
	// TEST SCENARIO: broadcast dies → permissions revoked while backing off →
	// retry aborts → session tears itself down and reports why

	suite.start()
	conn := suite.mockR.MockGATT().LastConn()
	suite.Require().NotNil(conn)

	suite.mockR.MockAdv().FailBroadcast(errors.New("controller reset"))
	transient := waitEvent[session.AdvertisingFailed](suite)
	suite.Require().False(transient.Terminal)

	// Revoke permissions before the 500ms retry fires; the pre-retry gate
	// check then aborts instead of retrying.
	suite.mockR.SetPermissions(false)

	ev := waitEvent[session.AdvertisingFailed](suite)
	suite.True(ev.Terminal, "permission loss during backoff MUST be terminal")
	suite.ErrorIs(ev.Err, radio.ErrPermissionDenied)

	stopped := waitEvent[session.Stopped](suite)
	suite.Equal(session.ReasonAdvertisingFailed, stopped.Reason,
		"terminal failure MUST stop the session with its own reason")
	suite.Eventually(func() bool { return conn.CloseCount() == 1 },
		time.Second, 5*time.Millisecond, "terminal failure MUST close the GATT server")

	_, open := <-suite.sess.Events()
	suite.False(open, "event stream MUST close after the session aborts itself")
}

func (suite *SessionTestSuite) TestRadioOff_SuspendsPeripheral() {
	// GOAL: Verify the radio state reactor suspends everything on power loss
	//
	// TEST SCENARIO: subscriber active → radio off → advertising stopped,
	// server closed, sensor released, registry cleared

	suite.start()
	suite.enableNotifications("aa:bb")
	waitEvent[session.SubscriberCountChanged](suite)
	conn := suite.mockR.MockGATT().LastConn()

	suite.mockR.PushState(radio.StateOff)

	ev := waitEvent[session.SubscriberCountChanged](suite)
	suite.Equal(0, ev.Count, "radio loss MUST clear the subscriber registry")
	suite.Eventually(func() bool { return !suite.source.Subscribed() },
		time.Second, 5*time.Millisecond, "radio loss MUST release the sensor")
	suite.Eventually(func() bool { return conn.CloseCount() == 1 },
		time.Second, 5*time.Millisecond, "radio loss MUST close the GATT server")
}

func (suite *SessionTestSuite) TestRadioOn_RestartsPeripheral() {
	suite.start()
	suite.mockR.PushState(radio.StateOff)
	suite.mockR.PushState(radio.StateOn)

	suite.Eventually(func() bool { return suite.mockR.MockGATT().OpenCount() == 2 },
		time.Second, 5*time.Millisecond, "radio recovery MUST rebuild the GATT server")
	suite.Eventually(func() bool { return suite.mockR.MockAdv().StartCount() == 2 },
		time.Second, 5*time.Millisecond, "radio recovery MUST restart advertising")
}

func TestSessionTestSuite(t *testing.T) {
	suite.Run(t, new(SessionTestSuite))
}
