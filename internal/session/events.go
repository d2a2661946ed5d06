package session

// Event is a tagged status event published to the host collaborator.
// Events are display-only: consumers that lag get oldest events dropped
// rather than stalling the engine.
type Event interface {
	isEvent()
}

// AdvertisingFailed reports an advertising failure. Terminal means the
// controller exhausted its retries (or lost permissions); the session tears
// itself down right after publishing it, ending with a Stopped event.
type AdvertisingFailed struct {
	Err      error
	Terminal bool
}

// SubscriberCountChanged reports the registry size after a change.
type SubscriberCountChanged struct {
	Count int
}

// BPMChanged reports the latest clamped sample pushed to the centrals.
type BPMChanged struct {
	BPM int
}

// StopReason tells why the session ended.
type StopReason string

const (
	ReasonRequested         StopReason = "requested"
	ReasonAutoStop          StopReason = "auto_stop"
	ReasonAdvertisingFailed StopReason = "advertising_failed"
)

// Stopped is the final event of a session; the event channel closes after it.
type Stopped struct {
	Reason StopReason
}

func (AdvertisingFailed) isEvent()      {}
func (SubscriberCountChanged) isEvent() {}
func (BPMChanged) isEvent()             {}
func (Stopped) isEvent()                {}
