package sensor

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/pulsim/internal/groutine"
)

const (
	// DefaultSimInterval is the sample period of the simulated source.
	DefaultSimInterval = time.Second

	simBaseBPM = 72
	simMinBPM  = 48
	simMaxBPM  = 190
)

// Simulator is a Source producing a random-walk heart-rate stream. It lets
// the peripheral run without wearable hardware attached.
type Simulator struct {
	Interval time.Duration

	logger *logrus.Logger

	mu  sync.Mutex
	bpm int
}

// NewSimulator creates a simulated heart-rate source.
func NewSimulator(logger *logrus.Logger) *Simulator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Simulator{
		Interval: DefaultSimInterval,
		logger:   logger,
		bpm:      simBaseBPM,
	}
}

// Capabilities implements Source.
func (s *Simulator) Capabilities() ([]Metric, error) {
	return []Metric{MetricHeartRate}, nil
}

// Subscribe implements Source. Sampling runs on a named goroutine until the
// subscription is canceled.
func (s *Simulator) Subscribe(metric Metric, cb Callback) (Subscription, error) {
	if metric != MetricHeartRate {
		return nil, ErrUnsupported
	}

	ctx, cancel := context.WithCancel(context.Background())
	groutine.Go(ctx, "sensor-simulator", func(ctx context.Context) {
		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cb(Sample{
					Metric:    MetricHeartRate,
					Value:     s.next(),
					Timestamp: time.Now(),
				})
			}
		}
	})

	s.logger.WithField("interval", s.Interval).Debug("Simulated sensor subscribed")
	return simSubscription{cancel: cancel}, nil
}

// next advances the random walk, drifting back toward the base rate.
func (s *Simulator) next() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.bpm += rand.Intn(7) - 3
	if s.bpm > simBaseBPM {
		s.bpm--
	} else if s.bpm < simBaseBPM {
		s.bpm++
	}
	if s.bpm < simMinBPM {
		s.bpm = simMinBPM
	}
	if s.bpm > simMaxBPM {
		s.bpm = simMaxBPM
	}
	return s.bpm
}

type simSubscription struct {
	cancel context.CancelFunc
}

func (s simSubscription) Unsubscribe() error {
	s.cancel()
	return nil
}
