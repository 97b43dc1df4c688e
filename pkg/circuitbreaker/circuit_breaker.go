// Package circuitbreaker stops the proxy from sending traffic to an upstream that
// keeps failing, and lets a few probe requests through once a cooldown elapses.
package circuitbreaker

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"cookiecrypt/internal/metrics"
)

// State represents the state of a circuit breaker
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Settings configures a Breaker
type Settings struct {
	Name           string
	MaxFailures    uint32
	Cooldown       time.Duration
	HalfOpenProbes uint32
}

// Breaker counts consecutive upstream failures. After MaxFailures it opens and
// rejects calls until Cooldown has passed, then admits HalfOpenProbes calls. All
// probes must succeed for the breaker to close; any failure reopens it.
type Breaker struct {
	settings Settings

	mu             sync.Mutex
	state          State
	failures       uint32
	openedAt       time.Time
	probesInFlight uint32
	probeSuccesses uint32
	requests       uint64
	rejections     uint64

	now    func() time.Time
	logger *logrus.Logger
}

// New creates a closed breaker. Zero settings fall back to one failure, no
// cooldown and a single probe.
func New(settings Settings, logger *logrus.Logger) *Breaker {
	if settings.MaxFailures == 0 {
		settings.MaxFailures = 1
	}
	if settings.HalfOpenProbes == 0 {
		settings.HalfOpenProbes = 1
	}
	if logger == nil {
		logger = logrus.New()
	}
	b := &Breaker{
		settings: settings,
		state:    StateClosed,
		now:      time.Now,
		logger:   logger,
	}
	b.publishState()
	return b
}

// Allow reports whether a call may proceed. Every nil return must be followed by
// exactly one of Success, Failure or Release.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.settings.Cooldown {
		b.transition(StateHalfOpen)
	}

	switch b.state {
	case StateClosed:
	case StateHalfOpen:
		if b.probesInFlight+b.probeSuccesses >= b.settings.HalfOpenProbes {
			return b.reject()
		}
		b.probesInFlight++
	default:
		return b.reject()
	}

	b.requests++
	return nil
}

// Success records a call that reached a healthy upstream
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.releaseProbe()
		b.probeSuccesses++
		if b.probeSuccesses >= b.settings.HalfOpenProbes {
			b.transition(StateClosed)
		}
	}
}

// Failure records a call the upstream failed
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	switch b.state {
	case StateClosed:
		if b.failures >= b.settings.MaxFailures {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.releaseProbe()
		b.transition(StateOpen)
	}
}

// Release gives back an admitted call without judging the upstream, for example
// when the client went away first.
func (b *Breaker) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.releaseProbe()
	}
}

// State returns the current state
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats represents circuit breaker statistics
type Stats struct {
	Name       string    `json:"name"`
	State      string    `json:"state"`
	Failures   uint32    `json:"failures"`
	Requests   uint64    `json:"requests"`
	Rejections uint64    `json:"rejections"`
	OpenedAt   time.Time `json:"opened_at,omitempty"`
}

// Stats returns a snapshot of the breaker counters
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Stats{
		Name:       b.settings.Name,
		State:      b.state.String(),
		Failures:   b.failures,
		Requests:   b.requests,
		Rejections: b.rejections,
		OpenedAt:   b.openedAt,
	}
}

func (b *Breaker) releaseProbe() {
	if b.probesInFlight > 0 {
		b.probesInFlight--
	}
}

func (b *Breaker) reject() error {
	b.rejections++
	metrics.IncrementCounter("upstream_circuit_rejections_total", map[string]string{"upstream": b.settings.Name}, "Calls rejected by an open circuit")
	return &OpenError{Name: b.settings.Name, State: b.state}
}

// transition must be called with mu held
func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	b.probesInFlight = 0
	b.probeSuccesses = 0

	fields := logrus.Fields{
		"circuit_breaker": b.settings.Name,
		"from":            from.String(),
		"state":           to.String(),
	}
	switch to {
	case StateOpen:
		b.openedAt = b.now()
		fields["failures"] = b.failures
		b.logger.WithFields(fields).Warn("Circuit breaker opened due to upstream failures")
	case StateHalfOpen:
		b.logger.WithFields(fields).Info("Circuit breaker transitioned to half-open")
	case StateClosed:
		b.failures = 0
		b.logger.WithFields(fields).Info("Circuit breaker closed after successful recovery")
	}
	b.publishState()
}

func (b *Breaker) publishState() {
	metrics.SetGauge("upstream_circuit_state", float64(b.state), map[string]string{"upstream": b.settings.Name}, "0 closed, 1 open, 2 half-open")
}

// OpenError is returned when the breaker refuses a call
type OpenError struct {
	Name  string
	State State
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is %s", e.Name, e.State)
}

// Transport guards an http.RoundTripper. Transport errors and 502, 503 and 504
// responses count as failures.
type Transport struct {
	Base    http.RoundTripper
	Breaker *Breaker
}

// NewTransport wraps base, or http.DefaultTransport when base is nil
func NewTransport(base http.RoundTripper, breaker *Breaker) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{Base: base, Breaker: breaker}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.Breaker.Allow(); err != nil {
		return nil, err
	}

	resp, err := t.Base.RoundTrip(req)
	if err != nil {
		if req.Context().Err() != nil {
			t.Breaker.Release()
		} else {
			t.Breaker.Failure()
		}
		return nil, err
	}

	if IsUpstreamFailure(resp.StatusCode) {
		t.Breaker.Failure()
	} else {
		t.Breaker.Success()
	}
	return resp, nil
}

// IsUpstreamFailure reports whether a status code means the upstream itself is unhealthy
func IsUpstreamFailure(status int) bool {
	switch status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
