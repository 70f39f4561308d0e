package circuit

import (
	"errors"
	"sync"
	"time"
)

// State is the breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Config holds breaker tuning.
type Config struct {
	MaxFailures int
	Timeout     time.Duration
	HalfOpenMax int
}

// Breaker is a three-state circuit breaker. Consecutive failures trip
// it open; after Timeout it admits a bounded number of probes in
// half-open state and closes again on the first success.
type Breaker struct {
	name string
	cfg  Config

	mu          sync.Mutex
	state       State
	failures    int
	halfOpenIn  int
	lastFailure time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(name string, cfg Config) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	return &Breaker{name: name, cfg: cfg}
}

// Execute runs fn under breaker protection.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.allow(); err != nil {
		return err
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen {
		b.halfOpenIn--
	}
	if err != nil {
		b.failures++
		b.lastFailure = time.Now()
		if b.state == StateHalfOpen || b.failures >= b.cfg.MaxFailures {
			b.state = StateOpen
		}
		return err
	}

	b.failures = 0
	b.state = StateClosed
	return nil
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Since(b.lastFailure) <= b.cfg.Timeout {
			return ErrCircuitOpen
		}
		b.state = StateHalfOpen
		b.halfOpenIn = 0
		fallthrough
	default: // half-open
		if b.halfOpenIn >= b.cfg.HalfOpenMax {
			return ErrTooManyRequests
		}
		b.halfOpenIn++
		return nil
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Group manages one breaker per named downstream.
type Group struct {
	cfg      Config
	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewGroup creates a Group with shared tuning.
func NewGroup(cfg Config) *Group {
	return &Group{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// Get returns the breaker for name, creating it on first use.
func (g *Group) Get(name string) *Breaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.breakers[name]
	if !ok {
		b = NewBreaker(name, g.cfg)
		g.breakers[name] = b
	}
	return b
}

// Execute runs fn under the named breaker.
func (g *Group) Execute(name string, fn func() error) error {
	return g.Get(name).Execute(fn)
}
