package log

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Progress logs row progress of a run with a throughput-based ETA.
type Progress struct {
	mu        sync.Mutex
	name      string
	total     int
	current   int
	startTime time.Time
	now       func() time.Time
	logger    zerolog.Logger
}

// NewProgress starts tracking total units of work.
func NewProgress(name string, total int) *Progress {
	return &Progress{
		name:      name,
		total:     total,
		startTime: time.Now(),
		now:       time.Now,
		logger:    log.Logger,
	}
}

// Add advances progress by n units and logs the new position.
func (p *Progress) Add(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current += n
	elapsed := p.now().Sub(p.startTime)
	ev := p.logger.Info().
		Str("task", p.name).
		Int("done", p.current).
		Int("total", p.total).
		Float64("percent", p.percent())
	if eta, ok := p.eta(elapsed); ok {
		ev = ev.Dur("eta", eta)
	}
	ev.Msg("Progress")
}

// Current returns units done so far.
func (p *Progress) Current() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// ETA estimates the remaining time from the throughput so far.
func (p *Progress) ETA() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.eta(p.now().Sub(p.startTime))
}

// Finish logs completion with the total duration.
func (p *Progress) Finish() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	d := p.now().Sub(p.startTime)
	p.logger.Info().
		Str("task", p.name).
		Int("done", p.current).
		Dur("duration", d.Round(time.Millisecond)).
		Msg("Completed")
	return d
}

// Fail logs that the task stopped early.
func (p *Progress) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logger.Error().
		Err(err).
		Str("task", p.name).
		Int("done", p.current).
		Int("total", p.total).
		Msg("Failed")
}

func (p *Progress) percent() float64 {
	if p.total <= 0 {
		return 0
	}
	return float64(p.current) / float64(p.total) * 100
}

func (p *Progress) eta(elapsed time.Duration) (time.Duration, bool) {
	if p.total <= 0 || p.current <= 0 || elapsed <= 0 {
		return 0, false
	}
	remaining := p.total - p.current
	if remaining <= 0 {
		return 0, true
	}
	perUnit := elapsed / time.Duration(p.current)
	eta := perUnit * time.Duration(remaining)
	if eta > time.Hour {
		return eta.Round(time.Minute), true
	}
	return eta.Round(time.Second), true
}
