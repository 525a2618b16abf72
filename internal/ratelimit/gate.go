// Package ratelimit decides whether a niche may post right now, based only on
// its post log.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"autopost/internal/priority"
)

type Reason string

const (
	ReasonMonthlyCap    Reason = "monthly_cap"
	ReasonOutsideWindow Reason = "outside_window"
	ReasonMinInterval   Reason = "min_interval"
)

type Decision struct {
	Allowed bool
	Reason  Reason
}

type Config struct {
	MinInterval time.Duration
	MonthlyCap  int
	// WindowStart and WindowEnd are UTC hours; the window is [start, end).
	// start > end wraps midnight, start == end never closes.
	WindowStart int
	WindowEnd   int
}

type History interface {
	LastSuccessAt(ctx context.Context, niche string) (*time.Time, error)
	CountSuccessSince(ctx context.Context, niche string, since time.Time) (int, error)
}

type Gate struct {
	history History
	cfg     Config
}

func NewGate(history History, cfg Config) *Gate {
	return &Gate{history: history, cfg: cfg}
}

// Allow evaluates the gate for an entry of the given priority at now.
func (g *Gate) Allow(ctx context.Context, niche string, prio int, now time.Time) (Decision, error) {
	count, err := g.history.CountSuccessSince(ctx, niche, MonthStart(now))
	if err != nil {
		return Decision{}, fmt.Errorf("count posts this month: %w", err)
	}

	last, err := g.history.LastSuccessAt(ctx, niche)
	if err != nil {
		return Decision{}, fmt.Errorf("last post time: %w", err)
	}

	return evaluate(g.cfg, count, last, prio, now), nil
}

func evaluate(cfg Config, postedThisMonth int, lastPost *time.Time, prio int, now time.Time) Decision {
	if postedThisMonth >= cfg.MonthlyCap {
		return Decision{Reason: ReasonMonthlyCap}
	}
	if priority.IsBreaking(prio) {
		return Decision{Allowed: true}
	}
	if !inWindow(cfg.WindowStart, cfg.WindowEnd, now.UTC().Hour()) {
		return Decision{Reason: ReasonOutsideWindow}
	}
	if lastPost != nil && now.Sub(*lastPost) < cfg.MinInterval {
		return Decision{Reason: ReasonMinInterval}
	}
	return Decision{Allowed: true}
}

func inWindow(start, end, hour int) bool {
	switch {
	case start == end:
		return true
	case start < end:
		return hour >= start && hour < end
	default:
		return hour >= start || hour < end
	}
}

// MonthStart returns midnight of the first day of now's month in UTC.
func MonthStart(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}
