package zap

import (
	"context"
	"errors"
	"time"
)

// errPollExhausted is returned by poll when the attempt ceiling is hit.
var errPollExhausted = errors.New("polling attempts exhausted")

// Polling is a fixed-interval, fixed-ceiling wait. There is no backoff.
type Polling struct {
	Interval    time.Duration
	MaxAttempts int
}

// PollSettings holds one Polling per long-running scanner operation.
type PollSettings struct {
	StructureCrawl Polling
	BehaviorCrawl  Polling
	Passive        Polling
	ActiveScan     Polling
}

// DefaultPollSettings returns the production intervals and ceilings.
func DefaultPollSettings() PollSettings {
	return PollSettings{
		StructureCrawl: Polling{Interval: 5 * time.Second, MaxAttempts: 60},
		BehaviorCrawl:  Polling{Interval: 5 * time.Second, MaxAttempts: 30},
		Passive:        Polling{Interval: 2 * time.Second, MaxAttempts: 30},
		ActiveScan:     Polling{Interval: 5 * time.Second, MaxAttempts: 60},
	}
}

func (p PollSettings) withDefaults() PollSettings {
	d := DefaultPollSettings()
	fill := func(dst *Polling, def Polling) {
		if dst.Interval <= 0 {
			dst.Interval = def.Interval
		}
		if dst.MaxAttempts <= 0 {
			dst.MaxAttempts = def.MaxAttempts
		}
	}
	fill(&p.StructureCrawl, d.StructureCrawl)
	fill(&p.BehaviorCrawl, d.BehaviorCrawl)
	fill(&p.Passive, d.Passive)
	fill(&p.ActiveScan, d.ActiveScan)
	return p
}

// poll calls check up to p.MaxAttempts times, sleeping p.Interval between
// calls. It stops early when check reports done or fails, and when ctx is
// canceled.
func poll(ctx context.Context, p Polling, check func(ctx context.Context) (bool, error)) error {
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if attempt == p.MaxAttempts {
			break
		}
		t := time.NewTimer(p.Interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return errPollExhausted
}
