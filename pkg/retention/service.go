// Package retention prunes the raw telegram log.
package retention

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

const DefaultInterval = time.Hour

type Pruner interface {
	PruneTelegrams(ctx context.Context, cutoff time.Time) (int64, error)
}

// roundToHourStart truncates t to the start of its hour in UTC.
func roundToHourStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
}

// Cutoff is the receive time before which telegrams are deleted. The
// cutoff is aligned to the hour so repeated runs within one hour agree.
func Cutoff(now time.Time, keep time.Duration) time.Time {
	return roundToHourStart(now.Add(-keep))
}

// Cleanup removes telegrams older than keep. A non-positive keep
// disables pruning.
func Cleanup(ctx context.Context, p Pruner, keep time.Duration, now time.Time) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	cutoff := Cutoff(now, keep)
	n, err := p.PruneTelegrams(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.WithField("component", "retention").Infof("Cleaned up %d telegrams older than %s", n, cutoff.Format(time.RFC3339))
	}
	return n, nil
}

// Run prunes once immediately and then every interval until ctx is done.
// Failures are logged and retried on the next tick.
func Run(ctx context.Context, p Pruner, keep, interval time.Duration) error {
	entry := log.WithField("component", "retention")
	if keep <= 0 {
		entry.Info("Raw telegram retention disabled")
		<-ctx.Done()
		return nil
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := Cleanup(ctx, p, keep, time.Now()); err != nil {
			entry.Errorf("Error cleaning up raw telegrams: %v", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
