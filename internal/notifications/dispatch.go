package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultWorkers     = 1
	defaultCallTimeout = 10 * time.Second
)

// DispatcherConfig holds a Dispatcher's collaborators and limits.
type DispatcherConfig struct {
	Directory Directory
	Sender    Sender
	Sink      LogSink

	// Fetch is the directory filter. Zero value means this channel only.
	Fetch Filter

	Workers     int
	CallTimeout time.Duration
	Logger      *slog.Logger
}

// Dispatcher runs one channel: it decides, composes, sends and logs for
// every user the directory returns.
type Dispatcher struct {
	variant     Variant
	directory   Directory
	sender      Sender
	sink        LogSink
	fetch       Filter
	workers     int
	callTimeout time.Duration
	logger      *slog.Logger
}

// NewDispatcher creates the Dispatcher for a channel.
func NewDispatcher(ch Channel, cfg DispatcherConfig) (*Dispatcher, error) {
	v, err := VariantFor(ch)
	if err != nil {
		return nil, err
	}
	if cfg.Directory == nil || cfg.Sender == nil || cfg.Sink == nil {
		return nil, fmt.Errorf("dispatcher %s: directory, sender and sink are required", ch)
	}

	d := &Dispatcher{
		variant:     v,
		directory:   cfg.Directory,
		sender:      cfg.Sender,
		sink:        cfg.Sink,
		fetch:       cfg.Fetch,
		workers:     cfg.Workers,
		callTimeout: cfg.CallTimeout,
		logger:      cfg.Logger,
	}
	if d.fetch == (Filter{}) {
		d.fetch = FilterFor(ch)
	}
	if d.workers < 1 {
		d.workers = defaultWorkers
	}
	if d.callTimeout <= 0 {
		d.callTimeout = defaultCallTimeout
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	d.logger = d.logger.With("channel", string(ch))
	return d, nil
}

// Channel returns the channel this dispatcher serves.
func (d *Dispatcher) Channel() Channel { return d.variant.Channel }

// Run processes every eligible user once. Per-user failures only move
// counters. The returned error is either a directory fetch failure or the
// context error after cancellation; the stats are valid in both cases.
func (d *Dispatcher) Run(ctx context.Context, now time.Time, dryRun bool) (Stats, error) {
	var stats Stats

	fetchCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
	users, err := d.directory.FetchEligibleUsers(fetchCtx, d.fetch)
	cancel()
	if err != nil {
		return stats, fmt.Errorf("%s: fetch eligible users: %w", d.variant.Channel, err)
	}

	// The fetch may be a union across channels; keep only this channel's users.
	selected := users[:0:0]
	for _, u := range users {
		if d.variant.Enabled(u) {
			selected = append(selected, u)
		}
	}
	d.logger.Info("Users with channel enabled", "count", len(selected), "fetched", len(users))
	if len(selected) == 0 {
		return stats, nil
	}

	workers := min(d.workers, len(selected))
	ch := make(chan User)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var partial Stats
			for u := range ch {
				d.processUser(ctx, u, now, dryRun, &partial)
			}
			mu.Lock()
			stats.Add(partial)
			mu.Unlock()
		}()
	}

feed:
	for _, u := range selected {
		// Stop before starting the next user; in-flight sends finish.
		if ctx.Err() != nil {
			break
		}
		select {
		case ch <- u:
		case <-ctx.Done():
			break feed
		}
	}
	close(ch)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		d.logger.Warn("Channel run interrupted", "summary", stats.Summary())
		return stats, err
	}
	d.logger.Info("Channel run complete", "summary", stats.Summary())
	return stats, nil
}

// processUser walks one user through the decision steps and updates stats.
func (d *Dispatcher) processUser(ctx context.Context, u User, now time.Time, dryRun bool, stats *Stats) {
	log := d.logger.With("user_id", u.ID)

	if !ShouldNotify(u, now) {
		if u.Timezone != "" {
			if _, err := CurrentHour(u.Timezone, now); err != nil {
				log.Warn("Unable to determine current hour for user timezone", "timezone", u.Timezone, "error", err)
			}
		}
		stats.Skipped++
		return
	}
	if !d.variant.usable(u) {
		stats.Skipped++
		return
	}

	items, err := d.loadItems(ctx, u.ID)
	if err != nil {
		log.Warn("Failed to load tracked items", "error", err)
		stats.Skipped++
		return
	}

	body := d.variant.Compose(items)
	recipient := d.variant.Recipient(u)

	if dryRun {
		log.Info("[DRY RUN] Would send notification", "recipient", recipient, "message", body)
		stats.Sent++
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
	out := d.sender.Send(sendCtx, recipient, body)
	cancel()

	attempt := newAttempt(u.ID, d.variant.Channel, body, out)
	if err := d.appendLog(ctx, attempt); err != nil {
		log.Error("Failed to record notification", "error", err)
		stats.LogFailures++
	}

	if out.Delivered {
		log.Info("Notification sent", "recipient", recipient, "provider_id", out.ProviderID)
		stats.Sent++
	} else {
		log.Warn("Notification failed", "recipient", recipient, "error", out.Error, "error_code", out.ErrorCode)
		stats.Failed++
	}
}

// loadItems fetches a user's tracked items. Any failure, including a panic
// in the directory, is reported as ErrItemsUnavailable.
func (d *Dispatcher) loadItems(ctx context.Context, userID string) (items []string, err error) {
	ctx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			items, err = nil, fmt.Errorf("%w: directory panic: %v", ErrItemsUnavailable, r)
		}
	}()
	items, err = d.directory.LoadUserItems(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrItemsUnavailable) {
			err = fmt.Errorf("%w: %v", ErrItemsUnavailable, err)
		}
		return nil, err
	}
	return items, nil
}

// appendLog records an attempt. It ignores cancellation of ctx: a send that
// already happened is still recorded.
func (d *Dispatcher) appendLog(ctx context.Context, a Attempt) (err error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.callTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("log sink panic: %v", r)
		}
	}()
	return d.sink.Append(ctx, a)
}
