package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ChannelRunner runs one channel. *Dispatcher implements it.
type ChannelRunner interface {
	Channel() Channel
	Run(ctx context.Context, now time.Time, dryRun bool) (Stats, error)
}

// Observer receives per-channel results after each run.
type Observer interface {
	ObserveChannel(ch Channel, stats Stats, elapsed time.Duration)
}

// ChannelConfig is one entry in the Coordinator's ordered channel list.
// Runner may be nil when the channel is disabled.
type ChannelConfig struct {
	Channel Channel
	Enabled bool
	Runner  ChannelRunner
}

// ChannelResult is the outcome of one channel within a run.
type ChannelResult struct {
	Channel  Channel       `json:"channel"`
	Label    string        `json:"label"`
	Enabled  bool          `json:"enabled"`
	Stats    Stats         `json:"stats"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Summary is the merged result of a run.
type Summary struct {
	RunID            string          `json:"run_id"`
	StartedAt        time.Time       `json:"started_at"`
	Instant          time.Time       `json:"instant"`
	DryRun           bool            `json:"dry_run"`
	Channels         []ChannelResult `json:"channels"`
	TotalSkipped     int             `json:"total_skipped"`
	TotalLogFailures int             `json:"total_log_failures"`
	Duration         time.Duration   `json:"duration"`
}

// Coordinator runs every enabled channel and merges their statistics.
type Coordinator struct {
	channels []ChannelConfig
	observer Observer
	logger   *slog.Logger
}

// NewCoordinator validates the channel list and creates a Coordinator.
// observer may be nil.
func NewCoordinator(channels []ChannelConfig, observer Observer, logger *slog.Logger) (*Coordinator, error) {
	seen := make(map[Channel]bool, len(channels))
	for _, c := range channels {
		if _, err := VariantFor(c.Channel); err != nil {
			return nil, err
		}
		if seen[c.Channel] {
			return nil, fmt.Errorf("channel %s configured twice", c.Channel)
		}
		seen[c.Channel] = true
		if c.Enabled && c.Runner == nil {
			return nil, fmt.Errorf("channel %s enabled without a runner", c.Channel)
		}
		if c.Enabled && c.Runner.Channel() != c.Channel {
			return nil, fmt.Errorf("channel %s has a runner for %s", c.Channel, c.Runner.Channel())
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{channels: channels, observer: observer, logger: logger}, nil
}

// EnabledChannels returns the enabled channels in configured order.
func (c *Coordinator) EnabledChannels() []Channel {
	var out []Channel
	for _, cfg := range c.channels {
		if cfg.Enabled {
			out = append(out, cfg.Channel)
		}
	}
	return out
}

// Run runs the enabled channels concurrently. Disabled channels get a zero
// result so the summary shape does not depend on configuration. The summary
// is always returned; the error is set when a channel could not run or ctx
// was cancelled.
func (c *Coordinator) Run(ctx context.Context, now time.Time, dryRun bool) (*Summary, error) {
	start := time.Now()
	summary := &Summary{
		RunID:     uuid.NewString(),
		StartedAt: start.UTC(),
		Instant:   now.UTC(),
		DryRun:    dryRun,
		Channels:  make([]ChannelResult, len(c.channels)),
	}
	logger := c.logger.With("run_id", summary.RunID)
	logger.Info("Notification run started",
		"instant", summary.Instant.Format(time.RFC3339),
		"dry_run", dryRun,
		"channels", channelNames(c.EnabledChannels()))

	g, gctx := errgroup.WithContext(ctx)
	for i, cfg := range c.channels {
		v, _ := VariantFor(cfg.Channel)
		summary.Channels[i] = ChannelResult{Channel: cfg.Channel, Label: v.Label, Enabled: cfg.Enabled}
		if !cfg.Enabled {
			continue
		}

		g.Go(func() error {
			chStart := time.Now()
			stats, err := cfg.Runner.Run(gctx, now, dryRun)
			elapsed := time.Since(chStart)

			res := &summary.Channels[i]
			res.Stats = stats
			res.Duration = elapsed
			if c.observer != nil {
				c.observer.ObserveChannel(cfg.Channel, stats, elapsed)
			}
			if err != nil {
				res.Error = err.Error()
				return err
			}
			return nil
		})
	}
	err := g.Wait()

	for _, res := range summary.Channels {
		summary.TotalSkipped += res.Stats.Skipped
		summary.TotalLogFailures += res.Stats.LogFailures
	}
	summary.Duration = time.Since(start)

	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		logger.Error("Notification run aborted", "error", err, "duration", summary.Duration.Round(time.Millisecond))
		return summary, err
	}
	logger.Info("Notification run complete",
		"total_skipped", summary.TotalSkipped,
		"total_log_failures", summary.TotalLogFailures,
		"duration", summary.Duration.Round(time.Millisecond))
	return summary, nil
}

// Channel returns the result for ch, if configured.
func (s *Summary) Channel(ch Channel) (ChannelResult, bool) {
	for _, r := range s.Channels {
		if r.Channel == ch {
			return r, true
		}
	}
	return ChannelResult{}, false
}

// Render returns the human-readable run summary.
func (s *Summary) Render() string {
	rule := strings.Repeat("=", 60)
	var b strings.Builder
	fmt.Fprintf(&b, "%s\nSummary\n%s\n", rule, rule)
	if s.DryRun {
		b.WriteString("Mode: DRY RUN\n")
	}
	for _, r := range s.Channels {
		if !r.Enabled {
			continue
		}
		fmt.Fprintf(&b, "%s sent: %d\n%s failed: %d\n", r.Label, r.Stats.Sent, r.Label, r.Stats.Failed)
		if r.Error != "" {
			fmt.Fprintf(&b, "%s error: %s\n", r.Label, r.Error)
		}
	}
	fmt.Fprintf(&b, "Total skipped: %d\nTotal log failures: %d\n", s.TotalSkipped, s.TotalLogFailures)
	return b.String()
}

func channelNames(chs []Channel) string {
	if len(chs) == 0 {
		return "NONE"
	}
	names := make([]string, len(chs))
	for i, ch := range chs {
		names[i] = strings.ToUpper(string(ch))
	}
	return strings.Join(names, ", ")
}
