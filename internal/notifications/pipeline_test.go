package notifications

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRunner struct {
	ch    Channel
	stats Stats
	err   error
}

func (s *stubRunner) Channel() Channel { return s.ch }

func (s *stubRunner) Run(ctx context.Context, now time.Time, dryRun bool) (Stats, error) {
	return s.stats, s.err
}

type recordingObserver struct {
	mu   sync.Mutex
	seen map[Channel]Stats
}

func (o *recordingObserver) ObserveChannel(ch Channel, stats Stats, elapsed time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.seen == nil {
		o.seen = map[Channel]Stats{}
	}
	o.seen[ch] = stats
}

func TestCoordinator_DisabledChannelGetsZeroStats(t *testing.T) {
	email := &stubRunner{ch: ChannelEmail, stats: Stats{Sent: 3, Failed: 1, Skipped: 4, LogFailures: 1}}
	obs := &recordingObserver{}
	c, err := NewCoordinator([]ChannelConfig{
		{Channel: ChannelEmail, Enabled: true, Runner: email},
		{Channel: ChannelSMS, Enabled: false},
	}, obs, nil)
	require.NoError(t, err)

	summary, err := c.Run(context.Background(), fixedInstant, false)
	require.NoError(t, err)

	require.Len(t, summary.Channels, 2)
	sms, ok := summary.Channel(ChannelSMS)
	require.True(t, ok)
	assert.False(t, sms.Enabled)
	assert.Equal(t, Stats{}, sms.Stats)
	assert.Equal(t, 4, summary.TotalSkipped)
	assert.Equal(t, 1, summary.TotalLogFailures)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, map[Channel]Stats{ChannelEmail: email.stats}, obs.seen)

	out := summary.Render()
	assert.Contains(t, out, "Emails sent: 3\nEmails failed: 1\n")
	assert.NotContains(t, out, "SMS sent")
	assert.Contains(t, out, "Total skipped: 4\nTotal log failures: 1\n")
}

func TestCoordinator_SumsAcrossChannels(t *testing.T) {
	c, err := NewCoordinator([]ChannelConfig{
		{Channel: ChannelEmail, Enabled: true, Runner: &stubRunner{ch: ChannelEmail, stats: Stats{Sent: 1, Skipped: 2}}},
		{Channel: ChannelSMS, Enabled: true, Runner: &stubRunner{ch: ChannelSMS, stats: Stats{Failed: 1, Skipped: 3, LogFailures: 2}}},
	}, nil, nil)
	require.NoError(t, err)

	summary, err := c.Run(context.Background(), fixedInstant, true)
	require.NoError(t, err)

	assert.Equal(t, 5, summary.TotalSkipped)
	assert.Equal(t, 2, summary.TotalLogFailures)
	assert.True(t, summary.DryRun)
	assert.Contains(t, summary.Render(), "SMS sent: 0\nSMS failed: 1\n")
	assert.Equal(t, []Channel{ChannelEmail, ChannelSMS}, c.EnabledChannels())
}

func TestCoordinator_ChannelErrorEscapesWithPartialSummary(t *testing.T) {
	c, err := NewCoordinator([]ChannelConfig{
		{Channel: ChannelEmail, Enabled: true, Runner: &stubRunner{ch: ChannelEmail, err: errors.New("fetch users: connection refused")}},
		{Channel: ChannelSMS, Enabled: true, Runner: &stubRunner{ch: ChannelSMS, stats: Stats{Sent: 2}}},
	}, nil, nil)
	require.NoError(t, err)

	summary, err := c.Run(context.Background(), fixedInstant, false)
	require.Error(t, err)
	require.NotNil(t, summary)

	email, _ := summary.Channel(ChannelEmail)
	assert.Contains(t, email.Error, "connection refused")
	assert.Contains(t, summary.Render(), "Emails error: fetch users: connection refused")
}

func TestCoordinator_EndToEndWithDispatchers(t *testing.T) {
	dir := scenarioDirectory()
	emailSender, smsSender := &fakeSender{}, &fakeSender{}
	sink := &fakeSink{}
	union := Filter{Email: true, SMS: true}

	emailD, err := NewDispatcher(ChannelEmail, DispatcherConfig{Directory: dir, Sender: emailSender, Sink: sink, Fetch: union})
	require.NoError(t, err)
	smsD, err := NewDispatcher(ChannelSMS, DispatcherConfig{Directory: dir, Sender: smsSender, Sink: sink, Fetch: union})
	require.NoError(t, err)

	c, err := NewCoordinator([]ChannelConfig{
		{Channel: ChannelEmail, Enabled: true, Runner: emailD},
		{Channel: ChannelSMS, Enabled: true, Runner: smsD},
	}, nil, nil)
	require.NoError(t, err)

	summary, err := c.Run(context.Background(), fixedInstant, false)
	require.NoError(t, err)

	email, _ := summary.Channel(ChannelEmail)
	sms, _ := summary.Channel(ChannelSMS)
	assert.Equal(t, Stats{Sent: 1, Skipped: 2}, email.Stats)
	assert.Equal(t, Stats{Sent: 1, Skipped: 2}, sms.Stats)
	assert.Equal(t, 4, summary.TotalSkipped)
	assert.Len(t, sink.records(), 2)
}

func TestNewCoordinator_Validation(t *testing.T) {
	_, err := NewCoordinator([]ChannelConfig{{Channel: ChannelEmail, Enabled: true}}, nil, nil)
	assert.Error(t, err)

	_, err = NewCoordinator([]ChannelConfig{
		{Channel: ChannelEmail, Enabled: true, Runner: &stubRunner{ch: ChannelSMS}},
	}, nil, nil)
	assert.Error(t, err)

	_, err = NewCoordinator([]ChannelConfig{{Channel: ChannelSMS}, {Channel: ChannelSMS}}, nil, nil)
	assert.Error(t, err)

	_, err = NewCoordinator([]ChannelConfig{{Channel: "pager"}}, nil, nil)
	assert.ErrorIs(t, err, ErrUnknownChannel)
}

func TestParseChannel(t *testing.T) {
	ch, err := ParseChannel(" SMS ")
	require.NoError(t, err)
	assert.Equal(t, ChannelSMS, ch)

	_, err = ParseChannel("fax")
	assert.ErrorIs(t, err, ErrUnknownChannel)
}
