package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/albapepper/stock-notifier/internal/transport"
)

// Transport is the outbound client behind a channel.
type Transport interface {
	Send(ctx context.Context, msg transport.Message) (string, error)
}

// CodeCircuitOpen is the error code reported while a channel's breaker is open.
const CodeCircuitOpen = "circuit_open"

// ChannelSender adapts a Transport to Sender. It owns a circuit breaker so a
// dead provider fails fast instead of timing out once per user.
type ChannelSender struct {
	channel   Channel
	from      string
	subject   string
	transport Transport
	breaker   *gobreaker.CircuitBreaker
	logger    *slog.Logger
}

// NewEmailSender creates the email channel sender.
func NewEmailSender(t Transport, from, subject string, logger *slog.Logger) *ChannelSender {
	return newChannelSender(ChannelEmail, t, from, subject, logger)
}

// NewSMSSender creates the SMS channel sender.
func NewSMSSender(t Transport, from string, logger *slog.Logger) *ChannelSender {
	return newChannelSender(ChannelSMS, t, from, "", logger)
}

func newChannelSender(ch Channel, t Transport, from, subject string, logger *slog.Logger) *ChannelSender {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ChannelSender{
		channel:   ch,
		from:      from,
		subject:   subject,
		transport: t,
		logger:    logger,
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(ch) + "-transport",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Provider rejections of a single message say nothing about the
		// provider's health; only network and server failures count.
		IsSuccessful: func(err error) bool {
			var terr *transport.Error
			if errors.As(err, &terr) && terr.Status >= 400 && terr.Status < 500 {
				return true
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Transport circuit state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return s
}

// Send delivers body to recipient and normalises every failure into the
// Outcome, including panics raised by the transport.
func (s *ChannelSender) Send(ctx context.Context, recipient, body string) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Transport panicked", "channel", s.channel, "panic", r)
			out = Outcome{Error: fmt.Sprintf("transport panic: %v", r)}
		}
	}()

	msg := transport.Message{From: s.from, To: recipient, Subject: s.subject, Body: body}
	res, err := s.breaker.Execute(func() (interface{}, error) {
		return s.transport.Send(ctx, msg)
	})
	if err != nil {
		return failureOutcome(err)
	}
	id, _ := res.(string)
	return Outcome{Delivered: true, ProviderID: id}
}

func failureOutcome(err error) Outcome {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Outcome{Error: err.Error(), ErrorCode: CodeCircuitOpen}
	}
	var terr *transport.Error
	if errors.As(err, &terr) {
		return Outcome{Error: terr.Message, ErrorCode: terr.Code}
	}
	return Outcome{Error: err.Error()}
}
