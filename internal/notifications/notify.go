// Package notifications decides which users are inside their notification
// window, composes a per-channel summary of their tracked stocks, delivers it
// and records every attempt in the notification log.
//
// Pipeline per channel: fetch users → eligibility → load items → compose →
// send → log. The Coordinator runs one Dispatcher per enabled channel and
// merges their statistics into a Summary.
package notifications

import (
	"context"
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	defaultStartHour = 0
	defaultEndHour   = 23
	smsMaxLength     = 160
	ellipsis         = "..."
	unknownError     = "Unknown error"

	// LogType is the notification_log.type value for every attempt.
	LogType = "scheduled_update"
)

var (
	// ErrUnknownTimezone is returned when a timezone name cannot be resolved.
	ErrUnknownTimezone = errors.New("unknown timezone")

	// ErrItemsUnavailable marks an item-load failure, as opposed to an
	// empty item list.
	ErrItemsUnavailable = errors.New("tracked items unavailable")
)

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// User is a read-only snapshot of one notification recipient.
// Empty strings mean "not set" for the optional fields.
type User struct {
	ID                    string
	Email                 string
	PhoneCountryCode      string
	PhoneNumber           string
	PhoneVerified         bool
	SMSOptedOut           bool
	Timezone              string
	NotificationStartHour int
	NotificationEndHour   int
	EmailEnabled          bool
	SMSEnabled            bool
}

// FullPhone returns the phone number in <country_code><number> form.
func (u User) FullPhone() string {
	return u.PhoneCountryCode + u.PhoneNumber
}

// Outcome is the normalised result of one transport call.
type Outcome struct {
	Delivered  bool
	ProviderID string
	Error      string
	ErrorCode  string
}

// Attempt is one delivery decision and outcome for (user, channel, run).
// Body is set when Delivered. Reason is the transport error as reported and
// may be empty on failure.
type Attempt struct {
	UserID    string
	Channel   Channel
	Delivered bool
	Body      string
	Reason    string
	ErrorCode string
}

// newAttempt builds the attempt record for a delivery outcome.
func newAttempt(userID string, ch Channel, body string, out Outcome) Attempt {
	a := Attempt{
		UserID:    userID,
		Channel:   ch,
		Delivered: out.Delivered,
		ErrorCode: out.ErrorCode,
	}
	if out.Delivered {
		a.Body = body
		return a
	}
	a.Reason = out.Error
	return a
}

// LogMessage is the value stored in notification_log.message: the body on
// success, the failure reason otherwise.
func (a Attempt) LogMessage() string {
	switch {
	case a.Delivered:
		return a.Body
	case a.Reason == "":
		return unknownError
	}
	return a.Reason
}

// LogError is the value stored in notification_log.error. It is nil unless
// the attempt failed with a reported reason.
func (a Attempt) LogError() *string {
	if a.Delivered || a.Reason == "" {
		return nil
	}
	return &a.Reason
}

// Stats holds per-channel run counters.
type Stats struct {
	Sent        int `json:"sent"`
	Failed      int `json:"failed"`
	Skipped     int `json:"skipped"`
	LogFailures int `json:"log_failures"`
}

// Add merges other into s.
func (s *Stats) Add(other Stats) {
	s.Sent += other.Sent
	s.Failed += other.Failed
	s.Skipped += other.Skipped
	s.LogFailures += other.LogFailures
}

// Summary returns a compact one-line rendering for logs.
func (s Stats) Summary() string {
	return fmt.Sprintf("sent=%d failed=%d skipped=%d log_failures=%d",
		s.Sent, s.Failed, s.Skipped, s.LogFailures)
}

// --------------------------------------------------------------------------
// Collaborators
// --------------------------------------------------------------------------

// Filter selects users by their channel flags. Both set means either flag.
type Filter struct {
	Email bool
	SMS   bool
}

// Directory is the user and item store.
type Directory interface {
	FetchEligibleUsers(ctx context.Context, f Filter) ([]User, error)
	// LoadUserItems returns the tracked symbols for a user, or an error
	// wrapping ErrItemsUnavailable.
	LoadUserItems(ctx context.Context, userID string) ([]string, error)
}

// LogSink appends one record per delivery attempt.
type LogSink interface {
	Append(ctx context.Context, a Attempt) error
}

// Sender delivers a composed body to a recipient. Implementations never
// return errors; failures are reported in the Outcome.
type Sender interface {
	Send(ctx context.Context, recipient, body string) Outcome
}
