package notifications

import (
	"context"
	"errors"
	"sync"
	"time"
)

type fakeDirectory struct {
	mu       sync.Mutex
	users    []User
	items    map[string][]string
	itemErrs map[string]error
	panics   map[string]bool
	fetchErr error
	filters  []Filter
	loads    []string
}

func (f *fakeDirectory) FetchEligibleUsers(ctx context.Context, filter Filter) ([]User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return append([]User(nil), f.users...), nil
}

func (f *fakeDirectory) LoadUserItems(ctx context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads = append(f.loads, userID)
	if f.panics[userID] {
		panic("driver bug")
	}
	if err := f.itemErrs[userID]; err != nil {
		return nil, err
	}
	return f.items[userID], nil
}

type sentMessage struct {
	Recipient string
	Body      string
}

type fakeSender struct {
	mu      sync.Mutex
	sent    []sentMessage
	outcome func(recipient string) Outcome
}

func (f *fakeSender) Send(ctx context.Context, recipient, body string) Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{Recipient: recipient, Body: body})
	if f.outcome != nil {
		return f.outcome(recipient)
	}
	return Outcome{Delivered: true, ProviderID: "id-" + recipient}
}

func (f *fakeSender) calls() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type fakeSink struct {
	mu       sync.Mutex
	attempts []Attempt
	err      error
}

func (f *fakeSink) Append(ctx context.Context, a Attempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.attempts = append(f.attempts, a)
	return nil
}

func (f *fakeSink) records() []Attempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Attempt(nil), f.attempts...)
}

var errSinkDown = errors.New("notification_log insert failed")

// fixedInstant is 14:00 UTC: 09:00 in New York, 14:00 in London.
var fixedInstant = time.Date(2024, time.January, 15, 14, 0, 0, 0, time.UTC)

// scenarioUsers is the three-user scenario: no timezone, outside the window,
// inside the window.
func scenarioUsers() []User {
	return []User{
		{
			ID: "a", Email: "a@example.com",
			NotificationStartHour: 0, NotificationEndHour: 23,
			EmailEnabled: true, SMSEnabled: true,
			PhoneVerified: true, PhoneCountryCode: "+1", PhoneNumber: "5550000001",
		},
		{
			ID: "b", Email: "b@example.com", Timezone: "America/New_York",
			NotificationStartHour: 18, NotificationEndHour: 22,
			EmailEnabled: true, SMSEnabled: true,
			PhoneVerified: true, PhoneCountryCode: "+1", PhoneNumber: "5550000002",
		},
		{
			ID: "c", Email: "c@example.com", Timezone: "Europe/London",
			NotificationStartHour: 9, NotificationEndHour: 17,
			EmailEnabled: true, SMSEnabled: true,
			PhoneVerified: true, PhoneCountryCode: "+44", PhoneNumber: "7700900003",
		},
	}
}

func scenarioDirectory() *fakeDirectory {
	return &fakeDirectory{
		users: scenarioUsers(),
		items: map[string][]string{"a": {"AAPL"}, "b": {"MSFT"}, "c": {"TSLA"}},
	}
}
