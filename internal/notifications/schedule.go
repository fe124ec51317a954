package notifications

import (
	"fmt"
	"time"
	_ "time/tzdata" // zone database for minimal images
)

// HourInWindow reports whether hour falls inside the inclusive window
// [start, end]. start == end is a single-hour window; start > end wraps
// past midnight.
func HourInWindow(hour, start, end int) bool {
	if start == end {
		return hour == start
	}
	if start < end {
		return hour >= start && hour <= end
	}
	return hour >= start || hour <= end
}

// CurrentHour returns the local hour of day (0-23) at instant in timezone.
func CurrentHour(timezone string, instant time.Time) (int, error) {
	if timezone == "" {
		return 0, fmt.Errorf("%w: empty name", ErrUnknownTimezone)
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrUnknownTimezone, timezone, err)
	}
	return instant.In(loc).Hour(), nil
}

// ShouldNotify reports whether instant is inside the user's window in the
// user's timezone. Users without a timezone, or with one that does not
// resolve, are never notified.
func ShouldNotify(u User, instant time.Time) bool {
	if u.Timezone == "" {
		return false
	}
	hour, err := CurrentHour(u.Timezone, instant)
	if err != nil {
		return false
	}
	return HourInWindow(hour, u.NotificationStartHour, u.NotificationEndHour)
}

// SMSUsable reports whether the user has opted in to SMS and has a verified
// phone with both parts present.
func SMSUsable(u User) bool {
	optedIn := u.SMSEnabled && !u.SMSOptedOut
	verifiedPhone := u.PhoneVerified && u.PhoneCountryCode != "" && u.PhoneNumber != ""
	return optedIn && verifiedPhone
}
