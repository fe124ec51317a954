package notifications

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownChannel is returned for a channel name outside the closed set.
var ErrUnknownChannel = errors.New("unknown channel")

// Channel is a delivery method discriminator.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Channels lists every channel in run order.
var Channels = []Channel{ChannelEmail, ChannelSMS}

// ParseChannel parses a channel name, case-insensitively.
func ParseChannel(s string) (Channel, error) {
	switch Channel(strings.ToLower(strings.TrimSpace(s))) {
	case ChannelEmail:
		return ChannelEmail, nil
	case ChannelSMS:
		return ChannelSMS, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownChannel, s)
}

// Variant is the per-channel capability set the Dispatcher works with.
type Variant struct {
	Channel Channel
	Label   string

	// Enabled is the channel's own opt-in flag, re-checked after the
	// directory fetch.
	Enabled func(User) bool
	// Usable is an extra per-channel check; nil means always usable.
	Usable    func(User) bool
	Compose   func(items []string) string
	Recipient func(User) string
}

// VariantFor returns the variant for a channel.
func VariantFor(ch Channel) (Variant, error) {
	switch ch {
	case ChannelEmail:
		return Variant{
			Channel:   ChannelEmail,
			Label:     "Emails",
			Enabled:   func(u User) bool { return u.EmailEnabled },
			Compose:   ComposeEmailBody,
			Recipient: func(u User) string { return u.Email },
		}, nil
	case ChannelSMS:
		return Variant{
			Channel:   ChannelSMS,
			Label:     "SMS",
			Enabled:   func(u User) bool { return u.SMSEnabled },
			Usable:    SMSUsable,
			Compose:   ComposeSMSBody,
			Recipient: User.FullPhone,
		}, nil
	}
	return Variant{}, fmt.Errorf("%w: %q", ErrUnknownChannel, string(ch))
}

// usable applies the optional Usable check.
func (v Variant) usable(u User) bool {
	if v.Usable == nil {
		return true
	}
	return v.Usable(u)
}

// FilterFor returns the directory filter for one channel.
func FilterFor(ch Channel) Filter {
	return Filter{Email: ch == ChannelEmail, SMS: ch == ChannelSMS}
}
