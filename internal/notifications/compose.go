package notifications

import (
	"fmt"
	"strings"
)

const (
	emailNoItems = "You don't have any tracked stocks"
	smsNoItems   = "You don't have any tracked stocks. Reply STOP to opt out."
)

// ComposeEmailBody renders the email body for a list of tracked symbols.
func ComposeEmailBody(items []string) string {
	if len(items) == 0 {
		return emailNoItems
	}
	return fmt.Sprintf("Your tracked stocks: %s", strings.Join(items, ", "))
}

// ComposeSMSBody renders the SMS body, truncated to the SMS budget.
func ComposeSMSBody(items []string) string {
	if len(items) == 0 {
		return Truncate(smsNoItems, smsMaxLength)
	}
	msg := fmt.Sprintf("Tracked: %s. Reply STOP to opt out.", strings.Join(items, ", "))
	return Truncate(msg, smsMaxLength)
}

// Truncate shortens message to at most maxLength characters, ending in
// "..." when anything was cut. Lengths count runes, not bytes.
func Truncate(message string, maxLength int) string {
	runes := []rune(message)
	if len(runes) <= maxLength {
		return message
	}
	if maxLength <= len(ellipsis) {
		return string([]rune(ellipsis)[:max(maxLength, 0)])
	}
	return string(runes[:maxLength-len(ellipsis)]) + ellipsis
}
