package protocol

import (
	"strings"

	"github.com/nbd-wtf/go-nostr"
)

// ParseServiceInfo reads capabilities and notification types from a wallet info event.
// Capabilities are space delimited; older wallets used commas, so both are accepted.
func ParseServiceInfo(evt *nostr.Event) ServiceInfo {
	info := ServiceInfo{
		Capabilities:  []Capability{},
		Notifications: []NotificationType{},
	}
	if evt == nil {
		return info
	}
	for _, field := range strings.FieldsFunc(evt.Content, isCapabilityDelimiter) {
		info.Capabilities = append(info.Capabilities, Capability(field))
	}
	if raw, ok := TagValue(evt.Tags, TagNotifications); ok {
		for _, field := range strings.Fields(raw) {
			info.Notifications = append(info.Notifications, NotificationType(field))
		}
	}
	return info
}

func isCapabilityDelimiter(r rune) bool {
	return r == ',' || r == ' ' || r == '\n' || r == '\t'
}
