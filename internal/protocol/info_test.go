package protocol

import (
	"reflect"
	"testing"

	"github.com/danmuck/nwcctl/internal/testutil/testlog"
	"github.com/nbd-wtf/go-nostr"
)

func TestParseServiceInfoDelimiters(t *testing.T) {
	testlog.Start(t)
	comma := ParseServiceInfo(&nostr.Event{Kind: KindInfo, Content: "get_info,get_balance"})
	space := ParseServiceInfo(&nostr.Event{Kind: KindInfo, Content: "get_info get_balance"})
	want := []Capability{"get_info", "get_balance"}
	if !reflect.DeepEqual(comma.Capabilities, want) {
		t.Fatalf("comma: %v", comma.Capabilities)
	}
	if !reflect.DeepEqual(space.Capabilities, want) {
		t.Fatalf("space: %v", space.Capabilities)
	}
}

func TestParseServiceInfoNotifications(t *testing.T) {
	testlog.Start(t)
	info := ParseServiceInfo(&nostr.Event{
		Kind:    KindInfo,
		Content: "pay_invoice notifications",
		Tags:    nostr.Tags{{TagNotifications, "payment_received payment_sent"}},
	})
	if !info.Supports(CapabilityNotifications) || !info.Supports(Capability(MethodPayInvoice)) {
		t.Fatalf("missing capabilities: %v", info.Capabilities)
	}
	if info.Supports(Capability(MethodMakeInvoice)) {
		t.Fatalf("unexpected make_invoice capability")
	}
	want := []NotificationType{NotificationPaymentReceived, NotificationPaymentSent}
	if !reflect.DeepEqual(info.Notifications, want) {
		t.Fatalf("notifications: %v", info.Notifications)
	}
}

func TestParseServiceInfoEmpty(t *testing.T) {
	testlog.Start(t)
	info := ParseServiceInfo(&nostr.Event{Kind: KindInfo, Content: "  "})
	if len(info.Capabilities) != 0 || len(info.Notifications) != 0 {
		t.Fatalf("expected empty info, got %+v", info)
	}
	if info := ParseServiceInfo(nil); info.Capabilities == nil {
		t.Fatalf("nil event should still give non-nil slices")
	}
}
