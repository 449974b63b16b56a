package protocol

// Event kinds used by wallet connect.
const (
	KindInfo         = 13194
	KindRequest      = 23194
	KindResponse     = 23195
	KindNotification = 23196
)

// Tag names.
const (
	TagPubkey        = "p"
	TagEvent         = "e"
	TagAggregation   = "d"
	TagNotifications = "notifications"
)

// Method is a wallet connect request method name.
type Method string

const (
	MethodGetInfo          Method = "get_info"
	MethodGetBalance       Method = "get_balance"
	MethodMakeInvoice      Method = "make_invoice"
	MethodPayInvoice       Method = "pay_invoice"
	MethodPayKeysend       Method = "pay_keysend"
	MethodLookupInvoice    Method = "lookup_invoice"
	MethodListTransactions Method = "list_transactions"
	MethodSignMessage      Method = "sign_message"
	MethodMultiPayInvoice  Method = "multi_pay_invoice"
	MethodMultiPayKeysend  Method = "multi_pay_keysend"
)

// IsMulti reports whether the method replies once per batch item.
func (m Method) IsMulti() bool {
	return m == MethodMultiPayInvoice || m == MethodMultiPayKeysend
}

// Capability is a method name or "notifications" announced by a wallet.
type Capability string

const CapabilityNotifications Capability = "notifications"

// NotificationType names a wallet push notification.
type NotificationType string

const (
	NotificationPaymentReceived NotificationType = "payment_received"
	NotificationPaymentSent     NotificationType = "payment_sent"
)
