package protocol

import "strings"

// GetInfoResponse is the get_info result.
type GetInfoResponse struct {
	Alias         string             `json:"alias"`
	Color         string             `json:"color"`
	Pubkey        string             `json:"pubkey"`
	Network       string             `json:"network"`
	BlockHeight   uint64             `json:"block_height"`
	BlockHash     string             `json:"block_hash"`
	Methods       []Method           `json:"methods"`
	Notifications []NotificationType `json:"notifications,omitempty"`
}

// GetBalanceResponse carries the balance in msats.
type GetBalanceResponse struct {
	Balance int64 `json:"balance"`
}

type PayResponse struct {
	Preimage string `json:"preimage"`
	FeesPaid int64  `json:"fees_paid,omitempty"`
}

type PayInvoiceRequest struct {
	Invoice string `json:"invoice"`
	Amount  int64  `json:"amount,omitempty"` // msats
}

func (r PayInvoiceRequest) Validate() error {
	if strings.TrimSpace(r.Invoice) == "" {
		return NewError(KindInvalidRequest, "missing invoice")
	}
	if r.Amount < 0 {
		return NewError(KindInvalidRequest, "negative amount")
	}
	return nil
}

type TLVRecord struct {
	Type  uint64 `json:"type"`
	Value string `json:"value"`
}

type PayKeysendRequest struct {
	Amount     int64       `json:"amount"` // msats
	Pubkey     string      `json:"pubkey"`
	Preimage   string      `json:"preimage,omitempty"`
	TLVRecords []TLVRecord `json:"tlv_records,omitempty"`
}

func (r PayKeysendRequest) Validate() error {
	if r.Amount <= 0 {
		return NewError(KindInvalidRequest, "missing amount")
	}
	if strings.TrimSpace(r.Pubkey) == "" {
		return NewError(KindInvalidRequest, "missing pubkey")
	}
	return nil
}

// MultiPayInvoiceItem is one batch entry; ID becomes the item's aggregation key.
type MultiPayInvoiceItem struct {
	ID string `json:"id,omitempty"`
	PayInvoiceRequest
}

type MultiPayInvoiceRequest struct {
	Invoices []MultiPayInvoiceItem `json:"invoices"`
}

type MultiPayKeysendItem struct {
	ID string `json:"id,omitempty"`
	PayKeysendRequest
}

type MultiPayKeysendRequest struct {
	Keysends []MultiPayKeysendItem `json:"keysends"`
}

// MultiPayError reports one batch item that did not settle successfully.
type MultiPayError struct {
	DTag    string    `json:"dTag"`
	Kind    ErrorKind `json:"-"`
	Message string    `json:"message"`
	Code    string    `json:"code"`
}

type MultiPayInvoiceResult struct {
	Invoice PayInvoiceRequest `json:"invoice"`
	PayResponse
	DTag string `json:"dTag"`
}

type MultiPayInvoiceResponse struct {
	Invoices []MultiPayInvoiceResult `json:"invoices"`
	Errors   []MultiPayError         `json:"errors"`
}

type MultiPayKeysendResult struct {
	Keysend PayKeysendRequest `json:"keysend"`
	PayResponse
	DTag string `json:"dTag"`
}

type MultiPayKeysendResponse struct {
	Keysends []MultiPayKeysendResult `json:"keysends"`
	Errors   []MultiPayError         `json:"errors"`
}

type MakeInvoiceRequest struct {
	Amount          int64  `json:"amount"` // msats
	Description     string `json:"description,omitempty"`
	DescriptionHash string `json:"description_hash,omitempty"`
	Expiry          int64  `json:"expiry,omitempty"` // seconds
}

func (r MakeInvoiceRequest) Validate() error {
	if r.Amount <= 0 {
		return NewError(KindInvalidRequest, "no amount specified")
	}
	return nil
}

type LookupInvoiceRequest struct {
	PaymentHash string `json:"payment_hash,omitempty"`
	Invoice     string `json:"invoice,omitempty"`
}

func (r LookupInvoiceRequest) Validate() error {
	if strings.TrimSpace(r.PaymentHash) == "" && strings.TrimSpace(r.Invoice) == "" {
		return NewError(KindInvalidRequest, "payment_hash or invoice required")
	}
	return nil
}

type TransactionType string

const (
	TransactionIncoming TransactionType = "incoming"
	TransactionOutgoing TransactionType = "outgoing"
)

type ListTransactionsRequest struct {
	From   int64           `json:"from,omitempty"`
	Until  int64           `json:"until,omitempty"`
	Limit  int64           `json:"limit,omitempty"`
	Offset int64           `json:"offset,omitempty"`
	Unpaid bool            `json:"unpaid,omitempty"`
	Type   TransactionType `json:"type,omitempty"`
}

type ListTransactionsResponse struct {
	Transactions []Transaction `json:"transactions"`
}

type Transaction struct {
	Type            string         `json:"type"`
	Invoice         string         `json:"invoice"`
	Description     string         `json:"description"`
	DescriptionHash string         `json:"description_hash"`
	Preimage        string         `json:"preimage"`
	PaymentHash     string         `json:"payment_hash"`
	Amount          int64          `json:"amount"`
	FeesPaid        int64          `json:"fees_paid"`
	SettledAt       int64          `json:"settled_at"`
	CreatedAt       int64          `json:"created_at"`
	ExpiresAt       int64          `json:"expires_at"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

type SignMessageRequest struct {
	Message string `json:"message"`
}

type SignMessageResponse struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

// Notification is a decrypted wallet push event.
type Notification struct {
	NotificationType NotificationType `json:"notification_type"`
	Notification     Transaction      `json:"notification"`
}

// ServiceInfo is what a wallet announces in its info event.
type ServiceInfo struct {
	Capabilities  []Capability
	Notifications []NotificationType
}

// Supports reports whether the wallet announced capability c.
func (s ServiceInfo) Supports(c Capability) bool {
	for _, have := range s.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}
