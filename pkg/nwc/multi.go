package nwc

import (
	"context"
	"encoding/json"

	"github.com/danmuck/nwcctl/internal/protocol"
	"github.com/danmuck/nwcctl/internal/protocol/session"
	"github.com/google/uuid"
)

// MultiPayInvoice pays a batch of invoices with one request. Items without an
// ID get a random one; each result carries its request item and ID as DTag.
func (c *Client) MultiPayInvoice(ctx context.Context, req protocol.MultiPayInvoiceRequest) (*protocol.MultiPayInvoiceResponse, error) {
	method := protocol.MethodMultiPayInvoice
	items := make([]protocol.MultiPayInvoiceItem, len(req.Invoices))
	keys := make([]string, len(req.Invoices))
	byKey := make(map[string]protocol.PayInvoiceRequest, len(req.Invoices))
	for i, item := range req.Invoices {
		if err := item.Validate(); err != nil {
			return nil, c.fail(method, err)
		}
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		items[i], keys[i] = item, item.ID
		byKey[item.ID] = item.PayInvoiceRequest
	}

	results, err := c.engine.ExecuteMulti(ctx, method, protocol.MultiPayInvoiceRequest{Invoices: items}, keys, protocol.ValidatePay)
	if err != nil {
		return nil, c.fail(method, err)
	}

	out := &protocol.MultiPayInvoiceResponse{
		Invoices: make([]protocol.MultiPayInvoiceResult, 0, len(results)),
		Errors:   make([]protocol.MultiPayError, 0),
	}
	for _, r := range results {
		pay, itemErr := settle(method, r)
		if itemErr != nil {
			out.Errors = append(out.Errors, *itemErr)
			continue
		}
		out.Invoices = append(out.Invoices, protocol.MultiPayInvoiceResult{Invoice: byKey[r.Key], PayResponse: pay, DTag: r.Key})
	}
	return out, nil
}

// MultiPayKeysend is MultiPayInvoice for keysend payments.
func (c *Client) MultiPayKeysend(ctx context.Context, req protocol.MultiPayKeysendRequest) (*protocol.MultiPayKeysendResponse, error) {
	method := protocol.MethodMultiPayKeysend
	items := make([]protocol.MultiPayKeysendItem, len(req.Keysends))
	keys := make([]string, len(req.Keysends))
	byKey := make(map[string]protocol.PayKeysendRequest, len(req.Keysends))
	for i, item := range req.Keysends {
		if err := item.Validate(); err != nil {
			return nil, c.fail(method, err)
		}
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		items[i], keys[i] = item, item.ID
		byKey[item.ID] = item.PayKeysendRequest
	}

	results, err := c.engine.ExecuteMulti(ctx, method, protocol.MultiPayKeysendRequest{Keysends: items}, keys, protocol.ValidatePay)
	if err != nil {
		return nil, c.fail(method, err)
	}

	out := &protocol.MultiPayKeysendResponse{
		Keysends: make([]protocol.MultiPayKeysendResult, 0, len(results)),
		Errors:   make([]protocol.MultiPayError, 0),
	}
	for _, r := range results {
		pay, itemErr := settle(method, r)
		if itemErr != nil {
			out.Errors = append(out.Errors, *itemErr)
			continue
		}
		out.Keysends = append(out.Keysends, protocol.MultiPayKeysendResult{Keysend: byKey[r.Key], PayResponse: pay, DTag: r.Key})
	}
	return out, nil
}

func settle(method protocol.Method, r session.ItemResult) (protocol.PayResponse, *protocol.MultiPayError) {
	itemErr := r.Err
	var pay protocol.PayResponse
	if itemErr == nil {
		if err := json.Unmarshal(r.Result, &pay); err != nil {
			itemErr = protocol.WrapError(protocol.KindResponseValidation, err, "decode %s item %s", method, r.Key)
		}
	}
	if itemErr != nil {
		return protocol.PayResponse{}, &protocol.MultiPayError{
			DTag:    r.Key,
			Kind:    itemErr.Kind,
			Message: itemErr.Message,
			Code:    itemErr.Code,
		}
	}
	return pay, nil
}
