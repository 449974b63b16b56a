package protocol

import (
	"bytes"
	"encoding/json"
)

// Validator checks the structure of a decoded {"result": ...} object.
type Validator func(result json.RawMessage) bool

func resultFields(result json.RawMessage) (map[string]json.RawMessage, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(result, &fields); err != nil || fields == nil {
		return nil, false
	}
	return fields, true
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// RequireFields passes when every name is present and non-null.
func RequireFields(names ...string) Validator {
	return func(result json.RawMessage) bool {
		fields, ok := resultFields(result)
		if !ok {
			return false
		}
		for _, name := range names {
			if !present(fields[name]) {
				return false
			}
		}
		return true
	}
}

// RequireString passes when name is a non-empty JSON string.
func RequireString(name string) Validator {
	return func(result json.RawMessage) bool {
		fields, ok := resultFields(result)
		if !ok {
			return false
		}
		var v string
		if err := json.Unmarshal(fields[name], &v); err != nil {
			return false
		}
		return v != ""
	}
}

// All passes when every validator passes.
func All(validators ...Validator) Validator {
	return func(result json.RawMessage) bool {
		for _, v := range validators {
			if !v(result) {
				return false
			}
		}
		return true
	}
}

// Typed decodes result into T before applying check; a result that does not fit T fails.
func Typed[T any](check func(T) bool) Validator {
	return func(result json.RawMessage) bool {
		var v T
		if err := json.Unmarshal(result, &v); err != nil {
			return false
		}
		return check == nil || check(v)
	}
}

var (
	ValidateGetInfo          = All(RequireFields("methods"), Typed[GetInfoResponse](nil))
	ValidateGetBalance       = All(RequireFields("balance"), Typed[GetBalanceResponse](nil))
	ValidatePay              = All(RequireString("preimage"), Typed[PayResponse](nil))
	ValidateTransaction      = All(RequireString("invoice"), Typed[Transaction](nil))
	ValidateListTransactions = All(RequireFields("transactions"), Typed[ListTransactionsResponse](nil))
)

// ValidateSignMessage requires the wallet to echo message and return a signature.
func ValidateSignMessage(message string) Validator {
	return All(
		RequireString("signature"),
		Typed(func(r SignMessageResponse) bool { return r.Message == message }),
	)
}
