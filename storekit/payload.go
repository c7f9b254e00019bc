// storekit/payload.go
package storekit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// Environment values Apple puts in signed transactions. The verifier treats
// the field as an opaque string; these constants exist for caller policy
// checks (e.g. rejecting Sandbox purchases in production).
const (
	EnvironmentSandbox    = "Sandbox"
	EnvironmentProduction = "Production"
)

// VerifiedPayload is the decoded claims object of a verified transaction
// token. Keys follow Apple's JWSTransactionDecodedPayload naming.
type VerifiedPayload map[string]any

// decodePayload turns the payload segment into a JSON object. No schema
// validation happens here; field checks belong to the caller.
func decodePayload(segment string) (VerifiedPayload, error) {
	raw, err := decodeFlexB64(segment)
	if err != nil {
		return nil, verificationErr(ErrCodeMalformedPayload, err)
	}
	var payload VerifiedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, verificationErr(ErrCodeMalformedPayload, err)
	}
	if payload == nil {
		return nil, verificationErr(ErrCodeMalformedPayload, fmt.Errorf("payload is not a JSON object"))
	}
	return payload, nil
}

// Transaction is a typed view of the subscription-relevant payload fields.
type Transaction struct {
	AppAccountToken       string `json:"appAccountToken"       validate:"required,uuid4"`
	OriginalTransactionID string `json:"originalTransactionId" validate:"required"`
	TransactionID         string `json:"transactionId"`
	ProductID             string `json:"productId"`
	BundleID              string `json:"bundleId"`
	ExpiresDate           int64  `json:"expiresDate" validate:"required,gt=0"`
	PurchaseDate          int64  `json:"purchaseDate"`
	Environment           string `json:"environment"`
}

// Transaction binds the payload to the typed view and validates the fields
// a subscription activation depends on. This is an explicit opt-in for
// callers; VerifyTransaction itself never enforces a schema.
func (p VerifiedPayload) Transaction() (*Transaction, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("bind transaction: %w", err)
	}
	var tx Transaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, fmt.Errorf("bind transaction: %w", err)
	}
	if err := validate.Struct(&tx); err != nil {
		return nil, fmt.Errorf("transaction fields: %w", err)
	}
	return &tx, nil
}

// AccountToken parses the appAccountToken the client set during purchase.
func (t *Transaction) AccountToken() (uuid.UUID, error) {
	return uuid.Parse(t.AppAccountToken)
}

// ExpiresAt converts expiresDate (epoch milliseconds) to UTC time.
func (t *Transaction) ExpiresAt() time.Time {
	return time.UnixMilli(t.ExpiresDate).UTC()
}

// PurchasedAt converts purchaseDate (epoch milliseconds) to UTC time.
func (t *Transaction) PurchasedAt() time.Time {
	return time.UnixMilli(t.PurchaseDate).UTC()
}
