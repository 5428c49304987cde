package billing

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrGatewayUnavailable is returned when no gateway client is configured.
	ErrGatewayUnavailable = errors.New("UnivaPay client not initialized (check env vars).")
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrNoProviderLink     = errors.New("payment has no provider record")
)

// ValidationError is a caller input problem detected before any side effect.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(msg string) error {
	return &ValidationError{Message: msg}
}

var fieldMessages = map[string]string{
	"TransactionTokenID": "transaction_token_id is required",
	"ItemName":           "item_name is required",
	"Amount":             "amount must be a positive integer (JPY)",
	"Plan":               "Invalid plan. Use 'monthly' or '6months'.",
	"ThreeDSMode":        "three_ds_mode is too long",
	"RedirectEndpoint":   "redirect_endpoint is too long",
}

// validationError maps the first failing struct field to a client message.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		field := verrs[0].StructField()
		if msg, ok := fieldMessages[field]; ok {
			if field == "ItemName" && verrs[0].Tag() == "max" {
				return invalid("item_name is too long")
			}
			return invalid(msg)
		}
		return invalid(strings.ToLower(field) + " is invalid")
	}
	return invalid(err.Error())
}
