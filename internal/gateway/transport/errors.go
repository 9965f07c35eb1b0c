package transport

import (
	"errors"
	"net/http"

	cartService "github.com/sakashimaa/go-grocery/internal/cart/service"
	inventoryDomain "github.com/sakashimaa/go-grocery/internal/inventory/domain"
	notificationDomain "github.com/sakashimaa/go-grocery/internal/notification/domain"
	orderDomain "github.com/sakashimaa/go-grocery/internal/order/domain"
	paymentDomain "github.com/sakashimaa/go-grocery/internal/payment/domain"
	"github.com/sakashimaa/go-grocery/pkg/auth"
)

// Stable error kinds returned to clients.
const (
	CodeNotFound          = "NOT_FOUND"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeInvalidState      = "INVALID_STATE"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodeDuplicatePayment  = "DUPLICATE_PAYMENT"
	CodeForbidden         = "FORBIDDEN"
	CodeAuthentication    = "AUTHENTICATION_ERROR"
	CodePaymentFailed     = "PAYMENT_FAILED"
	CodeEmptyCart         = "EMPTY_CART"
	CodeInvalidInput      = "INVALID_INPUT"
	CodeConflict          = "CONFLICT"
	CodeInternal          = "INTERNAL"
)

type Problem struct {
	Status    int    `json:"-"`
	Code      string `json:"code"`
	Message   string `json:"error"`
	ProductID string `json:"product_id,omitempty"`
}

// Classify maps an error onto its transport representation. Anything outside
// the domain taxonomy is reported as an internal error without details.
func Classify(err error) Problem {
	var stockErr *orderDomain.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		return Problem{Status: http.StatusUnprocessableEntity, Code: CodeInsufficientStock, Message: stockErr.Error(), ProductID: stockErr.ProductID}
	case errors.Is(err, inventoryDomain.ErrOutOfStock):
		return problem(http.StatusUnprocessableEntity, CodeInsufficientStock, err)

	case errors.Is(err, orderDomain.ErrOrderNotFound),
		errors.Is(err, paymentDomain.ErrPaymentNotFound),
		errors.Is(err, inventoryDomain.ErrProductNotFound):
		return problem(http.StatusNotFound, CodeNotFound, err)

	case errors.Is(err, orderDomain.ErrInvalidTransition):
		return problem(http.StatusConflict, CodeInvalidTransition, err)
	case errors.Is(err, paymentDomain.ErrInvalidState):
		return problem(http.StatusConflict, CodeInvalidState, err)
	case errors.Is(err, paymentDomain.ErrDuplicatePayment):
		return problem(http.StatusConflict, CodeDuplicatePayment, err)
	case errors.Is(err, orderDomain.ErrVersionConflict),
		errors.Is(err, paymentDomain.ErrVersionConflict),
		errors.Is(err, inventoryDomain.ErrStockOverflow):
		return problem(http.StatusConflict, CodeConflict, err)

	case errors.Is(err, orderDomain.ErrForbidden),
		errors.Is(err, paymentDomain.ErrForbidden):
		return problem(http.StatusForbidden, CodeForbidden, err)
	case errors.Is(err, auth.ErrAuthentication):
		return Problem{Status: http.StatusUnauthorized, Code: CodeAuthentication, Message: "Authentication error"}

	case errors.Is(err, paymentDomain.ErrPaymentFailed):
		return problem(http.StatusPaymentRequired, CodePaymentFailed, err)

	case errors.Is(err, orderDomain.ErrEmptyCart):
		return problem(http.StatusBadRequest, CodeEmptyCart, err)
	case errors.Is(err, orderDomain.ErrInvalidInput),
		errors.Is(err, inventoryDomain.ErrInvalidQuantity),
		errors.Is(err, inventoryDomain.ErrInvalidEntry),
		errors.Is(err, notificationDomain.ErrInvalidRecipient),
		errors.Is(err, cartService.ErrInvalidItem):
		return problem(http.StatusBadRequest, CodeInvalidInput, err)
	}

	return Problem{Status: http.StatusInternalServerError, Code: CodeInternal, Message: "internal error"}
}

func problem(status int, code string, err error) Problem {
	return Problem{Status: status, Code: code, Message: err.Error()}
}
