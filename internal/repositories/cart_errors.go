package repositories

// CartErrorCode enumerates failure reasons for cart mutations.
type CartErrorCode string

const (
	// CartErrorUnknown represents an unspecified failure.
	CartErrorUnknown CartErrorCode = "cart_unknown"
	// CartErrorNotFound indicates the cart document is missing.
	CartErrorNotFound CartErrorCode = "cart_not_found"
	// CartErrorProductNotInCart indicates the cart does not reference the product.
	CartErrorProductNotInCart CartErrorCode = "cart_product_not_in_cart"
)

// CartError reports a cart persistence failure with a machine readable code.
type CartError struct {
	Code    CartErrorCode
	Message string
	Err     error
}

// NewCartError constructs a typed cart error. An empty message falls back to
// the code itself.
func NewCartError(code CartErrorCode, message string, err error) *CartError {
	if message == "" {
		message = string(code)
	}
	return &CartError{Code: code, Message: message, Err: err}
}

func (e *CartError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *CartError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
