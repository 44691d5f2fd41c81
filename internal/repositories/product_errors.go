package repositories

// ProductErrorCode enumerates failure reasons for product state operations.
type ProductErrorCode string

const (
	// ProductErrorUnknown represents an unspecified failure.
	ProductErrorUnknown ProductErrorCode = "product_unknown"
	// ProductErrorNotFound indicates the product document is missing.
	ProductErrorNotFound ProductErrorCode = "product_not_found"
	// ProductErrorInvalidState indicates the stored state forbids the requested transition.
	ProductErrorInvalidState ProductErrorCode = "product_invalid_state"
	// ProductErrorInvalidInput indicates the caller supplied invalid arguments.
	ProductErrorInvalidInput ProductErrorCode = "product_invalid_input"
)

// ProductError reports a product persistence failure with a machine readable code.
type ProductError struct {
	Code    ProductErrorCode
	Message string
	Err     error
}

// NewProductError constructs a typed product error. An empty message falls
// back to the code itself.
func NewProductError(code ProductErrorCode, message string, err error) *ProductError {
	if message == "" {
		message = string(code)
	}
	return &ProductError{Code: code, Message: message, Err: err}
}

func (e *ProductError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func (e *ProductError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
