package errors

import (
	"fmt"
	"net/http"
)

// Lookup error codes.
const (
	CodeConsumableTypeNotFound = "CONSUMABLE_TYPE_NOT_FOUND"
	CodeSupplyUnitNotFound     = "SUPPLY_UNIT_NOT_FOUND"
	CodeOrderNotFound          = "ORDER_NOT_FOUND"
	CodeDeliveryNotFound       = "DELIVERY_NOT_FOUND"
	CodeReturnNotFound         = "RETURN_NOT_FOUND"
	CodeIncidentNotFound       = "INCIDENT_NOT_FOUND"
	CodeExperimentNotFound     = "EXPERIMENT_NOT_FOUND"
)

// Lifecycle error codes.
const (
	CodeInvalidStateTransition = "INVALID_STATE_TRANSITION"
	CodeInsufficientStock      = "INSUFFICIENT_STOCK"
	CodeIncompleteReview       = "INCOMPLETE_REVIEW"
	CodeAlreadyGenerated       = "DELIVERIES_ALREADY_GENERATED"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
)

// Validation error codes.
const (
	CodeValidationFailed    = "VALIDATION_FAILED"
	CodeInvalidRequestField = "INVALID_REQUEST_FIELD"
)

// ErrEntityNotFoundf creates a not found error for the given entity code.
func ErrEntityNotFoundf(code, entity, id string) *AppError {
	return NotFound(code, entity+" not found").
		WithParams(map[string]interface{}{"id": id})
}

// ErrInvalidStateTransitionf reports an operation attempted from a state that
// does not allow it.
func ErrInvalidStateTransitionf(entity, id string, from, to fmt.Stringer) *AppError {
	return &AppError{
		Code:       CodeInvalidStateTransition,
		Message:    fmt.Sprintf("%s cannot move from %s to %s", entity, from, to),
		HTTPStatus: http.StatusConflict,
		Err:        ErrInvalidStateTransition,
		Params: map[string]interface{}{
			"entity": entity,
			"id":     id,
			"from":   from.String(),
			"to":     to.String(),
		},
	}
}

// ErrInvalidStatef reports an operation that the entity's current state does
// not allow, when no single target state applies.
func ErrInvalidStatef(entity, id string, state fmt.Stringer, operation string) *AppError {
	return &AppError{
		Code:       CodeInvalidStateTransition,
		Message:    fmt.Sprintf("cannot %s: %s is %s", operation, entity, state),
		HTTPStatus: http.StatusConflict,
		Err:        ErrInvalidStateTransition,
		Params: map[string]interface{}{
			"entity":    entity,
			"id":        id,
			"state":     state.String(),
			"operation": operation,
		},
	}
}

// ErrInsufficientStockf reports a reservation shortfall for a consumable type.
func ErrInsufficientStockf(typeID string, requested, available int) *AppError {
	return &AppError{
		Code:       CodeInsufficientStock,
		Message:    fmt.Sprintf("requested %d units but only %d available", requested, available),
		HTTPStatus: http.StatusConflict,
		Err:        ErrInsufficientStock,
		Params: map[string]interface{}{
			"consumable_type_id": typeID,
			"requested":          requested,
			"available":          available,
		},
	}
}

// ErrIncompleteReviewf reports a return that still has unreviewed line items.
func ErrIncompleteReviewf(returnID string, pending int) *AppError {
	return &AppError{
		Code:       CodeIncompleteReview,
		Message:    fmt.Sprintf("%d return line items are not reviewed", pending),
		HTTPStatus: http.StatusConflict,
		Err:        ErrIncompleteReview,
		Params:     map[string]interface{}{"return_id": returnID, "pending": pending},
	}
}

// ErrAlreadyGeneratedf reports that deliveries exist for the order.
func ErrAlreadyGeneratedf(orderID string) *AppError {
	return &AppError{
		Code:       CodeAlreadyGenerated,
		Message:    "deliveries were already generated for this order",
		HTTPStatus: http.StatusConflict,
		Err:        ErrAlreadyGenerated,
		Params:     map[string]interface{}{"order_id": orderID},
	}
}

// ErrValidationf creates a validation error for a single field.
func ErrValidationf(field, message string) *AppError {
	return BadRequest(CodeValidationFailed, message).
		WithFieldErrors([]FieldError{{Field: field, Code: CodeValidationFailed, Message: message}})
}

// ErrConcurrentModificationf reports a compare-and-swap miss on a supply unit.
func ErrConcurrentModificationf(entity, id string) *AppError {
	return Conflict(CodeConcurrentModification, entity+" was modified concurrently").
		WithParams(map[string]interface{}{"entity": entity, "id": id})
}
