package handlers

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	apperrors "kalium.io/kalium/internal/pkg/errors"
)

const dateLayout = "2006-01-02"

// bindJSON binds the body into req and converts binding failures into a
// field-level AppError.
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		fail(c, bindingError(err))
		return false
	}
	return true
}

func bindingError(err error) *apperrors.AppError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]apperrors.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, apperrors.FieldError{
				Field:   jsonFieldName(fe.Namespace()),
				Code:    apperrors.CodeInvalidRequestField,
				Message: fe.Tag(),
			})
		}
		return apperrors.BadRequest(apperrors.CodeInvalidRequestField, "request body failed validation").
			WithFieldErrors(fields)
	}
	return apperrors.BadRequest(apperrors.CodeInvalidRequestField, "malformed request body: "+err.Error())
}

// jsonFieldName turns "placeOrderRequest.GroupCount" into "group_count".
func jsonFieldName(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	var b strings.Builder
	for i, r := range ns {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && (ns[i-1] >= 'a' && ns[i-1] <= 'z' || ns[i-1] >= '0' && ns[i-1] <= '9') {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// queryBool reads an optional boolean query parameter.
func queryBool(c *gin.Context, name string) (bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperrors.ErrValidationf(name, name+" must be a boolean")
	}
	return v, nil
}

// queryDate reads an optional YYYY-MM-DD query parameter.
func queryDate(c *gin.Context, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, apperrors.ErrValidationf(name, name+" must be a date formatted as "+dateLayout)
	}
	return &t, nil
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.ErrValidationf(name, name+" must be an integer")
	}
	return v, nil
}
