package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/serialforge/groupbuy-backend/pkg/errors"
)

// ParseOptionalQueryInt64 reads an optional int64 query parameter, returning
// nil when the parameter is absent.
func ParseOptionalQueryInt64(r *http.Request, key string) (*int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be numeric").WithDetails(map[string]any{"field": key})
	}
	return &value, nil
}
