package repository

import (
	"database/sql"
	"errors"
)

// HandleNotFound converts sql.ErrNoRows into a nil result without error.
// The Find* lookups use it because an unknown visitor is a normal outcome
// on the message path, not a failure: it just means create a fresh session
// or report no lead yet.
//
//	var lead model.Lead
//	err := r.db.GetContext(ctx, &lead, query, visitorID)
//	return HandleNotFound(&lead, err)
func HandleNotFound[T any](result *T, err error) (*T, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}
