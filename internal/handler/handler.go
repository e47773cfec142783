// Package handler exposes the HTTP surface. Every tenant-scoped
// handler pulls the resolved tenant and its pool from the request
// context; nothing here holds a database handle of its own.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/sirupsen/logrus"

	"github.com/saigon-pos/api/internal/service"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Error("write json response")
	}
}

func errorJSON(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// isValidationError reports whether err is a caller mistake that maps
// to a 400.
func isValidationError(err error) bool {
	for _, e := range []error{
		service.ErrEmptyItems,
		service.ErrInvalidQuantity,
		service.ErrInvalidProductID,
		service.ErrInvalidUnitPrice,
		service.ErrNegativeDiscount,
		service.ErrInvalidDiscount,
		service.ErrInvalidChannel,
		service.ErrInvalidTableID,
		service.ErrInvalidStatus,
	} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

func isNotFoundError(err error) bool {
	for _, e := range []error{
		service.ErrOrderNotFound,
		service.ErrItemNotFound,
		service.ErrTableNotFound,
		service.ErrProductNotFound,
	} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

// respondServiceError maps service sentinel errors to HTTP statuses.
// Unrecognized errors are logged and hidden behind a 500.
func respondServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case isValidationError(err):
		errorJSON(w, http.StatusBadRequest, err.Error())
	case isNotFoundError(err):
		errorJSON(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrTerminalOrder):
		errorJSON(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrVersionConflict):
		errorJSON(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrQueryTimeout) || errors.Is(err, context.DeadlineExceeded):
		errorJSON(w, http.StatusGatewayTimeout, service.ErrQueryTimeout.Error())
	default:
		logrus.WithError(err).Errorf("%s failed", op)
		errorJSON(w, http.StatusInternalServerError, "internal server error")
	}
}

// --- pg type helpers for responses ---

func numericString(n pgtype.Numeric) string {
	if !n.Valid {
		return "0"
	}
	v, err := n.Value()
	if err != nil || v == nil {
		return "0"
	}
	return v.(string)
}

func uuidPtr(u pgtype.UUID) *uuid.UUID {
	if !u.Valid {
		return nil
	}
	id := uuid.UUID(u.Bytes)
	return &id
}

func textPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}

func timePtr(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}
