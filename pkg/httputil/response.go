// Package httputil provides HTTP handler utilities for consistent error
// handling, JSON encoding/decoding, and request parsing.
package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/atrium-works/atrium/pkg/apperrors"
)

// Envelope is the standard response body: a human-readable message plus the
// payload.
type Envelope struct {
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteData writes a 200 response with the payload enveloped.
func WriteData(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, Envelope{Data: data})
}

// WriteMessage writes a response carrying a message and optional payload.
func WriteMessage(w http.ResponseWriter, status int, message string, data interface{}) error {
	return WriteJSON(w, status, Envelope{Message: message, Data: data})
}

// WriteCreated writes a 201 response with the payload enveloped.
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, Envelope{Data: data})
}

// WriteErrorMessage writes a JSON error response with the given status code.
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// WriteAppError maps a service error to its HTTP status: 401 for
// authorization failures, 404 for missing entities, 400 for conflicts and
// validation failures, 500 otherwise. Internal errors never leak their
// message to the client.
func WriteAppError(w http.ResponseWriter, err error) {
	switch apperrors.KindOf(err) {
	case apperrors.KindUnauthorized:
		WriteErrorMessage(w, http.StatusUnauthorized, err.Error())
	case apperrors.KindNotFound:
		WriteErrorMessage(w, http.StatusNotFound, err.Error())
	case apperrors.KindConflict, apperrors.KindValidationFailed:
		WriteErrorMessage(w, http.StatusBadRequest, err.Error())
	default:
		WriteErrorMessage(w, http.StatusInternalServerError, "Internal server error")
	}
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

// WriteUnauthorized writes an unauthorized error (401)
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusUnauthorized, message)
}
