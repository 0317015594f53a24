package main

import (
	"net/http"
	"testing"

	"github.com/jacentio/giftlist/handler"
	"github.com/jacentio/giftlist/registry"
	"github.com/jacentio/giftlist/store"
)

func TestRespond(t *testing.T) {
	resp := respond(http.StatusCreated, map[string]string{"id": "res-1"})
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want 201", resp.StatusCode)
	}
	if resp.Body != `{"id":"res-1"}` {
		t.Errorf("body = %q", resp.Body)
	}

	resp = respond(http.StatusNoContent, nil)
	if resp.StatusCode != http.StatusNoContent || resp.Body != "" {
		t.Errorf("got (%d, %q), want empty 204", resp.StatusCode, resp.Body)
	}
}

func TestRespond_MarshalFailure(t *testing.T) {
	// An unmarshalable body must not produce a success status with an empty
	// payload.
	resp := respond(http.StatusOK, func() {})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
	if resp.Body != `{"error":"internal error"}` {
		t.Errorf("body = %q", resp.Body)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{registry.ErrProductNotFound, http.StatusNotFound},
		{handler.ErrUnauthenticated, http.StatusUnauthorized},
		{registry.ErrNotOwner, http.StatusForbidden},
		{registry.ErrInvalidQuantity, http.StatusBadRequest},
		{&registry.QuantityError{Requested: 2, Available: 1}, http.StatusConflict},
		{&registry.StateError{Op: "purchase", State: registry.StateCancelled}, http.StatusConflict},
		{registry.ErrConflict, http.StatusConflict},
		{store.ErrUnavailable, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestBearerToken(t *testing.T) {
	if got := bearerToken(map[string]string{"authorization": "Bearer abc"}); got != "abc" {
		t.Errorf("got %q", got)
	}
	if got := bearerToken(map[string]string{"Authorization": "Bearer abc"}); got != "abc" {
		t.Errorf("canonical header: got %q", got)
	}
	if got := bearerToken(map[string]string{"authorization": "Basic abc"}); got != "" {
		t.Errorf("non-bearer scheme: got %q", got)
	}
	if got := bearerToken(nil); got != "" {
		t.Errorf("no headers: got %q", got)
	}
}
