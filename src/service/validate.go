package service

import (
	"fmt"
	"strings"

	"github.com/edge-sync/state-server/src/types"
)

// maxClientIDLength bounds client ids so they stay usable as store keys.
const maxClientIDLength = 128

// ValidateClientID rejects empty or malformed client ids before any
// subsystem is touched.
func ValidateClientID(clientID string) error {
	if strings.TrimSpace(clientID) == "" {
		return ErrInvalidClientID
	}
	if len(clientID) > maxClientIDLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidClientID, maxClientIDLength)
	}
	if strings.ContainsAny(clientID, " \t\n\r") {
		return fmt.Errorf("%w: contains whitespace", ErrInvalidClientID)
	}
	return nil
}

// ValidateAction checks the shape of an inbound action.
func ValidateAction(action types.Action) error {
	if !action.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidAction, action.Type)
	}
	return nil
}

// ValidatePageState checks the shape of an inbound page snapshot.
func ValidatePageState(state *types.PageState) error {
	if state == nil {
		return fmt.Errorf("%w: body is required", ErrInvalidState)
	}
	if state.URL == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidState)
	}
	if state.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidState)
	}
	return nil
}
