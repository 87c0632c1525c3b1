// Package repository provides data access over the worker's SQLite store.
package repository

import "errors"

var (
	// ErrUserNotFound is returned when a user UID does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrReminderNotFound is returned when a reminder ID does not exist.
	ErrReminderNotFound = errors.New("reminder not found")
	// ErrFlowStateNotFound is returned when a client has no persisted flow state.
	ErrFlowStateNotFound = errors.New("permission flow state not found")
)
