package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidToken        = errors.New("invalid token identifier")
	ErrInsufficientHistory = errors.New("insufficient history")
	ErrNoMatchingVenue     = errors.New("no pair on allowed venues")
	ErrWSDisconnect        = errors.New("websocket disconnected")
	ErrUnexpectedResponse  = errors.New("unexpected response")
	ErrLockHeld            = errors.New("lock held by another owner")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrRateLimited         = errors.New("rate limited")
)
