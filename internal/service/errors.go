package service

import "errors"

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidStake       = errors.New("invalid stake amount")
	ErrAlreadyQueued      = errors.New("user already in queue")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrEntryNotFound      = errors.New("queue entry not found")
	ErrEntrySetNotFound   = errors.New("entry set not found")
	ErrEntrySetEmpty      = errors.New("entry set has no picks")
	ErrEntrySetLocked     = errors.New("entry set already locked")
	ErrMatchNotFound      = errors.New("match not found")
)
