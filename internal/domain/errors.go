package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientAssets = errors.New("insufficient assets")
	ErrAlreadyProcessing  = errors.New("group already processing")
	ErrJobAlreadyInFlight = errors.New("generation job already in flight")
	ErrStatusConflict     = errors.New("status conflict")
)
