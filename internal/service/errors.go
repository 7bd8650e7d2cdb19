package service

import "errors"

var (
	// ErrProviderUnavailable marks a provider search that failed; the merger
	// treats it as zero candidates.
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrNoCandidates        = errors.New("no candidates")
	ErrUnresolvable        = errors.New("unresolvable after retry")
	ErrProductNotFound     = errors.New("product not found")
	ErrAliasNotFound       = errors.New("alias not found")
	ErrInvalidBarcode      = errors.New("invalid barcode")
	ErrStepClosed          = errors.New("step already answered")
)
