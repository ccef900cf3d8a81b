package domain

import "errors"

var (
	ErrDatasetNotFound  = errors.New("dataset not found")
	ErrRevisionNotFound = errors.New("revision not found")
	ErrPipelineNotFound = errors.New("pipeline not found")

	ErrInvalidRevisionStatus = errors.New("invalid revision status")
	ErrInvalidSelector       = errors.New("invalid revision selector")

	ErrEmptyContents   = errors.New("received empty contents (make sure your content-type is correct)")
	ErrMissingOwner    = errors.New("missing owner in spec")
	ErrUnauthorized    = errors.New("no token or token not authorised for owner")
	ErrQuotaExceeded   = errors.New("max datasets for user exceeded plan limit")
	ErrValidationFailed = errors.New("validation failed for contents")
)
