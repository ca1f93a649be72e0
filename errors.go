package lakeq

import "github.com/datalith-io/lakeq/internal/domain"

// Sentinel errors returned by queries. Match with errors.Is.
var (
	ErrValidation         = domain.ErrValidation
	ErrPreconditionFailed = domain.ErrPreconditionFailed
	ErrConfiguration      = domain.ErrConfiguration
	ErrTypeMismatch       = domain.ErrTypeMismatch
	ErrUpstream           = domain.ErrUpstream
	ErrRateLimited        = domain.ErrRateLimited
)
