package service

import (
	"errors"

	"github.com/rl1809/prepfire/internal/core/domain"
	"github.com/rl1809/prepfire/internal/port"
)

var (
	ErrInvalidOrder      = errors.New("invalid order")
	ErrClassification    = errors.New("cannot classify order")
	ErrDuplicateRequest  = errors.New("duplicate request")
	ErrOrderNotFound     = errors.New("order not found")
	ErrScheduleNotFound  = errors.New("schedule not found")
	ErrScheduleExists    = errors.New("schedule already exists")
	ErrAlreadyPrinted    = errors.New("order already printed")
	ErrInvalidTransition = errors.New("invalid schedule transition")
	ErrAlreadyClaimed    = errors.New("schedule claimed by another sweep")
	ErrRetryExhausted    = errors.New("retry attempts exhausted")
	ErrRetryTooSoon      = errors.New("retry interval not elapsed")

	ErrPOSUnavailable = port.ErrPOSUnavailable
	ErrPOSTransport   = port.ErrPOSTransport
)

func failureKindOf(err error) domain.FailureKind {
	switch {
	case err == nil:
		return domain.FailureNone
	case errors.Is(err, ErrPOSUnavailable):
		return domain.FailureUnavailable
	case errors.Is(err, ErrPOSTransport):
		return domain.FailureTransport
	default:
		return domain.FailureInternal
	}
}
