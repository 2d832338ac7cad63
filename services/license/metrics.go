package license

import (
	"errors"

	"licensekeeper/pkg/errutil"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Outcome string

const (
	OutcomeValid      Outcome = "valid"
	OutcomeExpired    Outcome = "expired"
	OutcomeInvalid    Outcome = "invalid"
	OutcomeBadRequest Outcome = "bad_request"
	OutcomeError      Outcome = "error"
)

var validationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "license_validations_total",
	Help: "License validation requests by outcome.",
}, []string{"outcome"})

func recordValidation(o Outcome) {
	validationsTotal.WithLabelValues(string(o)).Inc()
}

func outcomeOf(v *Verdict, err error) Outcome {
	if err == nil {
		if v != nil && v.Valid {
			return OutcomeValid
		}
		return OutcomeExpired
	}

	var be errutil.BaseError
	if !errors.As(err, &be) {
		return OutcomeError
	}
	switch be.Code {
	case errutil.StatusBadRequest:
		return OutcomeBadRequest
	case errutil.StatusForbidden:
		return OutcomeInvalid
	default:
		return OutcomeError
	}
}
