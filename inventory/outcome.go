// Package inventory runs one inventory report through identity validation
// and counter normalization and classifies the result.
package inventory

import (
	"errors"
	"fmt"

	"github.com/hlebuschek/printer-inventory-django-sub001/inventory/counters"
	"github.com/hlebuschek/printer-inventory-django-sub001/inventory/identity"
	"github.com/hlebuschek/printer-inventory-django-sub001/inventory/rawdoc"
)

// Kind classifies an Outcome.
type Kind string

const (
	KindSuccess         Kind = "success"
	KindValidationError Kind = "validation_error"
	KindPollFailure     Kind = "poll_failure"
	KindParseFailure    Kind = "parse_failure"
	KindEmptyCounters   Kind = "empty_counters"
)

// Status is the persisted task status.
type Status string

const (
	StatusSuccess         Status = "SUCCESS"
	StatusFailed          Status = "FAILED"
	StatusValidationError Status = "VALIDATION_ERROR"
)

// ErrPoll is wrapped by the error of a poll-failure outcome.
var ErrPoll = errors.New("poll failed")

// Outcome is the result of one poll attempt. It is built once and not
// modified afterwards.
type Outcome struct {
	Kind   Kind
	Reason string

	Rule      identity.MatchRule
	Identity  identity.DeviceIdentity
	Reflashed bool

	Counters counters.Snapshot
	Branch   counters.Branch
	Supplies counters.Supplies

	// DiscoveredMAC is set on success when the device record had no MAC
	// and the report carried one.
	DiscoveredMAC string

	cause error
}

func failed(kind Kind, err error) Outcome {
	return Outcome{Kind: kind, Reason: err.Error(), cause: err}
}

// PollFailed is the outcome for a failed agent invocation.
func PollFailed(reason string) Outcome {
	return Outcome{Kind: KindPollFailure, Reason: reason}
}

// ParseFailed is the outcome for an unreadable or malformed report.
func ParseFailed(err error) Outcome {
	return failed(KindParseFailure, err)
}

// OK reports whether the outcome is a success.
func (o Outcome) OK() bool { return o.Kind == KindSuccess }

// Status maps the outcome to the persisted task status.
func (o Outcome) Status() Status {
	switch o.Kind {
	case KindSuccess:
		return StatusSuccess
	case KindValidationError:
		return StatusValidationError
	default:
		return StatusFailed
	}
}

// Retryable reports whether the next scheduled cycle may succeed without
// human intervention.
func (o Outcome) Retryable() bool {
	return o.Kind == KindPollFailure || o.Kind == KindEmptyCounters
}

// Err returns nil on success, otherwise an error wrapping the sentinel of
// the failing stage.
func (o Outcome) Err() error {
	if o.Kind == KindSuccess {
		return nil
	}
	if o.cause != nil {
		return o.cause
	}
	var sentinel error
	switch o.Kind {
	case KindValidationError:
		sentinel = identity.ErrMismatch
	case KindPollFailure:
		sentinel = ErrPoll
	case KindParseFailure:
		sentinel = rawdoc.ErrParse
	case KindEmptyCounters:
		sentinel = counters.ErrEmptyCounters
	default:
		return fmt.Errorf("unknown outcome kind %q: %s", o.Kind, o.Reason)
	}
	if o.Reason == "" {
		return sentinel
	}
	return fmt.Errorf("%w: %s", sentinel, o.Reason)
}
