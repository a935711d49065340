package models

import "errors"

var (
	ErrColumnAbsent     = errors.New("column absent")
	ErrInsufficientData = errors.New("insufficient data")
	ErrInconsistentData = errors.New("inconsistent data")
	ErrNoReference      = errors.New("no reference range")
)

// Problem classifies why an entry could not be evaluated normally
type Problem string

const (
	ProblemNone             Problem = ""
	ProblemColumnAbsent     Problem = "column_absent"
	ProblemInsufficientData Problem = "insufficient_data"
	ProblemInconsistentData Problem = "inconsistent_data"
	ProblemNoReference      Problem = "no_reference"
)

// Err maps a problem kind to its sentinel error
func (p Problem) Err() error {
	switch p {
	case ProblemColumnAbsent:
		return ErrColumnAbsent
	case ProblemInsufficientData:
		return ErrInsufficientData
	case ProblemInconsistentData:
		return ErrInconsistentData
	case ProblemNoReference:
		return ErrNoReference
	}
	return nil
}

// ProblemOf returns the problem kind wrapped by err, if any
func ProblemOf(err error) Problem {
	switch {
	case err == nil:
		return ProblemNone
	case errors.Is(err, ErrColumnAbsent):
		return ProblemColumnAbsent
	case errors.Is(err, ErrInsufficientData):
		return ProblemInsufficientData
	case errors.Is(err, ErrInconsistentData):
		return ProblemInconsistentData
	case errors.Is(err, ErrNoReference):
		return ProblemNoReference
	}
	return ProblemNone
}
