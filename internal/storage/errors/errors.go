// Package errors provides custom storage error types.

package errors

import (
	"fmt"
)

type (
	StatementPSQLError struct {
		Err error
	}
	ExecutionPSQLError struct {
		Err error
	}
	ScanningPSQLError struct {
		Err error
	}
	ContextTimeoutExceededError struct {
		Err error
	}
	AlreadyExistsError struct {
		Err error
		ID  string
	}
	NotFoundError struct {
		Err error
	}
	WrongPasswordError struct {
		Email    string
		Attempts int
	}
	NotEnoughFundsError struct {
		Available float64
		Required  float64
	}
	NotPendingError struct {
		ID string
	}
)

func (e *StatementPSQLError) Error() string {
	return fmt.Sprintf("%s: could not compile", e.Err.Error())
}

func (e *ExecutionPSQLError) Error() string {
	return fmt.Sprintf("%s: could not execute", e.Err.Error())
}

func (e *ScanningPSQLError) Error() string {
	return fmt.Sprintf("%s: could not scan", e.Err.Error())
}

func (e *ContextTimeoutExceededError) Error() string {
	return fmt.Sprintf("%s: context timeout exceeded", e.Err.Error())
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s: already exists", e.ID)
}

func (e *NotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: not found", e.Err.Error())
	}
	return "not found"
}

func (e *WrongPasswordError) Error() string {
	return fmt.Sprintf("wrong password for %s, %d consecutive failed attempts", e.Email, e.Attempts)
}

func (e *NotEnoughFundsError) Error() string {
	return fmt.Sprintf("not enough funds are available, present - %v, required - %v", e.Available, e.Required)
}

func (e *NotPendingError) Error() string {
	return fmt.Sprintf("transaction %s is not pending", e.ID)
}
