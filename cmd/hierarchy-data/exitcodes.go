package main

import (
	"errors"
	"net/http"

	"github.com/prabaj-wq/allinonecompdev-sub004/modules/hierarchy/services"
)

type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string {
	return e.err.Error()
}

func (e *cliError) Unwrap() error {
	return e.err
}

const (
	exitOK         = 0
	exitValidation = 2
	exitUsage      = 3
	exitAPIRead    = 4
	exitAPIWrite   = 5
	exitPartial    = 6
)

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &cliError{code: code, err: err}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	return 1
}

// classify maps a service error to an exit code. A 404 means a wrong id on
// the command line; other 4xx are validation failures. Anything else gets
// the caller's fallback.
func classify(err error, fallback int) error {
	if err == nil {
		return nil
	}
	var ce *cliError
	if errors.As(err, &ce) {
		return err
	}
	var malformed *services.MalformedCSVError
	if errors.As(err, &malformed) {
		return withCode(exitValidation, err)
	}
	var cyclic *services.CyclicHierarchyError
	if errors.As(err, &cyclic) {
		return withCode(exitValidation, err)
	}
	var se *services.ServiceError
	if errors.As(err, &se) {
		switch {
		case se.Status == http.StatusNotFound:
			return withCode(exitUsage, err)
		case se.Status >= 400 && se.Status < 500:
			return withCode(exitValidation, err)
		}
	}
	return withCode(fallback, err)
}
