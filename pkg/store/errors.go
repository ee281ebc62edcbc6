package store

import (
	stderrors "errors"

	"github.com/pkg/errors"
)

var (
	ErrUnknownService   = stderrors.New("unknown service")
	ErrUnknownSite      = stderrors.New("unknown site")
	ErrUnknownContainer = stderrors.New("unknown container")
	ErrNotLaravel       = stderrors.New("not a laravel site")
)

func unknownService(id string) error {
	return errors.Wrapf(ErrUnknownService, "%q", id)
}

func unknownSite(id string) error {
	return errors.Wrapf(ErrUnknownSite, "%q", id)
}

func notLaravel(id string) error {
	return errors.Wrapf(ErrNotLaravel, "%q", id)
}

func unknownContainer(id string) error {
	return errors.Wrapf(ErrUnknownContainer, "%q", id)
}
