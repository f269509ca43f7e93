package repository

import (
	"errors"
	"net/http"

	"github.com/go-kivik/kivik/v4"
)

var (
	ErrNotFound = errors.New("document not found")
	ErrConflict = errors.New("document conflict")
)

// translateError maps CouchDB status codes onto the repository sentinels and
// passes every other error through unchanged.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	switch kivik.HTTPStatus(err) {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict, http.StatusPreconditionFailed:
		return ErrConflict
	}

	return err
}

type docMeta struct {
	ID  string `json:"_id"`
	Rev string `json:"_rev"`
}
