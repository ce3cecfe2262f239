package domain

import "errors"

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrMissingRoomKey   = errors.New("missing room identifier")
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrMissingIdentity  = errors.New("missing user identity")
)
