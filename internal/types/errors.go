package types

import "errors"

// ErrMissingIdentity is returned when no remote login user could be resolved.
var ErrMissingIdentity = errors.New("missing identity: no user given and $USER is not set")
