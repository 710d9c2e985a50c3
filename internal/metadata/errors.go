package metadata

import "errors"

// ErrIncompleteMetadata is returned when a row set required to build the
// schema is absent.
var ErrIncompleteMetadata = errors.New("metadata: incomplete metadata")
