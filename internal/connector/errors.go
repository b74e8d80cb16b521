package connector

import "errors"

// ErrNotSupported is returned by Source.Poll when a source only supports
// webhook or hook ingestion.
var ErrNotSupported = errors.New("connector: operation not supported")
