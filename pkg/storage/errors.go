package storage

import "errors"

// errEmptyBatch marks a file that decoded to zero complete records; it is
// treated as corrupt and deleted.
var errEmptyBatch = errors.New("batch holds no complete records")
