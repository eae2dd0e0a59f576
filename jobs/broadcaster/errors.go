package broadcaster

import "errors"

// errBatchFull stops an outbox scan once a batch is collected.
var errBatchFull = errors.New("batch full")
