package supervisor

import "errors"

// ErrFreeSpace is the fatal FREE_SPACE condition: a
// monitored filesystem fell below its configured minimum free space.
var ErrFreeSpace = errors.New("supervisor: free space below configured minimum")

// ErrQuarantine is the fatal QUARANTINE condition: the
// failed-replay sentinel file is present at startup or was created
// while the pipeline was running.
var ErrQuarantine = errors.New("supervisor: quarantine sentinel present")
