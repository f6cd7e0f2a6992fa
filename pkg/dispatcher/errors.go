package dispatcher

import "errors"

// ErrOrdering is the fatal ORDERING condition: the notifier
// announced an id that is neither the already-processed cursor nor
// cursor+1. The process must exit without writing cache or txlog.
var ErrOrdering = errors.New("dispatcher: notifier id out of order")

// ErrCacheCorruption is the fatal CACHE_CORRUPTION condition: a
// stored entry record failed to decode on read.
var ErrCacheCorruption = errors.New("dispatcher: cache corruption detected")
