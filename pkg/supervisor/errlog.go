package supervisor

import (
	"sync"
	"time"
)

// errorLogCapacity bounds how many past dispatcher halts the status
// surface remembers.
const errorLogCapacity = 20

// ErrorRecord is one entry in a Supervisor's error history.
type ErrorRecord struct {
	Time time.Time `json:"time"`
	Err  string    `json:"error"`
}

// ErrorLog is a small ring buffer of past Dispatcher.Run/Supervisor.Run
// failures, kept so the admin status endpoint can show recent history
// across restarts of the run loop without reaching into the logger.
type ErrorLog struct {
	mu      sync.Mutex
	records []ErrorRecord
}

// Record appends err, if non-nil, to the ring buffer.
func (l *ErrorLog) Record(err error) {
	if err == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, ErrorRecord{Time: time.Now(), Err: err.Error()})
	if len(l.records) > errorLogCapacity {
		l.records = l.records[len(l.records)-errorLogCapacity:]
	}
}

// Recent returns the recorded errors, oldest first.
func (l *ErrorLog) Recent() []ErrorRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ErrorRecord, len(l.records))
	copy(out, l.records)
	return out
}
