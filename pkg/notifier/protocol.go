package notifier

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dirlistener/dirlistener/pkg/entry"
)

// ProtocolVersion distinguishes the two shapes of GET_ID reply the
// notifier may speak. The client records the version implied by the
// first reply it receives and keeps it for its own lifetime (a reconnect
// does not reset it); every reply is still decoded by its own shape.
type ProtocolVersion int

const (
	// ProtocolUnknown means no GET_ID reply has been observed yet.
	ProtocolUnknown ProtocolVersion = iota

	// ProtocolLegacy replies to GET_ID with "<id>\t<dn>\t<command_char>".
	ProtocolLegacy

	// ProtocolModern replies to GET_ID with "<id>" only; the dispatcher
	// falls back to the directory client's change-log read for dn/command.
	ProtocolModern
)

const (
	cmdGetID        = "GET_ID"
	cmdAlive        = "ALIVE"
	cmdGetSchemaID  = "GET_SCHEMA_ID"
	replyAliveOK    = "OK"
	replyAliveFail  = "FAIL"
)

// request is a single client -> server line: "<msg_id>\t<command>\t<arg>".
type request struct {
	msgID   uint64
	command string
	arg     string
}

func (r request) encode() string {
	if r.arg == "" {
		return fmt.Sprintf("%d\t%s\n", r.msgID, r.command)
	}
	return fmt.Sprintf("%d\t%s\t%s\n", r.msgID, r.command, r.arg)
}

// reply is a parsed server -> client line: "<msg_id>\t<payload...>".
type reply struct {
	msgID   uint64
	payload []string
}

// parseReply splits a raw line into its message id and payload fields.
// It returns ErrProtocol if the line has no tab-separated id field or the
// id is not a valid uint64.
func parseReply(line string) (reply, error) {
	line = strings.TrimRight(line, "\r\n")
	parts := strings.Split(line, "\t")
	if len(parts) < 1 || parts[0] == "" {
		return reply{}, fmt.Errorf("%w: empty reply line", ErrProtocol)
	}

	id, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return reply{}, fmt.Errorf("%w: malformed msg id %q: %v", ErrProtocol, parts[0], err)
	}

	return reply{msgID: id, payload: parts[1:]}, nil
}

// NextIDResult is the outcome of a GET_ID exchange.
type NextIDResult struct {
	ID uint64

	// DN and Command are populated only under ProtocolLegacy; under
	// ProtocolModern the dispatcher must fetch them itself via
	// pkg/directory's ReadChange.
	DN      entry.DN
	Command string
	HasMeta bool
}

// decodeNextID interprets a GET_ID reply's payload under the detected (or
// being-detected) protocol version. It also returns the version the
// payload shape implies, so the caller can latch it on the first call.
func decodeNextID(payload []string) (NextIDResult, ProtocolVersion, error) {
	if len(payload) == 0 {
		return NextIDResult{}, ProtocolUnknown, fmt.Errorf("%w: empty GET_ID payload", ErrProtocol)
	}

	id, err := strconv.ParseUint(payload[0], 10, 64)
	if err != nil {
		return NextIDResult{}, ProtocolUnknown, fmt.Errorf("%w: malformed id in GET_ID reply %q: %v", ErrProtocol, payload[0], err)
	}

	if len(payload) == 1 {
		return NextIDResult{ID: id}, ProtocolModern, nil
	}

	if len(payload) != 3 {
		return NextIDResult{}, ProtocolUnknown, fmt.Errorf("%w: unexpected GET_ID payload shape (%d fields)", ErrProtocol, len(payload))
	}

	return NextIDResult{
		ID:      id,
		DN:      entry.NormalizeDN(payload[1]),
		Command: payload[2],
		HasMeta: true,
	}, ProtocolLegacy, nil
}
