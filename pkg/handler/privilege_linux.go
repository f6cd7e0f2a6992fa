//go:build linux

package handler

import (
	"fmt"
	"os/user"
	"strconv"
	"syscall"
)

// dropPrivilegesTo re-asserts the effective uid/gid of the named
// unprivileged account. Called after every hook invocation returns,
// regardless of success, when the runtime process started elevated
//.
func dropPrivilegesTo(username string) error {
	if username == "" {
		return nil
	}

	u, err := user.Lookup(username)
	if err != nil {
		return fmt.Errorf("handler: lookup unprivileged user %s: %w", username, err)
	}

	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return fmt.Errorf("handler: parse uid for %s: %w", username, err)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return fmt.Errorf("handler: parse gid for %s: %w", username, err)
	}

	if err := syscall.Setegid(gid); err != nil {
		return fmt.Errorf("handler: setegid(%d): %w", gid, err)
	}
	if err := syscall.Seteuid(uid); err != nil {
		return fmt.Errorf("handler: seteuid(%d): %w", uid, err)
	}
	return nil
}
