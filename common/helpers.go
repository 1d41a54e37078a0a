// Package common holds small helpers shared between the daemon and the
// sensor packages.
package common

import "os/user"

// IsRunningAsRoot reports whether the process runs as root, which service
// installation and raw bus access require.
func IsRunningAsRoot() bool {
	usr, _ := user.Current()
	return usr.Username == "root"
}
