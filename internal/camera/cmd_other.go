//go:build !linux

package camera

import "os/exec"

// configureCmd is a no-op outside Linux.
func configureCmd(cmd *exec.Cmd) {
	_ = cmd
}
