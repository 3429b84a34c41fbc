//go:build linux

package camera

import (
	"os/exec"
	"syscall"
)

// configureCmd makes ffmpeg die with the server so it never holds the camera.
func configureCmd(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Pdeathsig: syscall.SIGKILL}
}
