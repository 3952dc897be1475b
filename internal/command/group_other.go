//go:build !unix

package command

import "os/exec"

// Only the direct child is killed on cancellation here.
func setProcessGroup(cmd *exec.Cmd) {}
