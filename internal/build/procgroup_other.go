//go:build !unix

package build

import "os/exec"

func configureProcessGroup(cmd *exec.Cmd) {}
