//go:build !unix

package shell

import "os/exec"

// configureProcess is a no-op where process groups are unavailable.
func configureProcess(_ *exec.Cmd) {}
