package health

import (
	"context"
	"os/exec"
)

// BinaryChecker verifies that a command resolves on PATH
type BinaryChecker struct {
	name    string
	command string
	hint    string
}

// NewBinaryChecker checks command under the check name name. hint is shown
// when the command is missing.
func NewBinaryChecker(name, command, hint string) *BinaryChecker {
	return &BinaryChecker{name: name, command: command, hint: hint}
}

func (c *BinaryChecker) Name() string {
	return c.name
}

func (c *BinaryChecker) Check(ctx context.Context) *Result {
	if c.command == "" {
		return Unhealthy("no command configured")
	}
	path, err := exec.LookPath(c.command)
	if err != nil {
		res := Unhealthy(c.command + " not found in PATH").WithDetail("error", err.Error())
		if c.hint != "" {
			res.WithDetail("suggestion", c.hint)
		}
		return res
	}
	return Healthy(c.command + " is available").WithDetail("path", path)
}
