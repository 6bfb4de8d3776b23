package health

import (
	"context"
	"os/exec"
	"strings"

	"github.com/felixgeelhaar/parity/internal/sandbox"
)

// DockerChecker verifies the docker daemon and the configured image
type DockerChecker struct {
	config sandbox.DockerConfig
}

// NewDockerChecker checks the daemon and cfg's image against its policy
func NewDockerChecker(cfg sandbox.DockerConfig) *DockerChecker {
	return &DockerChecker{config: cfg}
}

func (c *DockerChecker) Name() string {
	return "docker-daemon"
}

func (c *DockerChecker) Check(ctx context.Context) *Result {
	if err := c.config.Policy.Check(c.config.Image); err != nil {
		return Unhealthy("docker image rejected").
			WithDetail("image", c.config.Image).
			WithDetail("error", err.Error())
	}

	dockerPath, err := exec.LookPath("docker")
	if err != nil {
		return Unhealthy("docker command not found in PATH").
			WithDetail("error", err.Error()).
			WithDetail("suggestion", "Install Docker Engine or switch isolation to process")
	}

	out, err := exec.CommandContext(ctx, dockerPath, "info", "--format", "{{.ServerVersion}}").CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if strings.Contains(msg, "Cannot connect to the Docker daemon") {
			return Unhealthy("docker daemon is not running").
				WithDetail("error", msg).
				WithDetail("suggestion", "Start the Docker daemon")
		}
		return Unhealthy("failed to reach docker daemon").
			WithDetail("error", err.Error()).
			WithDetail("output", msg)
	}

	version := strings.TrimSpace(string(out))
	if version == "" {
		return Degraded("docker daemon responding but version unknown").
			WithDetail("docker_path", dockerPath)
	}
	return Healthy("docker daemon is running").
		WithDetail("server_version", version).
		WithDetail("image", c.config.Image)
}
