package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/parity/internal/errors"
)

const containerWorkdir = "/workspace"

// DockerConfig describes the container used when Isolation is docker
type DockerConfig struct {
	Image   string      `yaml:"image"`
	Network string      `yaml:"network"` // Network mode, defaults to none
	CPU     string      `yaml:"cpu"`     // CPU limit
	Mem     string      `yaml:"mem"`     // Memory limit
	Policy  ImagePolicy `yaml:"policy"`
}

// wrap rewrites prog so that it runs inside a fresh container. Host paths
// under prog.Dir are remapped to the container workdir.
func (d DockerConfig) wrap(prog Program) (Program, string, error) {
	if err := d.Policy.Check(d.Image); err != nil {
		return Program{}, "", err
	}

	name := "parity-" + uuid.NewString()
	args := buildDockerArgs(d, name, prog)

	return Program{
		Path:  "docker",
		Args:  args,
		Dir:   prog.Dir,
		Stdin: prog.Stdin,
	}, name, nil
}

// buildDockerArgs constructs the docker run arguments with security constraints
func buildDockerArgs(d DockerConfig, name string, prog Program) []string {
	args := []string{
		"run",
		"--rm",
		"--name", name,
	}

	if len(prog.Stdin) > 0 {
		args = append(args, "-i")
	}

	network := d.Network
	if network == "" {
		network = "none"
	}
	args = append(args, "--network", network)

	if d.CPU != "" {
		args = append(args, "--cpus", d.CPU)
	}
	if d.Mem != "" {
		args = append(args, "--memory", d.Mem)
	}

	args = append(args,
		"--read-only",
		"--pids-limit", "256",
		"--cap-drop", "ALL",
	)

	if prog.Dir != "" {
		args = append(args,
			"-v", fmt.Sprintf("%s:%s", prog.Dir, containerWorkdir),
			"-w", containerWorkdir,
		)
	}

	for _, kv := range sortedEnv(prog.Env) {
		args = append(args, "-e", kv)
	}

	args = append(args, d.Image)
	args = append(args, remapPath(prog.Path, prog.Dir))
	for _, a := range prog.Args {
		args = append(args, remapPath(a, prog.Dir))
	}

	return args
}

func remapPath(arg, dir string) string {
	if dir == "" || !strings.HasPrefix(arg, dir) {
		return arg
	}
	return containerWorkdir + strings.TrimPrefix(arg, dir)
}

func sortedEnv(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	return buildEnv(nil, env)
}

// remove force-removes a container left behind by a killed docker client
func (d DockerConfig) remove(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = exec.CommandContext(ctx, "docker", "rm", "-f", name).Run()
}

// ValidateDockerAvailable checks if Docker is available on the system
func ValidateDockerAvailable(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "docker", "version")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return errors.NewExecDockerNotAvailableError(fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String())))
	}
	return nil
}
