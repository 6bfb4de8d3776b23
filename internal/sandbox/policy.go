package sandbox

import (
	"fmt"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"

	"github.com/felixgeelhaar/parity/internal/errors"
)

// ImagePolicy restricts which container images docker isolation may use
type ImagePolicy struct {
	// Allowlist holds repository names or prefix patterns ending in '*'.
	// An empty allowlist admits any well-formed reference.
	Allowlist []string `yaml:"allowlist"`
}

// Check validates image against the policy
func (p ImagePolicy) Check(image string) error {
	if image == "" {
		return errors.New(errors.ErrCodeExecImageDenied, "docker isolation requires an image").
			WithSuggestion("Set docker.image in the configuration file")
	}

	ref, err := name.ParseReference(image)
	if err != nil {
		return errors.Wrap(errors.ErrCodeExecImageDenied, fmt.Sprintf("invalid image reference: %s", image), err)
	}

	if len(p.Allowlist) == 0 {
		return nil
	}

	repo := ref.Context().Name()
	for _, pattern := range p.Allowlist {
		if matchesImagePattern(image, pattern) || matchesImagePattern(repo, pattern) {
			return nil
		}
	}

	return errors.New(errors.ErrCodeExecImageDenied, fmt.Sprintf("image not in allowlist: %s", image)).
		WithSuggestion("Add the image to docker.policy.allowlist")
}

// matchesImagePattern supports exact matches and trailing '*' wildcards
func matchesImagePattern(image, pattern string) bool {
	if image == pattern {
		return true
	}

	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(image, strings.TrimSuffix(pattern, "*"))
	}

	return false
}
