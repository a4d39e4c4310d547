// Package amis resolves a template's image_id into a concrete AMI id.
// A template may name an AMI directly, or point at an SSM public
// parameter (including the well-known Amazon Linux alias paths) that
// has to be resolved to an id at acquisition time.
package amis

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/samber/lo"
)

// aliases maps a short AMI family name to its SSM parameter paths, one
// per architecture. Sourced from the public Amazon Linux SSM
// parameters published under /aws/service/ami-amazon-linux-latest.
var aliases = map[string][]string{
	"al2023": {
		"/aws/service/ami-amazon-linux-latest/al2023-ami-kernel-default-arm64",
		"/aws/service/ami-amazon-linux-latest/al2023-ami-kernel-default-x86_64",
	},
	"al2023-minimal": {
		"/aws/service/ami-amazon-linux-latest/al2023-ami-minimal-kernel-default-arm64",
		"/aws/service/ami-amazon-linux-latest/al2023-ami-minimal-kernel-default-x86_64",
	},
	"al2": {
		"/aws/service/ami-amazon-linux-latest/amzn2-ami-hvm-arm64-gp2",
		"/aws/service/ami-amazon-linux-latest/amzn2-ami-hvm-x86_64-gp2",
	},
}

// SDKSSMOps is the subset of the SSM client a Resolver needs.
type SDKSSMOps interface {
	GetParameters(ctx context.Context, in *ssm.GetParametersInput, opts ...func(*ssm.Options)) (*ssm.GetParametersOutput, error)
}

// Resolver turns a template's image_id field into a concrete AMI id.
// Supported forms:
//
//	ami-0123456789abcdef0        literal id, returned unchanged
//	ssm:/path/to/parameter       resolved via a single SSM GetParameters call
//	alias:al2023                 one of the built-in Amazon Linux aliases,
//	                              disambiguated by architecture
//
// Resolutions are cached per (imageID, architecture) pair for the
// life of the Resolver, since the same template is resolved on every
// acquire_hosts call.
type Resolver struct {
	ssmAPI SDKSSMOps

	mu    sync.Mutex
	cache map[string]string
}

func NewResolver(ssmAPI SDKSSMOps) *Resolver {
	return &Resolver{ssmAPI: ssmAPI, cache: make(map[string]string)}
}

// Resolve returns the concrete AMI id for imageID. architecture picks
// between the arm64/x86_64 variants of a built-in alias; it is ignored
// for literal ids and explicit SSM paths.
func (r *Resolver) Resolve(ctx context.Context, imageID, architecture string) (string, error) {
	if imageID == "" {
		return "", fmt.Errorf("amis: empty image id")
	}
	if strings.HasPrefix(imageID, "ami-") {
		return imageID, nil
	}

	cacheKey := imageID + "|" + architecture
	r.mu.Lock()
	if cached, ok := r.cache[cacheKey]; ok {
		r.mu.Unlock()
		return cached, nil
	}
	r.mu.Unlock()

	path, err := r.paramPath(imageID, architecture)
	if err != nil {
		return "", err
	}

	out, err := r.ssmAPI.GetParameters(ctx, &ssm.GetParametersInput{Names: []string{path}})
	if err != nil {
		return "", fmt.Errorf("amis: resolve %q via ssm: %w", imageID, err)
	}
	if len(out.Parameters) == 0 {
		return "", fmt.Errorf("amis: ssm parameter %q not found while resolving %q", path, imageID)
	}
	resolved := lo.FromPtr(out.Parameters[0].Value)

	r.mu.Lock()
	r.cache[cacheKey] = resolved
	r.mu.Unlock()
	return resolved, nil
}

func (r *Resolver) paramPath(imageID, architecture string) (string, error) {
	switch {
	case strings.HasPrefix(imageID, "ssm:"):
		return strings.TrimPrefix(imageID, "ssm:"), nil
	case strings.HasPrefix(imageID, "alias:"):
		name := strings.TrimPrefix(imageID, "alias:")
		paths, ok := aliases[name]
		if !ok {
			return "", fmt.Errorf("amis: unknown ami alias %q", name)
		}
		for _, p := range paths {
			if architecture == "" || strings.Contains(p, architecture) {
				return p, nil
			}
		}
		return paths[0], nil
	default:
		return "", fmt.Errorf("amis: image id %q is neither a literal ami id, an ssm: path, nor an alias:", imageID)
	}
}
