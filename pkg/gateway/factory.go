package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"coordinator/pkg/forge"
	ghforge "coordinator/pkg/forge/github"
)

// CredentialSource fetches the scoped token for an installation. The token
// stays inside the gateway; it is never handed to sandboxed code.
type CredentialSource interface {
	InstallationToken(ctx context.Context, installation string) (string, error)
}

// Factory builds and caches one gateway per (repository, installation) pair.
type Factory struct {
	creds     CredentialSource
	scheduler Scheduler
	rps       float64

	mu       sync.Mutex
	gateways map[string]*Gateway
}

// NewFactory creates a gateway factory.
func NewFactory(creds CredentialSource, scheduler Scheduler, rps float64) *Factory {
	return &Factory{
		creds:     creds,
		scheduler: scheduler,
		rps:       rps,
		gateways:  make(map[string]*Gateway),
	}
}

// For returns the gateway for repoPath ("owner/repo") and installation,
// creating it on first use. The cache key includes the installation so two
// installations of the same repository do not share a credential.
func (f *Factory) For(ctx context.Context, repoPath, installation string) (*Gateway, error) {
	cacheKey := repoPath + "@" + installation

	f.mu.Lock()
	if g, ok := f.gateways[cacheKey]; ok {
		f.mu.Unlock()
		return g, nil
	}
	f.mu.Unlock()

	owner, repo, ok := strings.Cut(repoPath, "/")
	if !ok || owner == "" || repo == "" {
		return nil, fmt.Errorf("invalid repo path %q", repoPath)
	}

	token, err := f.creds.InstallationToken(ctx, installation)
	if err != nil {
		return nil, fmt.Errorf("fetching installation credential: %w", err)
	}

	client := ghforge.NewClient(token, owner, repo)
	g := New(forge.Client(client), installation, f.scheduler, f.rps)

	f.mu.Lock()
	defer f.mu.Unlock()
	// Another goroutine may have raced us here; keep the first one.
	if existing, ok := f.gateways[cacheKey]; ok {
		return existing, nil
	}
	f.gateways[cacheKey] = g
	return g, nil
}
