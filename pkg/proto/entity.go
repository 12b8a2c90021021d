// Package proto defines the shared wire types for the coordinator: entity
// keys, the event envelope, and the enums used by the review and sync state
// machines. It is the single source of truth for these types; every other
// package imports proto, proto imports nothing of ours.
package proto

import (
	"fmt"
	"strings"
)

// EntityType identifies the kind of entity an actor manages.
type EntityType string

const (
	// EntityRepo is a repository sync actor.
	EntityRepo EntityType = "repo"
	// EntityPR is a pull request review actor.
	EntityPR EntityType = "pr"
	// EntityIssue is an issue actor.
	EntityIssue EntityType = "issue"
)

// EntityKey is the stable opaque identifier for one actor instance,
// formatted as "type:scope", e.g. "pr:acme/widgets#42". Exactly one live
// actor exists per key; the key is also the partition key for the durable
// snapshot store.
type EntityKey string

// NewEntityKey builds a key from a type and scope.
func NewEntityKey(typ EntityType, scope string) EntityKey {
	return EntityKey(fmt.Sprintf("%s:%s", typ, scope))
}

// RepoKey returns the key for a repository actor.
func RepoKey(owner, repo string) EntityKey {
	return NewEntityKey(EntityRepo, owner+"/"+repo)
}

// RepoKeyFromPath returns the key for a repository actor given an
// "owner/repo" path.
func RepoKeyFromPath(repoPath string) EntityKey {
	return NewEntityKey(EntityRepo, repoPath)
}

// PRKey returns the key for a pull request actor.
func PRKey(owner, repo string, number int) EntityKey {
	return NewEntityKey(EntityPR, fmt.Sprintf("%s/%s#%d", owner, repo, number))
}

// PRKeyFromPath returns the key for a pull request actor given an
// "owner/repo" path.
func PRKeyFromPath(repoPath string, number int) EntityKey {
	return NewEntityKey(EntityPR, fmt.Sprintf("%s#%d", repoPath, number))
}

// IssueKey returns the key for an issue actor.
func IssueKey(owner, repo string, number int) EntityKey {
	return NewEntityKey(EntityIssue, fmt.Sprintf("%s/%s#%d", owner, repo, number))
}

// Type returns the entity type portion of the key, or "" if malformed.
func (k EntityKey) Type() EntityType {
	typ, _, ok := strings.Cut(string(k), ":")
	if !ok {
		return ""
	}
	return EntityType(typ)
}

// Scope returns the scope portion of the key (everything after the first colon).
func (k EntityKey) Scope() string {
	_, scope, _ := strings.Cut(string(k), ":")
	return scope
}

// Valid reports whether the key has a known type and a non-empty scope.
func (k EntityKey) Valid() bool {
	switch k.Type() {
	case EntityRepo, EntityPR, EntityIssue:
		return k.Scope() != ""
	}
	return false
}

func (k EntityKey) String() string {
	return string(k)
}
