package proto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntityKeyConstruction(t *testing.T) {
	assert.Equal(t, EntityKey("repo:acme/widgets"), RepoKey("acme", "widgets"))
	assert.Equal(t, EntityKey("repo:acme/widgets"), RepoKeyFromPath("acme/widgets"))
	assert.Equal(t, EntityKey("pr:acme/widgets#42"), PRKey("acme", "widgets", 42))
	assert.Equal(t, EntityKey("pr:acme/widgets#42"), PRKeyFromPath("acme/widgets", 42))
	assert.Equal(t, EntityKey("issue:acme/widgets#7"), IssueKey("acme", "widgets", 7))
}

func TestEntityKeyParts(t *testing.T) {
	key := PRKeyFromPath("acme/widgets", 42)
	assert.Equal(t, EntityPR, key.Type())
	assert.Equal(t, "acme/widgets#42", key.Scope())
	assert.True(t, key.Valid())
}

func TestEntityKeyValid(t *testing.T) {
	tests := []struct {
		key   EntityKey
		valid bool
	}{
		{"repo:acme/widgets", true},
		{"issue:acme/widgets#7", true},
		{"pr:", false},
		{"repo", false},
		{"", false},
		{"widget:acme/widgets", false},
		{":acme/widgets", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.valid, tt.key.Valid(), "key %q", tt.key)
	}
}

func TestMalformedKeyParts(t *testing.T) {
	var key EntityKey = "no-colon-here"
	assert.Equal(t, EntityType(""), key.Type())
	assert.Equal(t, "", key.Scope())
}
