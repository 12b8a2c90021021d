package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coordinator/pkg/proto"
)

const rosterYAML = `default:
  author_credential: author-bot
  reviewers:
    - agent: quinn
      type: agent
      credential: quinn-bot
    - agent: sam
      type: agent
      credential: sam-bot
      escalates_to: priya
    - agent: priya
      type: human
      credential: priya-user
repos:
  acme/widgets:
    author_credential: widgets-author
    reviewers:
      - agent: sam
        type: agent
        credential: sam-bot
`

func writeRoster(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reviewers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func TestLoadReviewers(t *testing.T) {
	roster, err := LoadReviewers(writeRoster(t, rosterYAML))
	require.NoError(t, err)

	def := roster.For("acme/gadgets")
	assert.Equal(t, "author-bot", def.AuthorCredential)
	require.Len(t, def.Reviewers, 3)
	assert.Equal(t, "quinn", def.Reviewers[0].Agent)
	assert.Equal(t, proto.ReviewerHuman, def.Reviewers[2].Type)
	assert.Equal(t, "priya", def.Reviewers[1].EscalatesTo)

	// Per-repo override replaces the default wholesale.
	over := roster.For("acme/widgets")
	assert.Equal(t, "widgets-author", over.AuthorCredential)
	require.Len(t, over.Reviewers, 1)
	assert.Equal(t, "sam", over.Reviewers[0].Agent)
}

func TestLoadReviewersValidation(t *testing.T) {
	cases := map[string]string{
		"empty roster": `default:
  author_credential: author-bot
  reviewers: []
`,
		"missing author credential": `default:
  reviewers:
    - {agent: quinn, type: agent, credential: quinn-bot}
`,
		"duplicate reviewer": `default:
  author_credential: author-bot
  reviewers:
    - {agent: quinn, type: agent, credential: quinn-bot}
    - {agent: quinn, type: agent, credential: other}
`,
		"unknown type": `default:
  author_credential: author-bot
  reviewers:
    - {agent: quinn, type: robot, credential: quinn-bot}
`,
		"missing credential": `default:
  author_credential: author-bot
  reviewers:
    - {agent: quinn, type: agent}
`,
	}

	for name, yaml := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadReviewers(writeRoster(t, yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadReviewersMissingFile(t *testing.T) {
	_, err := LoadReviewers(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
