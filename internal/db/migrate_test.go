package db

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsAreEmbeddedInOrder(t *testing.T) {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"migrations/00001_create_emails.sql",
		"migrations/00002_create_campaigns.sql",
		"migrations/00003_campaigns_case_insensitive_tag.sql",
	}, names)
}

func TestCampaignTagIndexMatchesLookup(t *testing.T) {
	body, err := fs.ReadFile(migrations, "migrations/00003_campaigns_case_insensitive_tag.sql")
	require.NoError(t, err)
	assert.Contains(t, string(body), "ON campaigns (lower(btrim(trigger_tag))) WHERE active")
	assert.Contains(t, string(body), "ADD COLUMN IF NOT EXISTS version")
}
