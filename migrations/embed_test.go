package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFS_EveryUpHasDown(t *testing.T) {
	for _, dir := range []string{Primary, Ledger} {
		entries, err := fs.ReadDir(FS, dir)
		require.NoError(t, err)
		require.NotEmpty(t, entries, dir)

		names := make(map[string]bool, len(entries))
		for _, e := range entries {
			names[e.Name()] = true
		}
		for name := range names {
			if strings.HasSuffix(name, ".up.sql") {
				assert.True(t, names[strings.TrimSuffix(name, ".up.sql")+".down.sql"], "%s/%s has no down migration", dir, name)
			}
		}
	}
}

func TestFS_LedgerEnforcesIdempotencyKeys(t *testing.T) {
	sql, err := fs.ReadFile(FS, "ledger/000001_create_stripe_ledger.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(sql), "UNIQUE (event_id)")
	assert.Contains(t, string(sql), "UNIQUE (stripe_object_id, object_type)")
}

func TestFS_LedgerPayloadIsRawBytes(t *testing.T) {
	sql, err := fs.ReadFile(FS, "ledger/000002_raw_event_payload.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(sql), "payload TYPE BYTEA")
}
