package kinetic

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultACLLoaderParsesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "acl.yaml")
	const doc = `
acls:
  - identity: 1
    hmacKey: secret1
    hmacAlgorithm: HmacSHA1
    scopes:
      - permission: read
        keyPrefix: "a/"
      - permission: write
        tlsRequired: true
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	entries, err := DefaultACLLoader{}.LoadACLs(path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, int64(1), entries[0].Identity)
	require.Equal(t, []byte("secret1"), entries[0].Key)
	require.Len(t, entries[0].Scopes, 2)
	require.Equal(t, int32(PermissionWrite), entries[0].Scopes[1].Permission)
	require.True(t, entries[0].Scopes[1].TlsRequired)
}

func TestDefaultACLLoaderMissingFile(t *testing.T) {
	_, err := DefaultACLLoader{}.LoadACLs("/nonexistent/path/acl.yaml")
	require.Error(t, err)
}
