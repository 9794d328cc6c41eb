package hardware

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/tee-keymaster-core/interfaces"
)

func TestFileStorage_ReadKey(t *testing.T) {
	dir := t.TempDir()
	storage, err := NewFileStorage(dir, slog.Default())
	require.NoError(t, err, "Storage creation should succeed")

	_, err = storage.ReadKey(context.Background(), interfaces.AttestationSlotRSA)
	assert.Error(t, err, "An unprovisioned slot should fail")

	err = os.WriteFile(filepath.Join(dir, "keys", "rsa"), []byte("rsa key material"), 0o600)
	require.NoError(t, err)

	key, err := storage.ReadKey(context.Background(), interfaces.AttestationSlotRSA)
	require.NoError(t, err, "A provisioned key should be readable")
	assert.Equal(t, []byte("rsa key material"), key)

	_, err = storage.ReadKey(context.Background(), interfaces.AttestationSlotECDSA)
	assert.Error(t, err, "Slots are independent")
}

func TestFileStorage_ReadCertChain(t *testing.T) {
	dir := t.TempDir()
	storage, err := NewFileStorage(dir, slog.Default())
	require.NoError(t, err)

	_, err = storage.ReadCertChain(context.Background(), interfaces.AttestationSlotECDSA)
	assert.Error(t, err, "An unprovisioned slot should fail")

	chainDir := filepath.Join(dir, "chains", "ecdsa")
	require.NoError(t, os.MkdirAll(chainDir, 0o700))

	_, err = storage.ReadCertChain(context.Background(), interfaces.AttestationSlotECDSA)
	assert.Error(t, err, "An empty chain directory should fail")

	// Written out of order; the chain reads back in name order.
	require.NoError(t, os.WriteFile(filepath.Join(chainDir, "02-root"), []byte("root"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(chainDir, "00-leaf"), []byte("leaf"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(chainDir, "01-intermediate"), []byte("intermediate"), 0o600))

	chain, err := storage.ReadCertChain(context.Background(), interfaces.AttestationSlotECDSA)
	require.NoError(t, err, "A provisioned chain should be readable")
	assert.Equal(t, [][]byte{[]byte("leaf"), []byte("intermediate"), []byte("root")}, chain)
}

func TestNewFileStorage_CreatesLayout(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "storage")

	_, err := NewFileStorage(dir, slog.Default())
	require.NoError(t, err, "Missing directories should be created")

	assert.DirExists(t, filepath.Join(dir, "keys"))
	assert.DirExists(t, filepath.Join(dir, "chains"))
}
