package bundle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContractCheck(t *testing.T) {
	contract := Contract{"sentiment", "total_value", "txn_count"}

	tests := []struct {
		name    string
		columns []string
		wantErr bool
	}{
		{
			name:    "exact order",
			columns: []string{"sentiment", "total_value", "txn_count"},
		},
		{
			name:    "permuted order",
			columns: []string{"total_value", "sentiment", "txn_count"},
			wantErr: true,
		},
		{
			name:    "missing column",
			columns: []string{"sentiment", "total_value"},
			wantErr: true,
		},
		{
			name:    "extra column",
			columns: []string{"sentiment", "total_value", "txn_count", "avg_gas_used"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := contract.Check(tt.columns)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrContractMismatch)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestContractEncodeParse(t *testing.T) {
	contract := Contract{"sentiment", "day", "month"}

	parsed, err := ParseContract(contract.Encode())
	require.NoError(t, err)
	assert.Equal(t, contract, parsed)
}

func TestParseContractEmpty(t *testing.T) {
	_, err := ParseContract([]byte("\n\n"))
	assert.Error(t, err)
}

func TestBundleSaveLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "iforest")
	contract := Contract{"sentiment", "txn_count"}

	original := New("isolation_forest", contract, []byte("scaler-blob"), []byte("model-blob"))
	require.NoError(t, original.Save(dir))

	loaded, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, original.Manifest.Version, loaded.Manifest.Version)
	assert.Equal(t, "isolation_forest", loaded.Manifest.Model)
	assert.Equal(t, contract, loaded.Contract)
	assert.Equal(t, []byte("scaler-blob"), loaded.Scaler)
	assert.Equal(t, []byte("model-blob"), loaded.Model)
}

func TestBundleFreshVersionPerRun(t *testing.T) {
	contract := Contract{"sentiment"}
	a := New("autoencoder", contract, nil, nil)
	b := New("autoencoder", contract, nil, nil)
	assert.NotEqual(t, a.Manifest.Version, b.Manifest.Version)
}

func TestLoadRejectsMixedArtifacts(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "bundle")
	contract := Contract{"sentiment", "day", "txn_count"}

	b := New("isolation_forest", contract, []byte("s"), []byte("m"))
	require.NoError(t, b.Save(dir))

	// Swap in a contract file from a different training run
	other := Contract{"day", "sentiment", "txn_count"}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "features.txt"), other.Encode(), 0o644))

	_, err := Load(dir)
	assert.ErrorIs(t, err, ErrContractMismatch)
}

func TestLoadMissingManifest(t *testing.T) {
	_, err := Load(t.TempDir())
	assert.Error(t, err)
}
