package bundle

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Artifact file names inside a bundle directory.
const (
	manifestFile = "manifest.yaml"
	contractFile = "features.txt"
	scalerFile   = "scaler.gob"
	modelFile    = "model.gob"
)

// Manifest identifies one training run. The version id pairs the contract,
// scaler, and model: artifacts from different runs must never be mixed.
type Manifest struct {
	Version   string    `yaml:"version"`
	Model     string    `yaml:"model"`
	CreatedAt time.Time `yaml:"created_at"`
	Features  []string  `yaml:"features"`
}

// Bundle is the complete artifact set of one trained model.
type Bundle struct {
	Manifest Manifest
	Contract Contract
	Scaler   []byte
	Model    []byte
}

// New assembles a bundle for a fresh training run with a new version id.
func New(modelKind string, contract Contract, scalerBlob, modelBlob []byte) *Bundle {
	return &Bundle{
		Manifest: Manifest{
			Version:   uuid.NewString(),
			Model:     modelKind,
			CreatedAt: time.Now().UTC(),
			Features:  contract,
		},
		Contract: contract,
		Scaler:   scalerBlob,
		Model:    modelBlob,
	}
}

// Save writes all artifacts into dir, creating it if needed. The manifest is
// written last so a directory with a manifest always has its paired artifacts.
func (b *Bundle) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create bundle dir: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, contractFile), b.Contract.Encode(), 0o644); err != nil {
		return fmt.Errorf("write contract: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, scalerFile), b.Scaler, 0o644); err != nil {
		return fmt.Errorf("write scaler: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, modelFile), b.Model, 0o644); err != nil {
		return fmt.Errorf("write model: %w", err)
	}

	manifest, err := yaml.Marshal(b.Manifest)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFile), manifest, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// Load reads a bundle back and verifies the pairing invariant: the contract
// file must match the feature list recorded in the manifest. A divergence
// means the directory mixes artifacts from different training runs.
func Load(dir string) (*Bundle, error) {
	manifestData, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var manifest Manifest
	if err := yaml.Unmarshal(manifestData, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if manifest.Version == "" {
		return nil, fmt.Errorf("manifest in %s has no version id", dir)
	}

	contractData, err := os.ReadFile(filepath.Join(dir, contractFile))
	if err != nil {
		return nil, fmt.Errorf("read contract: %w", err)
	}
	contract, err := ParseContract(contractData)
	if err != nil {
		return nil, fmt.Errorf("parse contract: %w", err)
	}
	if err := contract.Check(manifest.Features); err != nil {
		return nil, fmt.Errorf("bundle %s is not a paired training run: %w", manifest.Version, err)
	}

	scalerBlob, err := os.ReadFile(filepath.Join(dir, scalerFile))
	if err != nil {
		return nil, fmt.Errorf("read scaler: %w", err)
	}
	modelBlob, err := os.ReadFile(filepath.Join(dir, modelFile))
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}

	return &Bundle{
		Manifest: manifest,
		Contract: contract,
		Scaler:   scalerBlob,
		Model:    modelBlob,
	}, nil
}
