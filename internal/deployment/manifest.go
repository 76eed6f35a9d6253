// Package deployment reads and writes the provisioning artifacts: the
// deployment manifest that fixes the admin identity, and the configuration
// handed to the display layer.
package deployment

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	"verilotto/internal/models"
)

// ErrManifestExists is returned when provisioning would replace a manifest.
var ErrManifestExists = errors.New("deployment manifest already exists")

// Manifest records one provisioned engine instance.
type Manifest struct {
	InstanceID       string    `toml:"instance_id"`
	Admin            string    `toml:"admin"`
	PublicAddress    string    `toml:"public_address"`
	CommitmentScheme string    `toml:"commitment_scheme"`
	CreatedAt        time.Time `toml:"created_at"`
}

// NewManifest creates a manifest with a fresh instance id.
func NewManifest(admin, publicAddress, scheme string, now time.Time) (Manifest, error) {
	m := Manifest{
		InstanceID:       uuid.NewString(),
		Admin:            admin,
		PublicAddress:    strings.TrimRight(strings.TrimSpace(publicAddress), "/"),
		CommitmentScheme: strings.ToLower(strings.TrimSpace(scheme)),
		CreatedAt:        now.Truncate(time.Second).UTC(),
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	addr, _ := m.AdminAddress()
	m.Admin = addr.String()
	return m, nil
}

// Validate checks every field is present and well formed.
func (m Manifest) Validate() error {
	if _, err := uuid.Parse(m.InstanceID); err != nil {
		return fmt.Errorf("instance id: %w", err)
	}
	if _, err := m.AdminAddress(); err != nil {
		return err
	}
	if m.PublicAddress == "" {
		return errors.New("public address is required")
	}
	if m.CommitmentScheme == "" {
		return errors.New("commitment scheme is required")
	}
	if m.CreatedAt.IsZero() {
		return errors.New("created-at is required")
	}
	return nil
}

// AdminAddress parses the admin identity.
func (m Manifest) AdminAddress() (models.Address, error) {
	addr, err := models.ParseAddress(m.Admin)
	if err != nil {
		return "", fmt.Errorf("admin %q: %w", m.Admin, err)
	}
	return addr, nil
}

// Load reads and validates the manifest at path. Unknown keys are rejected.
func Load(path string) (Manifest, error) {
	var m Manifest
	meta, err := toml.DecodeFile(path, &m)
	if err != nil {
		return Manifest{}, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Manifest{}, fmt.Errorf("manifest %s: unknown keys %v", path, undecoded)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, fmt.Errorf("manifest %s: %w", path, err)
	}
	return m, nil
}

// Save writes m to path. It never replaces an existing file.
func Save(path string, m Manifest) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create manifest directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", ErrManifestExists, path)
		}
		return fmt.Errorf("create manifest: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(m); err != nil {
		f.Close()
		return fmt.Errorf("encode manifest: %w", err)
	}
	return f.Close()
}
