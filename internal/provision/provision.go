// Package provision implements the one-time setup commands: deployment
// manifest, display configuration, development tokens and commitments.
package provision

import (
	"fmt"
	"io"
	"time"

	"github.com/google/logger"

	"verilotto/internal/auth"
	"verilotto/internal/deployment"
	"verilotto/internal/handlers"
	"verilotto/internal/models"
	"verilotto/internal/services"
)

// InitOptions configures Init.
type InitOptions struct {
	ManifestPath  string
	Admin         string
	PublicAddress string
	Scheme        string
	// DisplayDir receives config.json and interface.json; empty skips them.
	DisplayDir string
	Network    string
	Now        time.Time
}

// Init writes the deployment manifest and, when asked, the display files.
// An existing manifest is never replaced.
func Init(opts InitOptions, out io.Writer) (deployment.Manifest, error) {
	policy, err := services.CommitmentPolicyByName(opts.Scheme)
	if err != nil {
		return deployment.Manifest{}, err
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	m, err := deployment.NewManifest(opts.Admin, opts.PublicAddress, policy.Name(), opts.Now)
	if err != nil {
		return deployment.Manifest{}, err
	}
	if err := deployment.Save(opts.ManifestPath, m); err != nil {
		return deployment.Manifest{}, err
	}
	fmt.Fprintf(out, "instance %s provisioned, admin %s\n", m.InstanceID, m.Admin)
	logger.Infof("wrote deployment manifest %s", opts.ManifestPath)

	if opts.DisplayDir == "" {
		return m, nil
	}
	admin, _ := m.AdminAddress()
	iface := handlers.Describe(admin, m.CommitmentScheme)
	if err := deployment.WriteDisplay(opts.DisplayDir, deployment.NewDisplayConfig(opts.Network, m), iface); err != nil {
		return m, err
	}
	fmt.Fprintf(out, "display configuration written to %s\n", opts.DisplayDir)
	return m, nil
}

// Token prints a bearer token for address.
func Token(tokens *auth.Tokens, address string, ttl time.Duration, out io.Writer) error {
	addr, err := models.ParseAddress(address)
	if err != nil {
		return fmt.Errorf("address %q: %w", address, err)
	}
	token, err := tokens.Issue(addr, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}

// Commit prints the commitment to number and the salt that opens it. A
// random salt is generated when saltHex is empty.
func Commit(scheme string, number int, saltHex string, out io.Writer) error {
	policy, err := services.CommitmentPolicyByName(scheme)
	if err != nil {
		return err
	}
	if !models.ValidNumber(number) {
		return fmt.Errorf("number %d outside [%d, %d]", number, models.MinNumber, models.MaxNumber)
	}
	salt, err := services.DecodeSalt(saltHex)
	if err != nil {
		return err
	}
	if salt == nil {
		if salt, err = services.NewSalt(); err != nil {
			return err
		}
	}
	if len(salt) < services.MinSaltSize {
		return fmt.Errorf("salt must be at least %d bytes", services.MinSaltSize)
	}

	fmt.Fprintf(out, "scheme:     %s\n", policy.Name())
	fmt.Fprintf(out, "commitment: 0x%s\n", policy.Commit(number, salt))
	fmt.Fprintf(out, "salt:       0x%x\n", salt)
	return nil
}
