package entitlement

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"tve-auth/internal/auth"
)

// AllResources in a provider's resource list entitles every resource.
const AllResources = "*"

var (
	// ErrInvalidCatalog is returned for a catalog that fails validation.
	ErrInvalidCatalog = errors.New("entitlement: invalid catalog")

	// ErrUnknownProvider is reported when a provider id is not in the catalog.
	ErrUnknownProvider = errors.New("entitlement: unknown provider")
)

// Catalog is the simulator's view of the world: which requestors may use it,
// which providers exist and what each provider entitles.
type Catalog struct {
	Requestors []Requestor       `yaml:"requestors"`
	Providers  []ProviderEntry   `yaml:"providers"`
	Metadata   map[string]string `yaml:"metadata"`
}

// Requestor is an application allowed to call the engine.
type Requestor struct {
	ID        string `yaml:"id"`
	Signature string `yaml:"signature"`
}

// ProviderEntry is one pay-TV provider.
type ProviderEntry struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	LogoURL     string   `yaml:"logoUrl"`
	Interactive bool     `yaml:"interactive"`
	Resources   []string `yaml:"resources"`
}

// ParseCatalog decodes and validates a YAML catalog. Unknown keys are errors.
func ParseCatalog(data []byte) (*Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var c Catalog
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadCatalog reads and parses the catalog at path.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// Validate checks ids are present and unique.
func (c *Catalog) Validate() error {
	if len(c.Requestors) == 0 {
		return fmt.Errorf("%w: no requestors", ErrInvalidCatalog)
	}
	seen := make(map[string]bool)
	for _, r := range c.Requestors {
		if r.ID == "" || r.Signature == "" {
			return fmt.Errorf("%w: requestor needs id and signature", ErrInvalidCatalog)
		}
		if seen["r:"+r.ID] {
			return fmt.Errorf("%w: duplicate requestor %q", ErrInvalidCatalog, r.ID)
		}
		seen["r:"+r.ID] = true
	}
	for _, p := range c.Providers {
		if p.ID == "" {
			return fmt.Errorf("%w: provider without id", ErrInvalidCatalog)
		}
		if seen["p:"+p.ID] {
			return fmt.Errorf("%w: duplicate provider %q", ErrInvalidCatalog, p.ID)
		}
		seen["p:"+p.ID] = true
	}
	return nil
}

// RequestorValid reports whether id is registered with signature.
func (c *Catalog) RequestorValid(id, signature string) bool {
	for _, r := range c.Requestors {
		if r.ID == id {
			return r.Signature == signature
		}
	}
	return false
}

// Provider looks up a provider by id.
func (c *Catalog) Provider(id string) (ProviderEntry, bool) {
	for _, p := range c.Providers {
		if p.ID == id {
			return p, true
		}
	}
	return ProviderEntry{}, false
}

// Entitled reports whether providerID grants resourceID.
func (c *Catalog) Entitled(providerID, resourceID string) bool {
	p, ok := c.Provider(providerID)
	if !ok {
		return false
	}
	return slices.Contains(p.Resources, AllResources) || slices.Contains(p.Resources, resourceID)
}

// Native converts the entry to the engine's provider representation.
func (p ProviderEntry) Native() *auth.NativeProvider {
	name := p.Name
	if name == "" {
		name = p.ID
	}
	return &auth.NativeProvider{ID: p.ID, DisplayName: name, LogoURL: p.LogoURL}
}

// NativeProviders lists every provider in catalog order.
func (c *Catalog) NativeProviders() []*auth.NativeProvider {
	out := make([]*auth.NativeProvider, 0, len(c.Providers))
	for _, p := range c.Providers {
		out = append(out, p.Native())
	}
	return out
}
