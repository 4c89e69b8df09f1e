package credential

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// ErrUnknownTenant is returned when no credential set exists for a tenant.
var ErrUnknownTenant = errors.New("unknown tenant")

// Store resolves tenant ids to credential sets. The mapping is built once at
// load and swapped atomically on reload, so Resolve never takes a lock.
type Store struct {
	path    string
	cipher  *Cipher
	mapping atomic.Pointer[map[string]Set]
}

type credentialsFile struct {
	Tenants map[string]Set `yaml:"tenants"`
}

// Load builds a Store from the credentials file at path (optional) merged
// with the AMAZON_* environment variables for the default tenant. A missing
// "default" set is a startup error, not a per-call failure.
func Load(path string, cipher *Cipher) (*Store, error) {
	s := &Store{path: path, cipher: cipher}

	mapping, err := s.read()
	if err != nil {
		return nil, err
	}
	if _, ok := mapping[DefaultTenant]; !ok {
		return nil, fmt.Errorf("no %q credential set configured (file or AMAZON_* env)", DefaultTenant)
	}

	s.mapping.Store(&mapping)
	return s, nil
}

// Resolve returns the credential set for tenantID. An empty id falls back to
// the default tenant.
func (s *Store) Resolve(tenantID string) (Set, error) {
	if tenantID == "" {
		tenantID = DefaultTenant
	}
	m := *s.mapping.Load()
	set, ok := m[tenantID]
	if !ok {
		return Set{}, fmt.Errorf("%w: %s", ErrUnknownTenant, tenantID)
	}
	return set, nil
}

// Tenants returns the configured tenant ids, sorted.
func (s *Store) Tenants() []string {
	m := *s.mapping.Load()
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Reload re-reads the credentials file and atomically replaces the mapping.
// In-flight requests keep the sets they already resolved. A reload that would
// drop the default tenant is rejected.
func (s *Store) Reload() error {
	mapping, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := mapping[DefaultTenant]; !ok {
		return fmt.Errorf("reload rejected: no %q credential set", DefaultTenant)
	}
	s.mapping.Store(&mapping)
	return nil
}

func (s *Store) read() (map[string]Set, error) {
	mapping := make(map[string]Set)

	if s.path != "" {
		data, err := os.ReadFile(s.path)
		if err != nil {
			return nil, fmt.Errorf("reading credentials file: %w", err)
		}
		var f credentialsFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parsing credentials file: %w", err)
		}
		for id, set := range f.Tenants {
			set.TenantID = id
			set, err = s.decryptSet(set)
			if err != nil {
				return nil, fmt.Errorf("tenant %q: %w", id, err)
			}
			if !set.complete() {
				return nil, fmt.Errorf("tenant %q: incomplete credential set", id)
			}
			mapping[id] = set
		}
	}

	// Env vars supply (or override) the default tenant, matching the
	// single-seller deployment shape.
	if env := defaultFromEnv(); env.complete() {
		mapping[DefaultTenant] = env
	}

	return mapping, nil
}

func defaultFromEnv() Set {
	return Set{
		TenantID:         DefaultTenant,
		RefreshToken:     os.Getenv("AMAZON_REFRESH_TOKEN"),
		LWAAppID:         os.Getenv("AMAZON_LWA_APP_ID"),
		LWAClientSecret:  os.Getenv("AMAZON_LWA_CLIENT_SECRET"),
		SigningKeyID:     os.Getenv("AMAZON_AWS_ACCESS_KEY"),
		SigningKeySecret: os.Getenv("AMAZON_AWS_SECRET_KEY"),
		RoleARN:          os.Getenv("AMAZON_ROLE_ARN"),
		SellerID:         os.Getenv("SELLER_ID"),
		MarketplaceID:    os.Getenv("AMAZON_MARKETPLACE_ID"),
	}
}

// decryptSet decrypts any "enc:" prefixed secret fields in place.
func (s *Store) decryptSet(set Set) (Set, error) {
	var err error
	for _, f := range []*string{
		&set.RefreshToken, &set.LWAClientSecret, &set.SigningKeySecret,
	} {
		if strings.HasPrefix(*f, encPrefix) {
			*f, err = s.cipher.Decrypt(strings.TrimPrefix(*f, encPrefix))
			if err != nil {
				return Set{}, err
			}
		}
	}
	return set, nil
}
