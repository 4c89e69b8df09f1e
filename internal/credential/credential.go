package credential

// DefaultTenant is the tenant id used when an invocation carries none.
const DefaultTenant = "default"

// Set is one tenant's complete upstream credential material. Sets are
// immutable once loaded; a reload replaces the whole mapping.
type Set struct {
	TenantID         string `yaml:"-"`
	RefreshToken     string `yaml:"refresh_token"`
	LWAAppID         string `yaml:"lwa_app_id"`
	LWAClientSecret  string `yaml:"lwa_client_secret"`
	SigningKeyID     string `yaml:"aws_access_key"`
	SigningKeySecret string `yaml:"aws_secret_key"`
	RoleARN          string `yaml:"role_arn"`
	SellerID         string `yaml:"seller_id"`
	MarketplaceID    string `yaml:"marketplace_id"`
}

// complete reports whether the set carries the fields every upstream call needs.
func (s Set) complete() bool {
	return s.RefreshToken != "" && s.LWAAppID != "" && s.LWAClientSecret != ""
}
