package spapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/wilketob/amztec-mcp-server/internal/credential"
)

const signingService = "execute-api"

// emptyPayloadHash is the SHA-256 of an empty body; all marketplace calls
// here are GETs.
var emptyPayloadHash = func() string {
	sum := sha256.Sum256(nil)
	return hex.EncodeToString(sum[:])
}()

// signer signs outbound requests with SigV4. Credential providers are cached
// per tenant so STS role sessions are reused across calls.
type signer struct {
	region string
	v4     *v4.Signer

	mu        sync.Mutex
	providers map[string]aws.CredentialsProvider
}

func newSigner(region string) *signer {
	return &signer{
		region:    region,
		v4:        v4.NewSigner(),
		providers: make(map[string]aws.CredentialsProvider),
	}
}

// Sign adds SigV4 headers to req for the tenant's signing keys. Credential
// sets without signing keys skip signing (token-only auth).
func (s *signer) Sign(ctx context.Context, req *http.Request, cs credential.Set) error {
	if cs.SigningKeyID == "" {
		return nil
	}

	creds, err := s.providerFor(cs).Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("retrieving signing credentials: %w", err)
	}

	if err := s.v4.SignHTTP(ctx, creds, req, emptyPayloadHash, signingService, s.region, time.Now()); err != nil {
		return fmt.Errorf("signing request: %w", err)
	}
	return nil
}

func (s *signer) providerFor(cs credential.Set) aws.CredentialsProvider {
	cacheKey := cs.TenantID + ":" + cs.SigningKeyID + ":" + cs.RoleARN

	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.providers[cacheKey]; ok {
		return p
	}

	static := credentials.NewStaticCredentialsProvider(cs.SigningKeyID, cs.SigningKeySecret, "")

	var provider aws.CredentialsProvider = static
	if cs.RoleARN != "" {
		stsClient := sts.New(sts.Options{
			Region:      s.region,
			Credentials: static,
		})
		provider = stscreds.NewAssumeRoleProvider(stsClient, cs.RoleARN)
	}

	cached := aws.NewCredentialsCache(provider)
	s.providers[cacheKey] = cached
	return cached
}
