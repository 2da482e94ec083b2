package cloudauth

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

// ManagedBlockchainService is the SigV4 signing name of AWS Managed
// Blockchain Access endpoints.
const ManagedBlockchainService = "managedblockchain"

// SigV4Transport signs requests with AWS Signature Version 4. The payload
// hash is computed over the full body, so bodies are read into memory.
type SigV4Transport struct {
	base    http.RoundTripper
	creds   aws.CredentialsProvider
	signer  *v4.Signer
	region  string
	service string
	now     func() time.Time
}

// NewSigV4Transport returns a transport signing for service in region.
func NewSigV4Transport(base http.RoundTripper, creds aws.CredentialsProvider, region, service string) *SigV4Transport {
	return &SigV4Transport{
		base:    base,
		creds:   aws.NewCredentialsCache(creds),
		signer:  v4.NewSigner(),
		region:  region,
		service: service,
		now:     time.Now,
	}
}

// NewManagedBlockchainTransport resolves credentials through the default AWS
// chain (env, shared config, IMDS) and signs for Managed Blockchain in region.
func NewManagedBlockchainTransport(ctx context.Context, base http.RoundTripper, region string) (*SigV4Transport, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("cloudauth: load AWS config: %w", err)
	}
	return NewSigV4Transport(base, cfg.Credentials, region, ManagedBlockchainService), nil
}

// RoundTrip signs a clone of r and forwards it.
func (t *SigV4Transport) RoundTrip(r *http.Request) (*http.Response, error) {
	body, err := readBody(r)
	if err != nil {
		return nil, fmt.Errorf("cloudauth: read body for signing: %w", err)
	}

	r2 := r.Clone(r.Context())
	r2.ContentLength = int64(len(body))
	if len(body) > 0 {
		r2.Body = io.NopCloser(bytes.NewReader(body))
		r2.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(body)), nil }
	} else {
		r2.Body = http.NoBody
		r2.GetBody = nil
	}

	creds, err := t.creds.Retrieve(r.Context())
	if err != nil {
		return nil, fmt.Errorf("cloudauth: retrieve AWS credentials: %w", err)
	}
	sum := sha256.Sum256(body)
	if err := t.signer.SignHTTP(r.Context(), creds, r2, hex.EncodeToString(sum[:]), t.service, t.region, t.now()); err != nil {
		return nil, fmt.Errorf("cloudauth: sign request: %w", err)
	}
	return orDefault(t.base).RoundTrip(r2)
}

// readBody returns r's body bytes and closes it. GetBody is preferred so a
// retried request can still replay the original.
func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	defer r.Body.Close()
	if r.GetBody == nil {
		return io.ReadAll(r.Body)
	}
	rc, err := r.GetBody()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
