package auth

import (
	"context"
	"net/http"

	"github.com/CS-SI/eodag-sub000/internal/config"
	"github.com/CS-SI/eodag-sub000/internal/model"
	"github.com/CS-SI/eodag-sub000/internal/registry"
	"github.com/CS-SI/eodag-sub000/pkg/s3creds"
)

func init() {
	registry.RegisterAuthPlugin("AwsAuth", newAWSAuth)
}

// awsAuth resolves an S3 credential chain from provider config, per
// spec.md §4.4's "AWS" variant: try in order anonymous, configured
// profile, configured access/secret key pair, ambient environment/IAM.
// It is grounded on pkg/s3creds.Credentials.resolveProvider, which
// already implements that exact precedence (adapted from
// libaf/s3/minio.go, see DESIGN.md); this plugin only maps provider
// config onto a s3creds.Credentials value, handed out wrapped in an
// awsAuthenticator so download/s3native.go can recover it via
// AWSCredentialsAuth and build its own signed minio client.
type awsAuth struct {
	creds *s3creds.Credentials
}

func newAWSAuth(provider *config.ProviderConfig, plugin *config.PluginConfig) (model.AuthPlugin, error) {
	creds := &s3creds.Credentials{
		Endpoint:  optStringOpt(plugin, "endpoint", "s3.amazonaws.com"),
		UseSsl:    optBoolOpt(plugin, "use_ssl", true),
		Anonymous: optBoolOpt(plugin, "anonymous", false),
		Profile:   optStringOpt(plugin, "profile", ""),
	}
	if !creds.Anonymous && creds.Profile == "" {
		creds.AccessKeyId = plugin.Credentials["aws_access_key_id"]
		creds.SecretAccessKey = plugin.Credentials["aws_secret_access_key"]
		creds.SessionToken = plugin.Credentials["aws_session_token"]
	}
	return &awsAuth{creds: creds}, nil
}

// Authenticate returns an awsAuthenticator wrapping the resolved
// credentials, rather than model.NoAuth: download/s3native.go needs to
// recover the s3creds.Credentials via a type assertion to
// AWSCredentialsAuth below, which only works if the Authenticator
// instance handed around actually carries them.
func (a *awsAuth) Authenticate(ctx context.Context) (model.Authenticator, error) {
	return &awsAuthenticator{creds: a.creds}, nil
}

// awsAuthenticator is the model.Authenticator returned by awsAuth. Its
// per-request Authenticate is a no-op: AWS SigV4 signing happens inside
// the minio client itself (download/s3native.go), not by mutating an
// *http.Request the way header/token/query-string auth do. It also
// implements AWSCredentialsAuth so the downloader can recover the
// underlying s3creds.Credentials.
type awsAuthenticator struct {
	creds *s3creds.Credentials
}

func (a *awsAuthenticator) Authenticate(ctx context.Context, req *http.Request) error {
	return nil
}

func (a *awsAuthenticator) AWSCredentials() *s3creds.Credentials { return a.creds }

var _ model.Authenticator = (*awsAuthenticator)(nil)
var _ AWSCredentialsAuth = (*awsAuthenticator)(nil)

// AWSCredentialsAuth is implemented by auth plugins that can hand back
// their resolved s3creds.Credentials directly, letting
// download/s3native.go build its own signed minio client instead of
// routing object-store requests through the generic Authenticator
// (header/URL-mutation) interface, which cannot express SigV4 request
// signing.
type AWSCredentialsAuth interface {
	AWSCredentials() *s3creds.Credentials
}

var _ model.AuthPlugin = (*awsAuth)(nil)
