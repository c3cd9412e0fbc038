package s3creds

// Credentials describes how to reach and authenticate against an
// S3-compatible endpoint. It is the shared shape used by both the AWS
// authentication plugin and the S3-native download plugin so that a
// provider's "aws" auth config can be handed directly to the downloader.
type Credentials struct {
	// Endpoint is either a bare hostname ("s3.amazonaws.com") or a full
	// URL ("https://storage.googleapis.com"). A scheme, if present,
	// overrides UseSsl.
	Endpoint string

	AccessKeyId     string
	SecretAccessKey string
	SessionToken    string

	// UseSsl is consulted only when Endpoint carries no scheme.
	UseSsl bool

	// Profile names a credentials-file profile to use instead of the
	// explicit key pair above. Empty means "no profile".
	Profile string

	// Anonymous requests unsigned (public-bucket) access.
	Anonymous bool
}
