package fetch

// ContentSecurityConfig constrains what DownloadContent is allowed to
// reach. It is consulted before any network or filesystem access so a
// misconfigured provider (or a scraped login form pointing somewhere
// unexpected) cannot be used to read arbitrary local files or pivot into
// an internal network.
type ContentSecurityConfig struct {
	// AllowedHosts restricts http(s) fetches to this hostname set. Empty
	// means no allowlist is enforced.
	AllowedHosts []string

	// BlockPrivateIps refuses to fetch from loopback, link-local, or
	// RFC1918 addresses (including post-DNS-resolution checks).
	BlockPrivateIps bool

	// AllowedPaths restricts file:// and s3:// fetches to these path
	// prefixes. Empty means no allowlist is enforced.
	AllowedPaths []string

	// MaxDownloadSizeBytes caps how much of an http(s) response body is
	// read. Zero means unlimited.
	MaxDownloadSizeBytes int64
}
