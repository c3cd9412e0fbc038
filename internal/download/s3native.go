package download

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/CS-SI/eodag-sub000/internal/auth"
	"github.com/CS-SI/eodag-sub000/internal/config"
	"github.com/CS-SI/eodag-sub000/internal/errs"
	"github.com/CS-SI/eodag-sub000/internal/model"
	"github.com/CS-SI/eodag-sub000/internal/registry"
	"github.com/CS-SI/eodag-sub000/pkg/s3creds"
)

func init() {
	registry.RegisterDownloadPlugin("S3NativeDownload", newS3NativeDownload)
}

// s3NativeDownload lists and fetches a product's keys through
// pkg/s3creds' minio-go client, then optionally reassembles a
// SAFE-format product, per spec.md §4.6's "S3-native" variant and
// original_source/eodag/plugins/download/aws.py's AwsDownload. The
// resolved s3creds.Credentials comes from the attached download_auth
// plugin (auth.AwsAuth), not from this plugin's own config, since SigV4
// signing is the auth plugin's job (see auth/aws.go's doc comment).
type s3NativeDownload struct {
	provider      *config.ProviderConfig
	outputsPrefix string
	archiveDepth  int
}

func newS3NativeDownload(provider *config.ProviderConfig, plugin *config.PluginConfig) (model.Downloader, error) {
	return &s3NativeDownload{
		provider:      provider,
		outputsPrefix: optStringOpt(plugin, "outputs_prefix", "."),
		archiveDepth:  optIntOpt(plugin, "archive_depth", 1),
	}, nil
}

func (d *s3NativeDownload) Download(ctx context.Context, p *model.Product, a model.Authenticator, opts model.DownloadOptions) (string, error) {
	ro := resolveOptions(opts, d.outputsPrefix, d.archiveDepth)
	pc := productConfigFor(d.provider, p.ProductType)

	destDir := destPath(ro.outputsPrefix, p, "")
	record := recordPath(ro.outputsPrefix, p.RemoteLocation)
	if fileExists(record) && dirExists(destDir) {
		finalPath := collapseDepth(destDir, effectiveDepth(ro))
		p.Location = fileURI(finalPath)
		return finalPath, nil
	}

	creds, err := d.credentialsFrom(a)
	if err != nil {
		return "", err
	}
	client, err := creds.NewMinioClient()
	if err != nil {
		return "", errs.NewMisconfigured(d.provider.Name, "building S3 client: "+err.Error())
	}

	bucket, prefix := bucketAndPrefix(p, pc)
	if bucket == "" {
		return "", errs.NewMisconfigured(d.provider.Name, "could not resolve bucket for product "+p.ID)
	}

	if err := os.MkdirAll(filepath.Join(mustAbs(ro.outputsPrefix), downloadRecordsDir), 0o755); err != nil {
		return "", errs.NewDownload(p.ID, "creating records directory", err)
	}

	var objectKeys []string
	var total int64
	for obj := range client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return "", errs.NewDownload(p.ID, "listing bucket objects", obj.Err)
		}
		objectKeys = append(objectKeys, obj.Key)
		total += obj.Size
	}
	if len(objectKeys) == 0 {
		return "", errs.NewDownload(p.ID, "no objects found under "+bucket+"/"+prefix, nil)
	}

	for _, key := range objectKeys {
		rel := strings.TrimPrefix(key, prefix)
		localPath := filepath.Join(destDir, filepath.FromSlash(strings.TrimLeft(rel, "/")))
		progressFn := ro.progressFn
		err := creds.DownloadObject(ctx, bucket, key, localPath, &s3creds.DownloadObjectOptions{
			ProgressFn: func(_, partSize, _ int) {
				if progressFn != nil {
					progressFn(int64(partSize), total)
				}
			},
		})
		if err != nil {
			return "", errs.NewDownload(p.ID, "downloading object "+key, err)
		}
	}

	if pc != nil && pc.BuildSafe {
		if err := finalizeSafe(destDir, p.ProductType, p.Title); err != nil {
			return "", err
		}
	}

	if err := writeRecord(record, p.RemoteLocation); err != nil {
		return "", errs.NewDownload(p.ID, "writing download record", err)
	}

	finalPath := collapseDepth(destDir, effectiveDepth(ro))
	p.Location = fileURI(finalPath)
	return finalPath, nil
}

// credentialsFrom recovers the resolved s3creds.Credentials from the
// product's download_auth plugin, which must be an auth.AwsAuth
// instance (the only auth variant that exposes AWSCredentials).
func (d *s3NativeDownload) credentialsFrom(a model.Authenticator) (*s3creds.Credentials, error) {
	ac, ok := a.(auth.AWSCredentialsAuth)
	if !ok {
		return nil, errs.NewMisconfigured(d.provider.Name, "S3-native download requires an AwsAuth-backed download_auth plugin")
	}
	return ac.AWSCredentials(), nil
}
