package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/CS-SI/eodag-sub000/internal/config"
	"github.com/CS-SI/eodag-sub000/internal/errs"
	"github.com/CS-SI/eodag-sub000/internal/model"
)

// defaultDownloadAllWait is the interval NotAvailableError bumps a
// product's next_try by when the caller leaves DownloadOptions.Wait
// unset, per spec.md §4.6's retry-loop description.
const defaultDownloadAllWait = 30 * time.Second

// defaultDownloadAllTimeout bounds DownloadAll's wall clock when the
// caller leaves DownloadOptions.Timeout unset.
const defaultDownloadAllTimeout = 20 * time.Minute

// downloadAllFanOutLimit bounds how many products DownloadAll attempts
// concurrently in one scheduler round, per spec.md §5's "parallel
// workload" model.
const downloadAllFanOutLimit = 8

// Download implements spec.md §4.7's simple delegation: resolve (and
// attach, if the product was constructed outside a Search call and
// never got one) a downloader/downloader-auth pair, then stream.
func (g *Gateway) Download(ctx context.Context, p *model.Product, opts model.DownloadOptions) (string, error) {
	if p.Downloader == nil {
		dp, err := g.plugins.GetDownloadPlugin(p)
		if err != nil {
			return "", err
		}
		p.Downloader = dp
	}
	if p.DownloaderAuth == nil {
		auth, err := g.authenticator(ctx, p.Provider, config.TopicDownloadAuth)
		if err != nil {
			return "", err
		}
		p.DownloaderAuth = auth
	}
	return p.Downloader.Download(ctx, p, p.DownloaderAuth, opts)
}

// downloadEntry tracks one product's place in DownloadAll's retry
// queue: next_try starts at "now" and is bumped by NotAvailableError,
// per spec.md §4.6's "Retry loop for DownloadAll."
type downloadEntry struct {
	product *model.Product
	nextTry time.Time
}

// DownloadAll implements spec.md §4.7/§4.6's DownloadAll: a scheduler
// loop over a next_try-ordered queue, attempting every currently
// eligible product concurrently each round (bounded), rescheduling
// NotAvailableError, logging-and-dropping any other error, and aborting
// the whole batch outright on AuthenticationError/MisconfiguredError.
// The returned paths are in the order downloads actually completed,
// per spec.md §5's ordering guarantee — not input order.
func (g *Gateway) DownloadAll(ctx context.Context, products []*model.Product, opts model.DownloadOptions) ([]string, []Warning, error) {
	wait := opts.Wait
	if wait <= 0 {
		wait = defaultDownloadAllWait
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultDownloadAllTimeout
	}
	deadline := time.Now().Add(timeout)
	bump := backoff.NewConstantBackOff(wait)

	queue := make([]*downloadEntry, 0, len(products))
	now := time.Now()
	for _, p := range products {
		queue = append(queue, &downloadEntry{product: p, nextTry: now})
	}

	var (
		mu       sync.Mutex
		paths    []string
		warnings []Warning
		aborted  error
	)

	for len(queue) > 0 && time.Now().Before(deadline) && aborted == nil {
		round := time.Now()
		var eligible, remaining []*downloadEntry
		for _, e := range queue {
			if !e.nextTry.After(round) {
				eligible = append(eligible, e)
			} else {
				remaining = append(remaining, e)
			}
		}

		if len(eligible) == 0 {
			sleepUntil := earliestNextTry(remaining, deadline)
			select {
			case <-ctx.Done():
				return paths, warnings, ctx.Err()
			case <-time.After(time.Until(sleepUntil)):
			}
			continue
		}

		grp, gctx := errgroup.WithContext(ctx)
		grp.SetLimit(downloadAllFanOutLimit)
		for _, e := range eligible {
			e := e
			grp.Go(func() error {
				path, err := g.Download(gctx, e.product, opts)

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					paths = append(paths, path)
				case errs.IsNotAvailable(err):
					e.nextTry = time.Now().Add(bump.NextBackOff())
					remaining = append(remaining, e)
					warnings = append(warnings, Warning{Provider: e.product.Provider, Err: err})
				case errs.IsAuthError(err) || errs.IsMisconfigured(err):
					if aborted == nil {
						aborted = err
					}
				default:
					g.logger.Warn("download failed", zap.String("title", e.product.Title), zap.Error(err))
					warnings = append(warnings, Warning{Provider: e.product.Provider, Err: err})
				}
				return nil // a single product's failure never aborts the errgroup
			})
		}
		_ = grp.Wait()
		queue = remaining
	}

	if aborted != nil {
		return paths, warnings, aborted
	}
	return paths, warnings, nil
}

// earliestNextTry returns the soonest next_try among queue, capped at
// deadline, so DownloadAll's idle wait never oversleeps past its own
// wall-clock limit.
func earliestNextTry(queue []*downloadEntry, deadline time.Time) time.Time {
	earliest := deadline
	for _, e := range queue {
		if e.nextTry.Before(earliest) {
			earliest = e.nextTry
		}
	}
	return earliest
}
