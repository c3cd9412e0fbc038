package search

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/CS-SI/eodag-sub000/internal/config"
	"github.com/CS-SI/eodag-sub000/internal/errs"
	"github.com/CS-SI/eodag-sub000/internal/mapping"
	"github.com/CS-SI/eodag-sub000/internal/model"
	"github.com/CS-SI/eodag-sub000/internal/registry"
	"github.com/CS-SI/eodag-sub000/pkg/jsonutil"
)

func init() {
	registry.RegisterSearchPlugin("DataRequestSearch", newDataRequestSearch)
}

// dataRequestSearch POSTs the query to a job-creation endpoint, polls a
// status endpoint until it reports completed, then GETs the result
// endpoint and maps the result list, per spec.md §4.5's "Data-request"
// variant, grounded on
// original_source/eodag/plugins/search/data_request_search.py (WEkEO's
// job-based HDA API) and the offline-product order/poll pattern
// spec.md §4.6 describes for download.
type dataRequestSearch struct {
	provider       string
	jobEndpoint    string
	statusURLTpl   string
	resultURLTpl   string
	statusKeyPath  string
	completedValue string
	resultsEntry   string
	pollInterval   time.Duration
	pollTimeout    time.Duration
	m              mapping.Mapping
	product        *config.ProductConfig
	authCodes      map[int]bool
	client         *http.Client
}

func newDataRequestSearch(provider *config.ProviderConfig, product *config.ProductConfig, plugin *config.PluginConfig) (model.SearchPlugin, error) {
	jobEndpoint, err := stringOpt(provider.Name, plugin, "job_endpoint")
	if err != nil {
		return nil, err
	}
	statusURLTpl, err := stringOpt(provider.Name, plugin, "status_url_tpl")
	if err != nil {
		return nil, err
	}
	resultURLTpl, err := stringOpt(provider.Name, plugin, "result_url_tpl")
	if err != nil {
		return nil, err
	}
	m, err := resolveMapping(plugin, product)
	if err != nil {
		return nil, err
	}
	return &dataRequestSearch{
		provider:       provider.Name,
		jobEndpoint:    jobEndpoint,
		statusURLTpl:   statusURLTpl,
		resultURLTpl:   resultURLTpl,
		statusKeyPath:  optStringOpt(plugin, "status_key_path", "$.status"),
		completedValue: optStringOpt(plugin, "completed_status_value", "completed"),
		resultsEntry:   optStringOpt(plugin, "results_entry", "$.content"),
		pollInterval:   time.Duration(optIntOpt(plugin, "poll_interval_seconds", 5)) * time.Second,
		pollTimeout:    time.Duration(optIntOpt(plugin, "poll_timeout_seconds", 600)) * time.Second,
		m:              m,
		product:        product,
		authCodes:      authErrorCodes(plugin),
		client:         defaultHTTPClient(),
	}, nil
}

func (s *dataRequestSearch) Query(ctx context.Context, prep *model.PreparedSearch) ([]*model.Product, *int, error) {
	_, jsonFragment, err := renderQueryableParams(s.m, prep.Kwargs)
	if err != nil {
		return nil, nil, err
	}
	encoded, err := jsonutil.Marshal(jsonFragment)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding job request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.jobEndpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, nil, fmt.Errorf("building job request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	jobBody, err := doRequest(ctx, s.client, req, s.provider, prep.Auth, s.authCodes)
	if err != nil {
		return nil, nil, err
	}
	jobID, err := mapping.ExtractJSONOne(jobBody, "$.job_id", true)
	if err != nil {
		return nil, nil, fmt.Errorf("job creation response missing job id: %w", err)
	}

	resultBody, err := s.pollUntilComplete(ctx, fmt.Sprint(jobID), prep.Auth)
	if err != nil {
		return nil, nil, err
	}

	entries, err := jsonResultEntries(resultBody, s.resultsEntry)
	if err != nil {
		return nil, nil, err
	}
	products := make([]*model.Product, 0, len(entries))
	for _, e := range entries {
		p, err := buildProduct(e, s.provider, prep.ProductType, s.product, s.m)
		if err != nil {
			return nil, nil, err
		}
		p.SearchArgs = prep.Kwargs
		products = append(products, p)
	}
	return products, nil, nil
}

func (s *dataRequestSearch) pollUntilComplete(ctx context.Context, jobID string, auth model.Authenticator) ([]byte, error) {
	statusURL, err := mapping.RenderTemplate(s.statusURLTpl, map[string]any{"job_id": jobID})
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(s.pollTimeout)
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
		if err != nil {
			return nil, fmt.Errorf("building status request: %w", err)
		}
		body, err := doRequest(ctx, s.client, req, s.provider, auth, s.authCodes)
		if err != nil {
			return nil, err
		}
		status, err := mapping.ExtractJSONOne(body, s.statusKeyPath, true)
		if err != nil {
			return nil, fmt.Errorf("job status response malformed: %w", err)
		}
		if fmt.Sprint(status) == s.completedValue {
			resultURL, err := mapping.RenderTemplate(s.resultURLTpl, map[string]any{"job_id": jobID})
			if err != nil {
				return nil, err
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, resultURL, nil)
			if err != nil {
				return nil, fmt.Errorf("building result request: %w", err)
			}
			return doRequest(ctx, s.client, req, s.provider, auth, s.authCodes)
		}
		if time.Now().After(deadline) {
			return nil, errs.NewTimeOut(s.provider, fmt.Errorf("job %s did not complete within %s", jobID, s.pollTimeout))
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}
}
