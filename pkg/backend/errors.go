package backend

import "errors"

// Error taxonomy. Backends classify failures with these sentinels;
// the API layer never maps them to HTTP status for query endpoints — they
// always surface inside QueryResult.Error / TopologyResult.Error per the
// error-as-200 contract — but the sentinels are still useful for logging,
// metrics, and for the scenario-config-resolver's distinction between "not
// configured" (warn, keep serving other backends) and a live query failure.
var (
	ErrConfigMissing       = errors.New("config_missing")
	ErrResourceNotFound    = errors.New("resource_not_found")
	ErrQuerySyntax         = errors.New("query_syntax")
	ErrRateLimit           = errors.New("rate_limit")
	ErrUpstreamUnavailable = errors.New("upstream_unavailable")
	ErrAuth                = errors.New("auth")
	ErrBackendNotFound     = errors.New("backend not found in registry")
)
