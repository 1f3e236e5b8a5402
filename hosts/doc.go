// Package hosts customizes ingestion per content host. A handler claims a
// set of domains, rewrites links into directly fetchable URLs and extracts
// host-specific metadata from fetched pages. Resolution is first match in
// registration order with a catch-all fallback.
package hosts
