// Package model defines the data shared by the crawler, its fetchers and the
// report writers.
//
//   - Address: a URL split into its identity (scheme, host, path) and the
//     anchors and parameter sets seen for it
//   - Page: one fetched response
//   - Fingerprint: a content summary used to spot duplicate responses
//   - Inventory: the outcome of a crawl run
//
// Everything here serializes to JSON for reports and the history database.
package model
