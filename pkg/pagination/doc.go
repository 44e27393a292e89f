// Package pagination walks cursor-paginated remote listings page by page.
//
// A listing is described by a Source: it fetches and decodes the page addressed
// by a cursor and reports the cursor of the following page, if any. The remote
// API signals completion explicitly, so a page without a next cursor is the last
// page. A short page (fewer rows than the requested page size) is never treated
// as the end of the listing.
//
// Example usage:
//
//	fetcher := pagination.NewFetcher(pagination.DefaultConfig(), logger)
//	rows, err := pagination.Collect(ctx, fetcher, source, firstURL)
//
// Pages are fetched sequentially, in cursor order. Any page failure aborts the
// walk and no partial result is returned.
package pagination
