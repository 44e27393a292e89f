// Package taxonomy pulls the flat TaxonomyHiddenList of a case type and writes
// every row to the store.
package taxonomy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Sternrassler/go-term-sync/pkg/client"
	"github.com/Sternrassler/go-term-sync/pkg/pagination"
	"github.com/Sternrassler/go-term-sync/pkg/store"
	"github.com/rs/zerolog"
)

// DefaultProcedure receives one call per list row.
const DefaultProcedure = "rpa.GO_TaxonomyList_Insert"

// Field is a list column value. The list API returns some columns as numbers
// and others as strings; both are kept as their textual form.
type Field string

// UnmarshalJSON accepts strings, numbers, booleans and null.
func (f *Field) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = Field(s)
		return nil
	}
	*f = Field(data)
	return nil
}

// Row is one entry of the hidden taxonomy list.
type Row struct {
	ID             Field `json:"ID"`
	Title          Field `json:"Title"`
	IdForTermStore Field `json:"IdForTermStore"`
	IdForTerm      Field `json:"IdForTerm"`
	IdForTermSet   Field `json:"IdForTermSet"`
	Path           Field `json:"Path"`
}

// Params identifies the list to pull.
type Params struct {
	BaseURL  string
	CaseType string
	ViewID   string
}

// Endpoint is the list rendering endpoint relative to BaseURL.
func (p Params) Endpoint() string {
	return fmt.Sprintf("/%s/_api/web/GetList('%%2F%s%%2FLists%%2FTaxonomyHiddenList')/RenderListDataAsStream",
		p.CaseType, p.CaseType)
}

// FirstPageURL is the absolute URL of the first page.
func (p Params) FirstPageURL() string {
	return p.base() + p.Endpoint() + "?Paged=TRUE&p_ID=0&PageFirstRow=31&View=" + p.ViewID
}

// NextPageURL resolves a NextHref returned by the API.
func (p Params) NextPageURL(nextHref string) string {
	return p.base() + p.Endpoint() + nextHref
}

func (p Params) base() string {
	return strings.TrimSuffix(p.BaseURL, "/")
}

// Result summarizes one pull.
type Result struct {
	Rows      int
	Succeeded int
	Failed    int
}

// PageFetcher fetches one raw list page.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) ([]byte, error)
}

// Puller fetches all list rows and upserts them.
type Puller struct {
	fetcher   PageFetcher
	exec      store.Executor
	procedure string
	pager     *pagination.Fetcher
	logger    zerolog.Logger
}

// NewPuller creates a puller writing to DefaultProcedure.
func NewPuller(fetcher PageFetcher, exec store.Executor, logger zerolog.Logger) *Puller {
	logger = logger.With().Str("component", "taxonomy-list").Logger()
	return &Puller{
		fetcher:   fetcher,
		exec:      exec,
		procedure: DefaultProcedure,
		pager:     pagination.NewFetcher(pagination.DefaultConfig(), logger),
		logger:    logger,
	}
}

// Fetch returns every row of the list, following NextHref until a page omits it.
func (p *Puller) Fetch(ctx context.Context, params Params) ([]Row, error) {
	src := &listSource{fetcher: p.fetcher, params: params}
	return pagination.Collect[Row](ctx, p.pager, src, params.FirstPageURL())
}

// Pull fetches the whole list and then inserts every row tagged with the case
// type. Fetch failures abort before anything is written; a failed row is
// logged and skipped.
func (p *Puller) Pull(ctx context.Context, params Params) (Result, error) {
	rows, err := p.Fetch(ctx, params)
	if err != nil {
		return Result{}, err
	}

	res := Result{Rows: len(rows)}
	for _, row := range rows {
		if err := p.exec.Execute(ctx, p.procedure, rowParams(row, params.CaseType)); err != nil {
			res.Failed++
			p.logger.Error().
				Err(err).
				Str("row_id", string(row.ID)).
				Msg("Failed to insert record")
			continue
		}
		res.Succeeded++
		p.logger.Debug().
			Str("row_id", string(row.ID)).
			Str("title", string(row.Title)).
			Msg("Inserted record")
	}

	p.logger.Info().
		Str("case_type", params.CaseType).
		Int("rows", res.Rows).
		Int("succeeded", res.Succeeded).
		Int("failed", res.Failed).
		Msg("All rows have been processed")
	return res, nil
}

func rowParams(row Row, caseType string) []store.Param {
	return []store.Param{
		store.String("ID", string(row.ID)),
		store.String("Title", string(row.Title)),
		store.String("IdForTermStore", string(row.IdForTermStore)),
		store.String("IdForTerm", string(row.IdForTerm)),
		store.String("IdForTermSet", string(row.IdForTermSet)),
		store.String("Path", string(row.Path)),
		store.String("CaseType", caseType),
	}
}

// listPage is the RenderListDataAsStream response shape.
type listPage struct {
	Row      []Row   `json:"Row"`
	NextHref *string `json:"NextHref"`
}

// listSource pages through the list. The cursor is the absolute page URL.
type listSource struct {
	fetcher PageFetcher
	params  Params
}

func (s *listSource) Name() string { return "taxonomy-list" }

func (s *listSource) FetchPage(ctx context.Context, cursor string) (pagination.Page[Row], error) {
	data, err := s.fetcher.FetchPage(ctx, cursor)
	if err != nil {
		return pagination.Page[Row]{}, err
	}

	var page listPage
	if err := json.Unmarshal(data, &page); err != nil {
		return pagination.Page[Row]{}, &client.DecodeError{URL: cursor, Err: err}
	}

	out := pagination.Page[Row]{Items: page.Row}
	if page.NextHref != nil && *page.NextHref != "" {
		out.Next = s.params.NextPageURL(*page.NextHref)
	}
	return out, nil
}
