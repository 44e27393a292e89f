package termtree

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Sternrassler/go-term-sync/pkg/client"
	"github.com/Sternrassler/go-term-sync/pkg/pagination"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Remote service constants.
const (
	DefaultSSPID     = "fa62fa7306a44d3fac304c119cbd4bd7"
	DefaultLCID      = 1030
	DefaultPageLimit = 2000

	serviceBase       = "/_vti_bin/taxonomyinternalservice.json"
	termSetChildren   = serviceBase + "/GetChildTermsInTermSetWithPaging"
	termChildren      = serviceBase + "/GetChildTermsInTermWithPaging"
	formDigestPath    = "/_layouts/15/termstoremanager.aspx"
	headerFormDigest  = "X-RequestDigest"
	headerContentType = "Content-Type"
)

// ErrNoContent is returned when a children response lacks d.Content.
var ErrNoContent = errors.New("response has no d.Content")

// Poster is the remote call the builder needs.
type Poster interface {
	PostJSON(ctx context.Context, url string, headers map[string]string, body, out any) error
}

// Config describes where a hierarchy lives and how to walk it.
type Config struct {
	// BaseURL of the remote site, e.g. https://go.example.dk.
	BaseURL string

	// CaseType is the site collection segment of the URL.
	CaseType string

	// TermSetID scopes child lookups below a parent term.
	TermSetID string

	SSPID     string
	LCID      int
	PageLimit int

	// Lenient keeps walking when a subtree cannot be fetched, leaving that
	// subtree empty. The root fetch always fails the build.
	Lenient bool
}

// FormDigestURL returns the management page that issues the request digest.
func (c Config) FormDigestURL() string {
	return c.siteURL() + formDigestPath
}

func (c Config) childrenURL(parentID string) string {
	if parentID == "" {
		return c.siteURL() + termSetChildren
	}
	return c.siteURL() + termChildren
}

func (c Config) siteURL() string {
	return strings.TrimSuffix(c.BaseURL, "/") + "/" + c.CaseType
}

// childrenRequest is the paging request body for one parent.
type childrenRequest struct {
	GUID                       *string `json:"guid"`
	IncludeDeprecated          bool    `json:"includeDeprecated"`
	IncludeNoneTaggableTermset bool    `json:"includeNoneTaggableTermset"`
	LCID                       int     `json:"lcid"`
	ListID                     string  `json:"listId"`
	SSPID                      string  `json:"sspId"`
	WebID                      string  `json:"webId"`
	IncludeCurrentChild        bool    `json:"includeCurrentChild"`
	CurrentChildID             string  `json:"currentChildId"`
	PagingForward              bool    `json:"pagingForward"`
	PageLimit                  int     `json:"pageLimit"`
	TermSetID                  string  `json:"termsetId,omitempty"`
}

// childRecord is one entry of d.Content.
type childRecord struct {
	Name       string `json:"Nm"`
	ID         string `json:"Id"`
	ChildCount int    `json:"Cc"`
}

type childrenResponse struct {
	D *struct {
		Content           *[]childRecord `json:"Content"`
		MoreDataAvailable bool           `json:"MoreDataAvailable"`
	} `json:"d"`
}

// Builder walks the remote hierarchy depth-first, one request at a time.
type Builder struct {
	poster  Poster
	headers map[string]string
	config  Config
	pager   *pagination.Fetcher
	logger  zerolog.Logger
}

// NewBuilder creates a builder. digest is sent as X-RequestDigest on every call.
func NewBuilder(poster Poster, digest string, config Config, logger zerolog.Logger) *Builder {
	if config.SSPID == "" {
		config.SSPID = DefaultSSPID
	}
	if config.LCID == 0 {
		config.LCID = DefaultLCID
	}
	if config.PageLimit <= 0 {
		config.PageLimit = DefaultPageLimit
	}
	logger = logger.With().Str("component", "term-tree").Logger()

	return &Builder{
		poster: poster,
		headers: map[string]string{
			headerContentType: "application/json; charset=UTF-8",
			headerFormDigest:  digest,
		},
		config: config,
		pager:  pagination.NewFetcher(pagination.DefaultConfig(), logger),
		logger: logger,
	}
}

// Build fetches the hierarchy below parentID, or below the term-set root when
// parentID is empty. Siblings are resolved strictly in order: a child's whole
// subtree is fetched before the next sibling is looked at.
func (b *Builder) Build(ctx context.Context, parentID string) (*Node, error) {
	root := &Node{ID: parentID}
	seen := map[string]bool{}
	if parentID != "" {
		seen[parentID] = true
	}

	children, err := b.children(ctx, parentID, seen)
	if err != nil {
		return nil, err
	}
	root.Children = children

	b.logger.Info().
		Str("root", parentID).
		Int("nodes", root.Count()).
		Msg("Term tree built")
	return root, nil
}

func (b *Builder) children(ctx context.Context, parentID string, seen map[string]bool) ([]*Node, error) {
	src := &childSource{builder: b, parentID: parentID}
	records, err := pagination.Collect[childRecord](ctx, b.pager, src, "")
	if err != nil {
		return nil, err
	}

	nodes := make([]*Node, 0, len(records))
	for _, rec := range records {
		if rec.Name == "" || rec.ID == "" {
			continue
		}
		if seen[rec.ID] {
			b.logger.Warn().
				Str("id", rec.ID).
				Str("parent", parentID).
				Msg("Term already visited, skipping repeated subtree")
			continue
		}
		seen[rec.ID] = true

		node := &Node{ID: rec.ID, Name: rec.Name, ParentID: parentID}
		if rec.ChildCount > 0 {
			sub, err := b.children(ctx, rec.ID, seen)
			switch {
			case err == nil:
				node.Children = sub
			case b.config.Lenient:
				b.logger.Warn().
					Err(err).
					Str("id", rec.ID).
					Int("declared_children", rec.ChildCount).
					Msg("Subtree fetch failed, continuing without it")
			default:
				return nil, fmt.Errorf("children of %s: %w", rec.ID, err)
			}
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// childSource pages through the children of one parent. The cursor is the id
// of the last child already returned.
type childSource struct {
	builder  *Builder
	parentID string
}

func (s *childSource) Name() string {
	if s.parentID == "" {
		return "termset-children"
	}
	return "term-children"
}

func (s *childSource) FetchPage(ctx context.Context, cursor string) (pagination.Page[childRecord], error) {
	b := s.builder
	url := b.config.childrenURL(s.parentID)

	var resp childrenResponse
	if err := b.poster.PostJSON(ctx, url, b.headers, s.request(cursor), &resp); err != nil {
		return pagination.Page[childRecord]{}, err
	}
	if resp.D == nil || resp.D.Content == nil {
		return pagination.Page[childRecord]{}, &client.DecodeError{URL: url, Err: ErrNoContent}
	}

	content := *resp.D.Content
	page := pagination.Page[childRecord]{Items: content}
	if resp.D.MoreDataAvailable && len(content) > 0 {
		page.Next = content[len(content)-1].ID
	}
	return page, nil
}

func (s *childSource) request(cursor string) childrenRequest {
	b := s.builder
	zero := uuid.Nil.String()

	req := childrenRequest{
		IncludeDeprecated:          true,
		IncludeNoneTaggableTermset: true,
		LCID:                       b.config.LCID,
		ListID:                     zero,
		SSPID:                      b.config.SSPID,
		WebID:                      zero,
		IncludeCurrentChild:        cursor == "",
		CurrentChildID:             zero,
		PagingForward:              true,
		PageLimit:                  b.config.PageLimit,
	}
	if cursor != "" {
		req.CurrentChildID = cursor
	}
	if s.parentID != "" {
		parent := s.parentID
		req.GUID = &parent
		req.TermSetID = b.config.TermSetID
	}
	return req
}
