package pagination

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/rs/zerolog"
)

// scriptedSource serves pages from a map keyed by cursor and records the
// cursors it was asked for.
type scriptedSource struct {
	pages     map[string]Page[int]
	failAt    string
	requested []string
}

func (s *scriptedSource) Name() string { return "scripted" }

func (s *scriptedSource) FetchPage(ctx context.Context, cursor string) (Page[int], error) {
	s.requested = append(s.requested, cursor)
	if cursor == s.failAt {
		return Page[int]{}, errors.New("page unavailable")
	}
	p, ok := s.pages[cursor]
	if !ok {
		return Page[int]{}, fmt.Errorf("unexpected cursor %q", cursor)
	}
	return p, nil
}

func TestCollect_SinglePage(t *testing.T) {
	src := &scriptedSource{pages: map[string]Page[int]{
		"first": {Items: []int{1, 2, 3}},
	}}

	items, err := Collect(context.Background(), NewFetcher(DefaultConfig(), zerolog.Nop()), src, "first")
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	if !reflect.DeepEqual(items, []int{1, 2, 3}) {
		t.Errorf("items = %v, want [1 2 3]", items)
	}
	if !reflect.DeepEqual(src.requested, []string{"first"}) {
		t.Errorf("requested = %v, want exactly one request", src.requested)
	}
}

func TestCollect_FollowsCursorsInOrder(t *testing.T) {
	src := &scriptedSource{pages: map[string]Page[int]{
		"p1": {Items: []int{1}, Next: "p2"},
		"p2": {Items: []int{2, 3}, Next: "p3"},
		"p3": {Items: []int{4}, Next: "p4"},
		"p4": {Items: []int{5}},
	}}

	items, err := Collect(context.Background(), NewFetcher(DefaultConfig(), zerolog.Nop()), src, "p1")
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	if !reflect.DeepEqual(items, []int{1, 2, 3, 4, 5}) {
		t.Errorf("items = %v", items)
	}
	if !reflect.DeepEqual(src.requested, []string{"p1", "p2", "p3", "p4"}) {
		t.Errorf("requested = %v, want one request per cursor in order", src.requested)
	}
}

func TestCollect_ShortPageIsNotTermination(t *testing.T) {
	// An empty page that still carries a cursor must not end the walk.
	src := &scriptedSource{pages: map[string]Page[int]{
		"p1": {Items: nil, Next: "p2"},
		"p2": {Items: []int{7}},
	}}

	items, err := Collect(context.Background(), NewFetcher(DefaultConfig(), zerolog.Nop()), src, "p1")
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if !reflect.DeepEqual(items, []int{7}) {
		t.Errorf("items = %v, want [7]", items)
	}
	if len(src.requested) != 2 {
		t.Errorf("requests = %d, want 2", len(src.requested))
	}
}

func TestCollect_PageFailureAborts(t *testing.T) {
	src := &scriptedSource{
		pages: map[string]Page[int]{
			"p1": {Items: []int{1}, Next: "p2"},
			"p2": {Items: []int{2}, Next: "p3"},
		},
		failAt: "p2",
	}

	items, err := Collect(context.Background(), NewFetcher(DefaultConfig(), zerolog.Nop()), src, "p1")
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if items != nil {
		t.Errorf("Expected no partial result, got %v", items)
	}
	if !reflect.DeepEqual(src.requested, []string{"p1", "p2"}) {
		t.Errorf("requested = %v, walk should stop at the failing page", src.requested)
	}
}

func TestCollect_MaxPages(t *testing.T) {
	// A server repeating the same cursor forever.
	src := &scriptedSource{pages: map[string]Page[int]{
		"loop": {Items: []int{1}, Next: "loop"},
	}}

	_, err := Collect(context.Background(), NewFetcher(Config{MaxPages: 5}, zerolog.Nop()), src, "loop")
	if !errors.Is(err, ErrTooManyPages) {
		t.Fatalf("Expected ErrTooManyPages, got %v", err)
	}
	if len(src.requested) != 5 {
		t.Errorf("requests = %d, want 5", len(src.requested))
	}
}

func TestNewFetcher_Defaults(t *testing.T) {
	f := NewFetcher(Config{}, zerolog.Nop())
	if f.config.MaxPages != DefaultConfig().MaxPages {
		t.Errorf("MaxPages = %d, want default %d", f.config.MaxPages, DefaultConfig().MaxPages)
	}
}
