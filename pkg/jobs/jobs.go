// Package jobs defines the catalog of synchronization jobs and turns it into
// dated work items for the queue.
package jobs

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/Sternrassler/go-term-sync/pkg/dispatch"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Kind selects the pipeline that processes a job.
type Kind string

const (
	// KindTaxonomy pulls the flat hidden taxonomy list.
	KindTaxonomy Kind = "taxonomy"

	// KindTerm pulls a term hierarchy below a start term.
	KindTerm Kind = "term"
)

// DefaultSchema qualifies stored procedure names given without a schema.
const DefaultSchema = "rpa"

// DefaultBaseURL is the production site.
const DefaultBaseURL = "https://ad.go.aarhuskommune.dk"

// ErrUnknownKind is returned for payloads naming an unsupported process.
var ErrUnknownKind = errors.New("unknown process kind")

// FlatPull holds the parameters of a taxonomy list job.
type FlatPull struct {
	ViewID string
}

// HierarchicalPull holds the parameters of a term tree job.
type HierarchicalPull struct {
	StoredProcedure string
	ObjectType      string
	StartTermID     string
	TermSetID       string
}

// Procedure returns the schema-qualified procedure name.
func (h HierarchicalPull) Procedure() string {
	if strings.Contains(h.StoredProcedure, ".") {
		return h.StoredProcedure
	}
	return DefaultSchema + "." + h.StoredProcedure
}

// Job is one catalog entry. Exactly one of Flat and Tree is set, matching Kind.
type Job struct {
	Name     string
	Kind     Kind
	BaseURL  string
	CaseType string

	Flat *FlatPull
	Tree *HierarchicalPull
}

// Validate checks that the job carries everything its pipeline needs.
func (j Job) Validate() error {
	if j.Name == "" {
		return fmt.Errorf("job name is required")
	}
	u, err := url.Parse(j.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("job %s: invalid baseUrl %q", j.Name, j.BaseURL)
	}
	if j.CaseType == "" {
		return fmt.Errorf("job %s: caseType is required", j.Name)
	}

	switch j.Kind {
	case KindTaxonomy:
		if j.Flat == nil {
			return fmt.Errorf("job %s: missing taxonomy parameters", j.Name)
		}
		if _, err := uuid.Parse(j.Flat.ViewID); err != nil {
			return fmt.Errorf("job %s: invalid viewId: %w", j.Name, err)
		}
	case KindTerm:
		if j.Tree == nil {
			return fmt.Errorf("job %s: missing term parameters", j.Name)
		}
		if j.Tree.StoredProcedure == "" {
			return fmt.Errorf("job %s: storedProcedure is required", j.Name)
		}
		if j.Tree.StartTermID != "" {
			if _, err := uuid.Parse(j.Tree.StartTermID); err != nil {
				return fmt.Errorf("job %s: invalid startTermId: %w", j.Name, err)
			}
		}
		if _, err := uuid.Parse(j.Tree.TermSetID); err != nil {
			return fmt.Errorf("job %s: invalid termSetUuid: %w", j.Name, err)
		}
	default:
		return fmt.Errorf("job %s: %w %q", j.Name, ErrUnknownKind, j.Kind)
	}
	return nil
}

// Payload returns the queue payload for the job.
func (j Job) Payload() map[string]any {
	p := map[string]any{
		"process":  string(j.Kind),
		"baseUrl":  j.BaseURL,
		"caseType": j.CaseType,
	}
	if j.Flat != nil {
		p["viewId"] = j.Flat.ViewID
	}
	if j.Tree != nil {
		p["storedProcedure"] = j.Tree.StoredProcedure
		p["objectType"] = j.Tree.ObjectType
		p["startTermId"] = j.Tree.StartTermID
		p["termSetUuid"] = j.Tree.TermSetID
	}
	return p
}

// FromPayload rebuilds a job from a queue payload. The name is taken from the
// caller since payloads do not carry it.
func FromPayload(name string, payload map[string]any) (Job, error) {
	str := func(key string) string {
		s, _ := payload[key].(string)
		return s
	}

	j := Job{
		Name:     name,
		Kind:     Kind(str("process")),
		BaseURL:  str("baseUrl"),
		CaseType: str("caseType"),
	}
	switch j.Kind {
	case KindTaxonomy:
		j.Flat = &FlatPull{ViewID: str("viewId")}
	case KindTerm:
		j.Tree = &HierarchicalPull{
			StoredProcedure: str("storedProcedure"),
			ObjectType:      str("objectType"),
			StartTermID:     str("startTermId"),
			TermSetID:       str("termSetUuid"),
		}
	default:
		return Job{}, fmt.Errorf("%w %q", ErrUnknownKind, j.Kind)
	}

	if err := j.Validate(); err != nil {
		return Job{}, err
	}
	return j, nil
}

// Reference returns the work item reference for the job on day.
func Reference(day time.Time, name string) string {
	return day.Format("2006-01-02") + "_" + name
}

// NameFromReference strips the date prefix added by Reference.
func NameFromReference(reference string) string {
	if i := strings.IndexByte(reference, '_'); i == len("2006-01-02") {
		return reference[i+1:]
	}
	return reference
}

// Catalog is an ordered set of jobs.
type Catalog []Job

// Validate checks every job and rejects duplicate names.
func (c Catalog) Validate() error {
	seen := make(map[string]bool, len(c))
	for _, j := range c {
		if err := j.Validate(); err != nil {
			return err
		}
		if seen[j.Name] {
			return fmt.Errorf("duplicate job name %q", j.Name)
		}
		seen[j.Name] = true
	}
	return nil
}

// Lookup returns the job named name.
func (c Catalog) Lookup(name string) (Job, bool) {
	for _, j := range c {
		if j.Name == name {
			return j, true
		}
	}
	return Job{}, false
}

// Names returns the job names in sorted order.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c))
	for _, j := range c {
		names = append(names, j.Name)
	}
	sort.Strings(names)
	return names
}

// WorkItems builds one work item per job, referenced by day and job name.
func (c Catalog) WorkItems(day time.Time) []dispatch.WorkItem {
	items := make([]dispatch.WorkItem, 0, len(c))
	for _, j := range c {
		items = append(items, dispatch.WorkItem{
			Reference: Reference(day, j.Name),
			Payload:   j.Payload(),
		})
	}
	return items
}

// catalogFile is the YAML layout read by LoadCatalog.
type catalogFile struct {
	Jobs []jobRecord `yaml:"jobs"`
}

type jobRecord struct {
	Name            string `yaml:"name"`
	Process         string `yaml:"process"`
	BaseURL         string `yaml:"baseUrl"`
	CaseType        string `yaml:"caseType"`
	ViewID          string `yaml:"viewId"`
	StoredProcedure string `yaml:"storedProcedure"`
	ObjectType      string `yaml:"objectType"`
	StartTermID     string `yaml:"startTermId"`
	TermSetUUID     string `yaml:"termSetUuid"`
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	cat := make(Catalog, 0, len(f.Jobs))
	for _, r := range f.Jobs {
		if r.BaseURL == "" {
			r.BaseURL = DefaultBaseURL
		}
		j := Job{Name: r.Name, Kind: Kind(r.Process), BaseURL: r.BaseURL, CaseType: r.CaseType}
		switch j.Kind {
		case KindTaxonomy:
			j.Flat = &FlatPull{ViewID: r.ViewID}
		case KindTerm:
			j.Tree = &HierarchicalPull{
				StoredProcedure: r.StoredProcedure,
				ObjectType:      r.ObjectType,
				StartTermID:     r.StartTermID,
				TermSetID:       r.TermSetUUID,
			}
		}
		cat = append(cat, j)
	}

	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return cat, nil
}

// LoadCatalog reads a YAML catalog file. An empty path returns DefaultCatalog.
func LoadCatalog(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}
