// Package hackernews holds the ingestion defaults for MindsDB's HackerNews
// integration tables.
package hackernews

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kleos-cli/kleos/pkg/mindsql"
)

const (
	// Engine is the MindsDB integration engine name.
	Engine = "hackernews"
	// DefaultDatasource is the datasource name used when none is configured.
	DefaultDatasource = "hackernews"
	// DefaultTable is the table ingested by refresh jobs.
	DefaultTable = "stories"
	// DefaultSchedule is the refresh job interval.
	DefaultSchedule = "1 hour"
)

// Mapping is the content column and metadata mapping for one table.
type Mapping struct {
	Content  string
	Metadata []mindsql.ColumnMapping
}

var defaults = map[string]Mapping{
	"stories": {
		Content: "title",
		Metadata: []mindsql.ColumnMapping{
			{Target: "story_id", Source: "id"},
			{Target: "time", Source: "time"},
			{Target: "score", Source: "score"},
			{Target: "descendants", Source: "descendants"},
		},
	},
	"comments": {
		Content: "text",
		Metadata: []mindsql.ColumnMapping{
			{Target: "comment_id", Source: "id"},
			{Target: "time", Source: "time"},
			{Target: "parent", Source: "parent"},
		},
	},
	"hnstories": {
		Content: "title",
		Metadata: []mindsql.ColumnMapping{
			{Target: "story_id", Source: "id"},
		},
	},
}

// Tables lists the tables with known defaults.
func Tables() []string {
	out := make([]string, 0, len(defaults))
	for t := range defaults {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Default returns the defaults for table.
func Default(table string) (Mapping, bool) {
	m, ok := defaults[strings.ToLower(table)]
	if !ok {
		return Mapping{}, false
	}
	m.Metadata = append([]mindsql.ColumnMapping(nil), m.Metadata...)
	return m, true
}

// MissingContentError is returned when a table has no defaults and no
// content column was given.
type MissingContentError struct {
	Table string
}

func (e *MissingContentError) Error() string {
	return fmt.Sprintf("no default mapping for table %q (known: %s)", e.Table, strings.Join(Tables(), ", "))
}

// Resolve fills the content column and metadata for table. Explicit values
// win; a nil metadata map falls back to the defaults, an empty one means
// no metadata. Explicit maps are emitted in key order.
func Resolve(table, content string, metadata map[string]string) (Mapping, error) {
	def, known := Default(table)

	m := Mapping{Content: content}
	if m.Content == "" {
		if !known {
			return Mapping{}, &MissingContentError{Table: table}
		}
		m.Content = def.Content
	}

	if metadata == nil {
		if known {
			m.Metadata = def.Metadata
		}
		return m, nil
	}

	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		m.Metadata = append(m.Metadata, mindsql.ColumnMapping{Target: k, Source: metadata[k]})
	}
	return m, nil
}

// Datasource returns the CREATE DATABASE statement for the integration.
func Datasource(name string) (string, error) {
	if name == "" {
		name = DefaultDatasource
	}
	return mindsql.CreateDatabase(mindsql.DatabaseSpec{Name: name, Engine: Engine})
}

// IngestSpec returns the INSERT-SELECT spec for loading table into kb.
func IngestSpec(kb, datasource, table string, m Mapping, limit int) mindsql.InsertSpec {
	if datasource == "" {
		datasource = DefaultDatasource
	}
	return mindsql.InsertSpec{
		KnowledgeBase: kb,
		Datasource:    datasource,
		Table:         table,
		ContentColumn: m.Content,
		Metadata:      m.Metadata,
		Limit:         limit,
	}
}

// RefreshSpec describes a job that keeps a knowledge base fed.
type RefreshSpec struct {
	// Project owns the job; empty leaves the name unqualified.
	Project       string
	Job           string
	KnowledgeBase string
	Datasource    string
	Table         string
	Schedule      string
	Mapping       Mapping
}

// RefreshJob builds a job that inserts only rows newer than the previous
// run into the knowledge base.
func RefreshJob(rs RefreshSpec) (string, error) {
	spec := IngestSpec(rs.KnowledgeBase, rs.Datasource, rs.Table, rs.Mapping, 0)
	spec.OnlyNew = true
	insert, err := mindsql.InsertFromSource(spec)
	if err != nil {
		return "", err
	}
	schedule := rs.Schedule
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if _, err := mindsql.ParseInterval(schedule); err != nil {
		return "", err
	}
	return mindsql.CreateJob(mindsql.JobSpec{
		Project:    rs.Project,
		Name:       rs.Job,
		Statements: []string{insert},
		Schedule:   schedule,
	})
}
