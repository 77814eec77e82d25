// Package yamladapter implements the MAL's local-filesystem source:
// a tree of YAML documents under one root directory, queried by
// keyword heuristics or, when a caller supplies SourceFilter.Key, by a
// jq path expression (spec §4.A end-to-end scenario 1).
package yamladapter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/itchyny/gojq"
	"gopkg.in/yaml.v3"

	"github.com/devbackplane/backplane/pkg/memory"
	"github.com/devbackplane/backplane/pkg/shared/errors"
)

// Adapter reads and writes YAML documents rooted at Dir. All
// operations work against an in-memory snapshot refreshed from disk on
// every call; the adapter does not assume it is the only writer.
type Adapter struct {
	memory.BaseAdapter
	Dir string

	mu sync.Mutex
}

func New(dir string) *Adapter {
	return &Adapter{BaseAdapter: memory.BaseAdapter{Name: "yaml"}, Dir: dir}
}

// Query answers a natural-language question with heuristic routing:
// questions about "working on"/"current" read state/current_work.yaml;
// anything else falls through to a full-tree keyword search, matching
// the spirit of search without requiring a second round trip.
func (a *Adapter) Query(ctx context.Context, question string, filter memory.SourceFilter) (memory.AdapterResult, error) {
	if filter.Key != "" {
		return a.queryByKey(filter.Key)
	}

	lower := strings.ToLower(question)
	if strings.Contains(lower, "working on") || strings.Contains(lower, "current") {
		return a.currentWork()
	}
	return a.Search(ctx, question, filter)
}

// Search performs a substring match of query against every loaded
// document's rendered text, returning one item per matching file.
func (a *Adapter) Search(ctx context.Context, query string, filter memory.SourceFilter) (memory.AdapterResult, error) {
	docs, err := a.loadAll()
	if err != nil {
		return memory.AdapterResult{Source: "yaml"}, err
	}

	needle := strings.ToLower(query)
	var items []memory.MemoryItem
	for _, doc := range docs {
		if strings.Contains(strings.ToLower(doc.raw), needle) {
			items = append(items, memory.MemoryItem{
				Source:    "yaml",
				Type:      "state",
				Relevance: 0.6,
				Summary:   fmt.Sprintf("match in %s", doc.relPath),
				Content:   doc.raw,
				Metadata:  map[string]interface{}{"path": doc.relPath},
			})
		}
	}
	limitItems(&items, filter.Limit)
	return memory.AdapterResult{Source: "yaml", Items: items}, nil
}

// Store writes value as YAML to <Dir>/<key>.yaml atomically (write
// temp, fsync, rename).
func (a *Adapter) Store(ctx context.Context, key string, value interface{}, filter memory.SourceFilter) (memory.AdapterResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	path := filepath.Join(a.Dir, key+".yaml")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return memory.AdapterResult{Source: "yaml", Error: err.Error()}, &errors.PersistenceError{Path: path, Cause: err}
	}

	payload, err := yaml.Marshal(value)
	if err != nil {
		return memory.AdapterResult{Source: "yaml", Error: err.Error()}, &errors.PersistenceError{Path: path, Cause: err}
	}

	if err := atomicWrite(path, payload); err != nil {
		return memory.AdapterResult{Source: "yaml", Error: err.Error()}, &errors.PersistenceError{Path: path, Cause: err}
	}

	return memory.AdapterResult{Source: "yaml", Items: []memory.MemoryItem{{
		Source: "yaml", Type: "state", Relevance: 1, Summary: "stored " + key,
	}}}, nil
}

// HealthCheck confirms Dir is reachable; it never touches the network
// so it easily meets the ≤1s requirement.
func (a *Adapter) HealthCheck(ctx context.Context) (memory.HealthStatus, error) {
	info, err := os.Stat(a.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			// an empty state root is healthy; it will be created lazily
			return memory.HealthStatus{Healthy: true}, nil
		}
		return memory.HealthStatus{Healthy: false, Error: err.Error()}, nil
	}
	if !info.IsDir() {
		return memory.HealthStatus{Healthy: false, Error: "not a directory"}, nil
	}
	return memory.HealthStatus{Healthy: true}, nil
}

type document struct {
	relPath string
	raw     string
	parsed  interface{}
}

func (a *Adapter) loadAll() ([]document, error) {
	var docs []document
	err := filepath.WalkDir(a.Dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".yaml") {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var parsed interface{}
		if err := yaml.Unmarshal(raw, &parsed); err != nil {
			return nil // skip unparseable files rather than failing the whole query
		}
		rel, _ := filepath.Rel(a.Dir, path)
		docs = append(docs, document{relPath: rel, raw: string(raw), parsed: parsed})
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, &errors.PersistenceError{Path: a.Dir, Cause: err}
	}
	return docs, nil
}

// currentWork renders state/current_work.yaml's active_issues list per
// the end-to-end scenario: a summary reporting the count, content
// mentioning each issue's key and branch.
func (a *Adapter) currentWork() (memory.AdapterResult, error) {
	path := filepath.Join(a.Dir, "state", "current_work.yaml")
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return memory.AdapterResult{Source: "yaml"}, nil
	}
	if err != nil {
		return memory.AdapterResult{Source: "yaml", Error: err.Error()}, nil
	}

	var doc struct {
		ActiveIssues []map[string]interface{} `yaml:"active_issues"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return memory.AdapterResult{Source: "yaml", Error: err.Error()}, nil
	}

	if len(doc.ActiveIssues) == 0 {
		return memory.AdapterResult{Source: "yaml"}, nil
	}

	var lines []string
	for _, issue := range doc.ActiveIssues {
		lines = append(lines, fmt.Sprintf("%v: %v (branch %v)", issue["key"], issue["status"], issue["branch"]))
	}

	plural := "issue"
	if len(doc.ActiveIssues) != 1 {
		plural = "issues"
	}

	return memory.AdapterResult{
		Source: "yaml",
		Items: []memory.MemoryItem{{
			Source:    "yaml",
			Type:      "state",
			Relevance: 0.95,
			Summary:   fmt.Sprintf("%d active %s", len(doc.ActiveIssues), plural),
			Content:   strings.Join(lines, "\n"),
			Metadata:  map[string]interface{}{"path": "state/current_work.yaml"},
		}},
	}, nil
}

// queryByKey resolves filter.Key as a jq path expression (e.g.
// ".active_issues[0].branch") against every document, merging matches
// whose query succeeds into one result set.
func (a *Adapter) queryByKey(key string) (memory.AdapterResult, error) {
	expr := key
	if !strings.HasPrefix(expr, ".") {
		expr = "." + expr
	}
	query, err := gojq.Parse(expr)
	if err != nil {
		return memory.AdapterResult{Source: "yaml", Error: err.Error()}, nil
	}

	docs, err := a.loadAll()
	if err != nil {
		return memory.AdapterResult{Source: "yaml"}, err
	}

	var items []memory.MemoryItem
	for _, doc := range docs {
		iter := query.Run(normalizeForJQ(doc.parsed))
		for {
			v, ok := iter.Next()
			if !ok {
				break
			}
			if jqErr, isErr := v.(error); isErr {
				_ = jqErr
				break
			}
			items = append(items, memory.MemoryItem{
				Source:    "yaml",
				Type:      "state",
				Relevance: 0.9,
				Summary:   fmt.Sprintf("%s.%s", doc.relPath, key),
				Content:   fmt.Sprintf("%v", v),
				Metadata:  map[string]interface{}{"path": doc.relPath, "key": key},
			})
		}
	}
	return memory.AdapterResult{Source: "yaml", Items: items}, nil
}

// normalizeForJQ converts map[interface{}]interface{} nodes produced by
// yaml.v3 decoding into plain interface{} documents into the
// map[string]interface{} shape gojq requires.
func normalizeForJQ(v interface{}) interface{} {
	switch vv := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(vv))
		for k, val := range vv {
			out[k] = normalizeForJQ(val)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(vv))
		for k, val := range vv {
			out[fmt.Sprintf("%v", k)] = normalizeForJQ(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(vv))
		for i, val := range vv {
			out[i] = normalizeForJQ(val)
		}
		return out
	default:
		return v
	}
}

func limitItems(items *[]memory.MemoryItem, limit *int) {
	if limit == nil || *limit <= 0 || len(*items) <= *limit {
		return
	}
	*items = (*items)[:*limit]
}

func atomicWrite(path string, payload []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(payload); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
