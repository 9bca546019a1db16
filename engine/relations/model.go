package relations

import (
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// DocumentNode is the graph projection of an ingested document. Only the
// fields needed for relation traversal and interaction-based ranking are
// stored; full document bodies stay in the vector index sidecar.
type DocumentNode struct {
	ID           string
	Kind         string
	Title        string
	Sector       string
	Published    time.Time
	Protocols    []string
	AssetTypes   []string
	Interactions int
}

func documentToMap(d DocumentNode) map[string]any {
	m := map[string]any{
		"id":          d.ID,
		"kind":        d.Kind,
		"title":       d.Title,
		"sector":      d.Sector,
		"protocols":   d.Protocols,
		"asset_types": d.AssetTypes,
	}
	if !d.Published.IsZero() {
		m["published"] = d.Published.UTC().Format(time.RFC3339)
	}
	return m
}

func documentFromProps(props map[string]any) DocumentNode {
	return DocumentNode{
		ID:           strProp(props, "id"),
		Kind:         strProp(props, "kind"),
		Title:        strProp(props, "title"),
		Sector:       strProp(props, "sector"),
		Published:    timeProp(props, "published"),
		Protocols:    strSliceProp(props, "protocols"),
		AssetTypes:   strSliceProp(props, "asset_types"),
		Interactions: intProp(props, "interactions"),
	}
}

func documentFromRecord(rec *neo4j.Record) (DocumentNode, error) {
	node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
	if err != nil {
		return DocumentNode{}, err
	}
	return documentFromProps(node.Props), nil
}

func strProp(props map[string]any, key string) string {
	if s, ok := props[key].(string); ok {
		return s
	}
	return ""
}

func strSliceProp(props map[string]any, key string) []string {
	switch v := props[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func intProp(props map[string]any, key string) int {
	switch v := props[key].(type) {
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func timeProp(props map[string]any, key string) time.Time {
	s := strProp(props, key)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
