package schema

import (
	"context"
	"fmt"
	"os"
	"sort"

	clientv3 "go.etcd.io/etcd/client/v3"
	"gopkg.in/yaml.v3"
)

// File is the YAML representation of a schema.
//
//	node_types:
//	  - type: message
//	    required: [text, timestamp]
//	properties:
//	  - name: text
//	    type: string
//	relationships:
//	  - from: message
//	    relation: SENT_BY
//	    to: [person]
//	statuses: [active, archived]
type File struct {
	NodeTypes     []NodeSpec         `yaml:"node_types"`
	Properties    []PropertySpec     `yaml:"properties"`
	Relationships []RelationshipRule `yaml:"relationships"`
	Statuses      []string           `yaml:"statuses"`
}

// ParseYAML builds a schema from a YAML document. The document replaces the
// built-in tables entirely. An empty statuses list falls back to DefaultStatuses.
func ParseYAML(data []byte) (*Schema, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse schema YAML: %w", err)
	}
	if len(f.NodeTypes) == 0 {
		return nil, fmt.Errorf("schema defines no node types")
	}
	statuses := f.Statuses
	if len(statuses) == 0 {
		statuses = DefaultStatuses
	}
	return New(f.NodeTypes, f.Properties, f.Relationships, statuses)
}

// LoadFile reads and parses a YAML schema file.
func LoadFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file %s: %w", path, err)
	}
	s, err := ParseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("schema file %s: %w", path, err)
	}
	return s, nil
}

// MarshalYAML renders the schema back to its YAML form.
func (s *Schema) MarshalYAML() (any, error) {
	f := File{Statuses: s.Statuses()}
	for _, t := range s.NodeTypes() {
		f.NodeTypes = append(f.NodeTypes, s.nodes[t])
	}
	names := make([]string, 0, len(s.properties))
	for name := range s.properties {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		f.Properties = append(f.Properties, s.properties[name])
	}
	for _, from := range s.NodeTypes() {
		for _, rel := range s.RelationTypes() {
			if to := s.AllowedTargets(from, rel); len(to) > 0 {
				f.Relationships = append(f.Relationships, RelationshipRule{From: from, Relation: rel, To: to})
			}
		}
	}
	return f, nil
}

// LoadFromEtcd reads a YAML schema document stored under key. The schema is
// read once; there is no watch, so a changed document takes effect on restart.
func LoadFromEtcd(ctx context.Context, kv clientv3.KV, key string) (*Schema, error) {
	resp, err := kv.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema key %s from etcd: %w", key, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, fmt.Errorf("schema key %s not found in etcd", key)
	}
	s, err := ParseYAML(resp.Kvs[0].Value)
	if err != nil {
		return nil, fmt.Errorf("etcd key %s: %w", key, err)
	}
	return s, nil
}
