package schema

import (
	"fmt"
	"sort"
	"strings"
)

// NodeType is the closed set of entity kinds the graph accepts.
type NodeType string

const (
	NodeTypeMessage      NodeType = "message"
	NodeTypePerson       NodeType = "person"
	NodeTypeDocument     NodeType = "document"
	NodeTypeEvent        NodeType = "event"
	NodeTypeTopic        NodeType = "topic"
	NodeTypeSession      NodeType = "session"
	NodeTypeChannel      NodeType = "channel"
	NodeTypeThread       NodeType = "thread"
	NodeTypeEmail        NodeType = "email"
	NodeTypeAttachment   NodeType = "attachment"
	NodeTypeReceipt      NodeType = "receipt"
	NodeTypeTask         NodeType = "task"
	NodeTypeOrganization NodeType = "organization"
	NodeTypeLocation     NodeType = "location"
	NodeTypeProject      NodeType = "project"
	NodeTypeNote         NodeType = "note"
)

// String returns the node type value.
func (t NodeType) String() string {
	return string(t)
}

// Label returns the display label used in query patterns and Cypher (e.g. "Message").
func (t NodeType) Label() string {
	if t == "" {
		return ""
	}
	return strings.ToUpper(string(t[:1])) + string(t[1:])
}

// RelationType names a directed edge kind such as SENT_BY or IN_CHANNEL.
type RelationType string

const (
	RelSentBy        RelationType = "SENT_BY"
	RelSentTo        RelationType = "SENT_TO"
	RelCC            RelationType = "CC"
	RelInChannel     RelationType = "IN_CHANNEL"
	RelInThread      RelationType = "IN_THREAD"
	RelReplyTo       RelationType = "REPLY_TO"
	RelMentions      RelationType = "MENTIONS"
	RelDiscusses     RelationType = "DISCUSSES"
	RelAbout         RelationType = "ABOUT"
	RelHasAttachment RelationType = "HAS_ATTACHMENT"
	RelAttachedTo    RelationType = "ATTACHED_TO"
	RelPartOf        RelationType = "PART_OF"
	RelContains      RelationType = "CONTAINS"
	RelMemberOf      RelationType = "MEMBER_OF"
	RelWorksWith     RelationType = "WORKS_WITH"
	RelKnows         RelationType = "KNOWS"
	RelSameAs        RelationType = "SAME_AS"
	RelAuthored      RelationType = "AUTHORED"
	RelAttends       RelationType = "ATTENDS"
	RelAttendedBy    RelationType = "ATTENDED_BY"
	RelLocatedAt     RelationType = "LOCATED_AT"
	RelPrecedes      RelationType = "PRECEDES"
	RelFollows       RelationType = "FOLLOWS"
	RelRelatedTo     RelationType = "RELATED_TO"
	RelSubtopicOf    RelationType = "SUBTOPIC_OF"
	RelReferences    RelationType = "REFERENCES"
	RelDependsOn     RelationType = "DEPENDS_ON"
	RelBlocks        RelationType = "BLOCKS"
	RelAssignedTo    RelationType = "ASSIGNED_TO"
	RelDueBefore     RelationType = "DUE_BEFORE"
	RelIssuedBy      RelationType = "ISSUED_BY"
	RelPaidBy        RelationType = "PAID_BY"
)

// String returns the relationship type value.
func (r RelationType) String() string {
	return string(r)
}

// PropertyType is the value type a named property must carry.
type PropertyType string

const (
	PropertyString   PropertyType = "string"
	PropertyInteger  PropertyType = "integer"
	PropertyFloat    PropertyType = "float"
	PropertyBoolean  PropertyType = "boolean"
	PropertyDateTime PropertyType = "datetime"
	PropertyArray    PropertyType = "array"
	PropertyObject   PropertyType = "object"
)

// IsValid reports whether p is one of the known property types.
func (p PropertyType) IsValid() bool {
	switch p {
	case PropertyString, PropertyInteger, PropertyFloat, PropertyBoolean,
		PropertyDateTime, PropertyArray, PropertyObject:
		return true
	}
	return false
}

// FormatEmail marks string properties that must look like an e-mail address.
const FormatEmail = "email"

// PropertySpec describes the type and bounds of a property name. The table is
// shared by every node type: "email" means the same thing on a person and a receipt.
type PropertySpec struct {
	Name      string       `yaml:"name" json:"name"`
	Type      PropertyType `yaml:"type" json:"type"`
	MinLength int          `yaml:"min_length,omitempty" json:"min_length,omitempty"`
	MaxLength int          `yaml:"max_length,omitempty" json:"max_length,omitempty"`
	Min       *float64     `yaml:"min,omitempty" json:"min,omitempty"`
	Max       *float64     `yaml:"max,omitempty" json:"max,omitempty"`
	Format    string       `yaml:"format,omitempty" json:"format,omitempty"`

	// AcceptObject lets an array property arrive as an object. The value is
	// accepted with a warning instead of an error.
	AcceptObject bool `yaml:"accept_object,omitempty" json:"accept_object,omitempty"`
}

// NodeSpec lists the required and optional properties of one node type.
// A name in both lists must be present but may be empty.
type NodeSpec struct {
	Type        NodeType `yaml:"type" json:"type"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Required    []string `yaml:"required,omitempty" json:"required,omitempty"`
	Optional    []string `yaml:"optional,omitempty" json:"optional,omitempty"`
}

// IsRequired reports whether name is a required property of the node type.
func (n NodeSpec) IsRequired(name string) bool {
	for _, r := range n.Required {
		if r == name {
			return true
		}
	}
	return false
}

// IsOptional reports whether name is declared optional for the node type.
func (n NodeSpec) IsOptional(name string) bool {
	for _, o := range n.Optional {
		if o == name {
			return true
		}
	}
	return false
}

// RelationshipRule declares which target types a (from, relation) pair may point at.
type RelationshipRule struct {
	From     NodeType     `yaml:"from" json:"from"`
	Relation RelationType `yaml:"relation" json:"relation"`
	To       []NodeType   `yaml:"to" json:"to"`
}

type relKey struct {
	from NodeType
	rel  RelationType
}

// Schema is the process-wide, read-only description of the graph. Build it once
// with New (or Default, ParseYAML, LoadFromEtcd) and share the pointer.
type Schema struct {
	nodes      map[NodeType]NodeSpec
	properties map[string]PropertySpec
	rels       map[relKey]map[NodeType]struct{}
	relTypes   map[RelationType]struct{}
	statuses   map[string]struct{}
}

// New builds an immutable schema from its tables.
func New(nodes []NodeSpec, properties []PropertySpec, rules []RelationshipRule, statuses []string) (*Schema, error) {
	s := &Schema{
		nodes:      make(map[NodeType]NodeSpec, len(nodes)),
		properties: make(map[string]PropertySpec, len(properties)),
		rels:       make(map[relKey]map[NodeType]struct{}, len(rules)),
		relTypes:   make(map[RelationType]struct{}),
		statuses:   make(map[string]struct{}, len(statuses)),
	}

	for _, n := range nodes {
		if n.Type == "" {
			return nil, fmt.Errorf("node spec with empty type")
		}
		if _, dup := s.nodes[n.Type]; dup {
			return nil, fmt.Errorf("duplicate node type %q", n.Type)
		}
		s.nodes[n.Type] = NodeSpec{
			Type:        n.Type,
			Description: n.Description,
			Required:    append([]string(nil), n.Required...),
			Optional:    append([]string(nil), n.Optional...),
		}
	}

	for _, p := range properties {
		if p.Name == "" {
			return nil, fmt.Errorf("property spec with empty name")
		}
		if !p.Type.IsValid() {
			return nil, fmt.Errorf("property %q: unknown type %q", p.Name, p.Type)
		}
		s.properties[p.Name] = p
	}

	for _, r := range rules {
		if _, ok := s.nodes[r.From]; !ok {
			return nil, fmt.Errorf("relationship %s: unknown source type %q", r.Relation, r.From)
		}
		k := relKey{from: r.From, rel: r.Relation}
		if s.rels[k] == nil {
			s.rels[k] = make(map[NodeType]struct{}, len(r.To))
		}
		for _, to := range r.To {
			if _, ok := s.nodes[to]; !ok {
				return nil, fmt.Errorf("relationship %s: unknown target type %q", r.Relation, to)
			}
			s.rels[k][to] = struct{}{}
		}
		s.relTypes[r.Relation] = struct{}{}
	}

	for _, st := range statuses {
		s.statuses[st] = struct{}{}
	}

	return s, nil
}

// NodeSpec returns the definition of a node type.
func (s *Schema) NodeSpec(t NodeType) (NodeSpec, bool) {
	spec, ok := s.nodes[t]
	return spec, ok
}

// Property returns the definition of a property name.
func (s *Schema) Property(name string) (PropertySpec, bool) {
	p, ok := s.properties[name]
	return p, ok
}

// HasNodeType reports whether t is part of the schema.
func (s *Schema) HasNodeType(t NodeType) bool {
	_, ok := s.nodes[t]
	return ok
}

// HasRelationType reports whether any rule declares rel.
func (s *Schema) HasRelationType(rel RelationType) bool {
	_, ok := s.relTypes[rel]
	return ok
}

// ResolveNodeType maps a query label ("Message", "message") to a node type.
func (s *Schema) ResolveNodeType(label string) (NodeType, bool) {
	t := NodeType(strings.ToLower(label))
	return t, s.HasNodeType(t)
}

// NodeTypes returns all node types in sorted order.
func (s *Schema) NodeTypes() []NodeType {
	out := make([]NodeType, 0, len(s.nodes))
	for t := range s.nodes {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RelationTypes returns all declared relationship types in sorted order.
func (s *Schema) RelationTypes() []RelationType {
	out := make([]RelationType, 0, len(s.relTypes))
	for r := range s.relTypes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AllowedTargets returns the target types legal for (from, rel), sorted.
func (s *Schema) AllowedTargets(from NodeType, rel RelationType) []NodeType {
	set := s.rels[relKey{from: from, rel: rel}]
	out := make([]NodeType, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsAllowedRelationship reports whether the triple is declared legal.
func (s *Schema) IsAllowedRelationship(from NodeType, rel RelationType, to NodeType) bool {
	set, ok := s.rels[relKey{from: from, rel: rel}]
	if !ok {
		return false
	}
	_, ok = set[to]
	return ok
}

// IsValidStatus reports whether v belongs to the closed status set.
func (s *Schema) IsValidStatus(v string) bool {
	_, ok := s.statuses[v]
	return ok
}

// Statuses returns the closed status set in sorted order.
func (s *Schema) Statuses() []string {
	out := make([]string, 0, len(s.statuses))
	for st := range s.statuses {
		out = append(out, st)
	}
	sort.Strings(out)
	return out
}
