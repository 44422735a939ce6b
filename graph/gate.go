package graph

import (
	"errors"
	"log/slog"

	"github.com/zero-day-ai/kgraph/schema"
)

// Gate applies a store's validation mode to schema validation results. The
// schema validator stays pure; the gate decides whether a failure rejects
// the write or is only logged.
type Gate struct {
	schema *schema.Schema
	mode   ValidationMode
	logger *slog.Logger
}

// NewGate creates a gate. A nil logger uses slog.Default().
func NewGate(s *schema.Schema, mode ValidationMode, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	if mode == "" {
		mode = ModeWarn
	}
	return &Gate{schema: s, mode: mode, logger: logger}
}

// Schema returns the schema the gate validates against.
func (g *Gate) Schema() *schema.Schema { return g.schema }

// Mode returns the validation mode.
func (g *Gate) Mode() ValidationMode { return g.mode }

// Strict reports whether the gate rejects invalid writes.
func (g *Gate) Strict() bool { return g.mode == ModeStrict }

// CheckNode validates a node write. It returns an error only in strict mode;
// in warn mode problems are logged and nil is returned.
func (g *Gate) CheckNode(op, id string, t schema.NodeType, props map[string]any) error {
	if id == "" {
		return NewError(op, KindInvalidArgument, errors.New("node id is required"))
	}

	res := g.schema.ValidateNode(t, props, true)
	for _, w := range res.Warnings {
		g.logger.Debug("node property warning",
			"op", op, "node_id", id, "node_type", t, "field", w.Field, "warning", w.Message)
	}
	if res.IsValid {
		return nil
	}

	err := NewError(op, KindSchemaValidation, res.Err()).
		WithContext(map[string]any{"node_id": id, "node_type": string(t)})
	if g.Strict() {
		return err
	}
	g.logger.Warn("node failed schema validation; storing anyway",
		"op", op, "node_id", id, "node_type", t, "error", res.Err())
	return nil
}

// MissingEndpoint reports a relationship whose endpoint does not exist. In
// strict mode the returned error is meant for the caller; in warn mode the
// miss is logged at debug level (it is usually an ingestion ordering issue)
// and nil is returned. Either way the caller must skip the write.
func (g *Gate) MissingEndpoint(op, fromID, toID, missingID string, rel schema.RelationType) error {
	if g.Strict() {
		return NewError(op, KindMissingEndpoint, ErrMissingEndpoint).WithContext(map[string]any{
			"from_id": fromID, "to_id": toID, "missing_id": missingID, "rel_type": string(rel),
		})
	}
	g.logger.Debug("relationship endpoint not yet indexed",
		"op", op, "from_id", fromID, "to_id", toID, "missing_id", missingID, "rel_type", rel)
	return nil
}

// CheckRelationship validates the triple formed by two existing endpoints.
// Endpoint types the schema does not know are not checked.
func (g *Gate) CheckRelationship(op string, from, to *Node, rel schema.RelationType) error {
	if rel == "" {
		return NewError(op, KindInvalidArgument, errors.New("relationship type is required"))
	}
	if !g.schema.HasNodeType(from.Type) || !g.schema.HasNodeType(to.Type) {
		return nil
	}

	res := g.schema.ValidateRelationship(from.Type, rel, to.Type)
	if res.IsValid {
		return nil
	}
	if g.Strict() {
		return NewError(op, KindRelationshipSchema, res.Err()).WithContext(map[string]any{
			"from_id": from.ID, "to_id": to.ID, "rel_type": string(rel),
		})
	}
	g.logger.Warn("relationship not allowed by schema; storing anyway",
		"op", op, "from_id", from.ID, "to_id", to.ID, "rel_type", rel, "error", res.Err())
	return nil
}

// Unavailable logs a backend failure. Store methods call it and then return
// a false or nil result with a nil error.
func (g *Gate) Unavailable(op string, err error, attrs ...any) {
	args := append([]any{"op", op, "kind", KindBackendUnavailable, "error", err}, attrs...)
	g.logger.Warn("graph backend unavailable", args...)
}
