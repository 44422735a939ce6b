package linker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zero-day-ai/kgraph/graph"
	"github.com/zero-day-ai/kgraph/schema"
)

// DefaultMaxAttempts bounds how often a pending link is re-queued.
const DefaultMaxAttempts = 5

// LinkStatus is the outcome of a link attempt.
type LinkStatus int

const (
	// LinkCreated means the relationship was stored.
	LinkCreated LinkStatus = iota
	// LinkDeferred means an endpoint is missing and the link was queued.
	LinkDeferred
	// LinkRejected means the store refused the relationship.
	LinkRejected
	// LinkDropped means the link ran out of attempts.
	LinkDropped
)

func (s LinkStatus) String() string {
	switch s {
	case LinkCreated:
		return "created"
	case LinkDeferred:
		return "deferred"
	case LinkRejected:
		return "rejected"
	case LinkDropped:
		return "dropped"
	default:
		return fmt.Sprintf("LinkStatus(%d)", int(s))
	}
}

// Resolution counts what happened to the links replayed for one node.
type Resolution struct {
	Created  int `json:"created"`
	Deferred int `json:"deferred"`
	Rejected int `json:"rejected"`
	Dropped  int `json:"dropped"`
}

func (r *Resolution) record(s LinkStatus) {
	switch s {
	case LinkCreated:
		r.Created++
	case LinkDeferred:
		r.Deferred++
	case LinkRejected:
		r.Rejected++
	case LinkDropped:
		r.Dropped++
	}
}

// Linker adds relationships with a two-phase protocol: a link whose
// endpoint does not exist yet is queued under the missing id and replayed
// when that node is added through the Linker.
type Linker struct {
	store       graph.Store
	pending     PendingStore
	logger      *slog.Logger
	now         func() time.Time
	maxAttempts int
}

// Option configures a Linker.
type Option func(*Linker)

// WithLogger sets the logger. Default slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Linker) { l.logger = logger }
}

// WithClock overrides time.Now for PendingLink.CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(l *Linker) { l.now = now }
}

// WithMaxAttempts sets how many replays a link gets before it is dropped.
func WithMaxAttempts(n int) Option {
	return func(l *Linker) { l.maxAttempts = n }
}

// New creates a Linker. A nil pending store selects MemoryPending.
func New(store graph.Store, pending PendingStore, opts ...Option) *Linker {
	if pending == nil {
		pending = NewMemoryPending()
	}
	l := &Linker{store: store, pending: pending, now: time.Now, maxAttempts: DefaultMaxAttempts}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// Pending returns the number of queued links.
func (l *Linker) Pending(ctx context.Context) (int, error) {
	return l.pending.Len(ctx)
}

// Link adds the relationship, or queues it when an endpoint is missing.
// Endpoints are checked with a single GetNodesBatch call.
func (l *Linker) Link(ctx context.Context, fromID, toID string, rel schema.RelationType, props map[string]any) (LinkStatus, error) {
	if fromID == "" || toID == "" || rel == "" {
		return LinkRejected, graph.NewError("Link", graph.KindInvalidArgument,
			fmt.Errorf("from, to and relationship type are required"))
	}
	return l.attempt(ctx, PendingLink{
		ID:         uuid.New().String(),
		FromID:     fromID,
		ToID:       toID,
		Type:       rel,
		Properties: graph.CopyProps(props),
		CreatedAt:  l.now().UTC(),
	})
}

func (l *Linker) attempt(ctx context.Context, link PendingLink) (LinkStatus, error) {
	nodes, err := l.store.GetNodesBatch(ctx, []string{link.FromID, link.ToID}, "")
	if err != nil {
		return LinkRejected, err
	}

	missing := ""
	switch {
	case nodes[link.FromID] == nil:
		missing = link.FromID
	case nodes[link.ToID] == nil:
		missing = link.ToID
	}
	if missing != "" {
		return l.deferLink(ctx, missing, link)
	}

	ok, err := l.store.AddRelationship(ctx, link.FromID, link.ToID, link.Type, link.Properties)
	if err != nil {
		return LinkRejected, err
	}
	if !ok {
		return LinkRejected, nil
	}
	return LinkCreated, nil
}

// deferLink queues link under missing. The node may have been added and
// resolved between the endpoint check and the enqueue, so missing is
// checked again afterwards and replayed if it now exists.
func (l *Linker) deferLink(ctx context.Context, missing string, link PendingLink) (LinkStatus, error) {
	if link.Attempts >= l.maxAttempts {
		l.logger.Warn("dropping pending link",
			"link_id", link.ID,
			"from", link.FromID,
			"to", link.ToID,
			"rel_type", link.Type.String(),
			"attempts", link.Attempts)
		return LinkDropped, nil
	}
	if err := l.pending.Add(ctx, missing, link); err != nil {
		return LinkRejected, fmt.Errorf("deferring link %s: %w", link.ID, err)
	}

	nodes, err := l.store.GetNodesBatch(ctx, []string{missing}, "")
	if err != nil {
		// the link is queued; the next Resolve for missing picks it up
		l.logger.Warn("recheck of deferred endpoint failed",
			"link_id", link.ID,
			"node_id", missing,
			"error", err)
		return LinkDeferred, nil
	}
	if nodes[missing] != nil {
		out := outcome{id: link.ID, status: LinkDeferred}
		if _, err := l.replay(ctx, missing, &out); err != nil && out.err == nil {
			l.logger.Warn("replay after late endpoint failed",
				"node_id", missing,
				"error", err)
		}
		return out.status, out.err
	}

	l.logger.Debug("endpoint not yet indexed, link deferred",
		"link_id", link.ID,
		"node_id", missing,
		"rel_type", link.Type.String())
	return LinkDeferred, nil
}

// AddNode adds a node and replays the links waiting for it.
func (l *Linker) AddNode(ctx context.Context, id string, t schema.NodeType, props map[string]any) (bool, Resolution, error) {
	ok, err := l.store.AddNode(ctx, id, t, props)
	if err != nil || !ok {
		return ok, Resolution{}, err
	}
	res, err := l.Resolve(ctx, id)
	return true, res, err
}

// Resolve replays the links queued under id. A link still missing its other
// endpoint is queued again under that id. Validation failures do not stop
// the replay; they are joined into the returned error.
func (l *Linker) Resolve(ctx context.Context, id string) (Resolution, error) {
	return l.replay(ctx, id, nil)
}

// outcome captures the result of one link during a replay.
type outcome struct {
	id     string
	status LinkStatus
	err    error
}

func (l *Linker) replay(ctx context.Context, id string, track *outcome) (Resolution, error) {
	var res Resolution

	links, takeErr := l.pending.Take(ctx, id)
	if takeErr != nil {
		takeErr = fmt.Errorf("taking pending links for %s: %w", id, takeErr)
		if len(links) == 0 {
			return res, takeErr
		}
		l.logger.Warn("replaying partial pending list", "node_id", id, "links", len(links), "error", takeErr)
	}

	rejected := []error{takeErr}
	for i, link := range links {
		link.Attempts++
		status, err := l.attempt(ctx, link)
		var gerr *graph.Error
		if err != nil && !errors.As(err, &gerr) {
			// put back what has not been tried so nothing is lost
			for _, rest := range links[i:] {
				if addErr := l.pending.Add(ctx, id, rest); addErr != nil {
					l.logger.Error("failed to requeue pending link", "link_id", rest.ID, "error", addErr)
				}
			}
			return res, err
		}
		if err != nil {
			rejected = append(rejected, err)
		}
		if track != nil && link.ID == track.id {
			track.status, track.err = status, err
		}
		res.record(status)
	}

	if len(links) > 0 {
		l.logger.Debug("resolved pending links",
			"node_id", id,
			"created", res.Created,
			"deferred", res.Deferred,
			"rejected", res.Rejected,
			"dropped", res.Dropped)
	}
	return res, errors.Join(rejected...)
}
