// Package graph composes the entity co-occurrence graph from stored
// mentions. Events reference entities through mentions only, so the graph is
// assembled at read time rather than persisted.
package graph

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/venwatch/venwatch/internal/event"
	"github.com/venwatch/venwatch/internal/persistence"
)

const (
	defaultWindow       = 30 * 24 * time.Hour
	defaultMinEdge      = 2
	labelPropagationCap = 20
	// maxEdgeEvents bounds the supporting-event lineage kept per edge.
	maxEdgeEvents = 20
)

// Node is one canonical entity in the co-occurrence graph.
type Node struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Mentions  int    `json:"mentions"`
	Community int    `json:"community"`
}

// Edge links two entities mentioned by the same events. Source < Target.
type Edge struct {
	Source   string   `json:"source"`
	Target   string   `json:"target"`
	Weight   int      `json:"weight"`
	EventIDs []string `json:"event_ids"`
}

// Graph is the assembled co-occurrence view.
type Graph struct {
	Nodes       []Node    `json:"nodes"`
	Edges       []Edge    `json:"edges"`
	WindowStart time.Time `json:"window_start"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Options scope a build. Zero values take the defaults above; empty
// Categories means no category filter.
type Options struct {
	Since           time.Time
	MinCooccurrence int
	Categories      []event.Category
}

// Builder assembles graphs and narratives from the entity registry and the
// event store.
type Builder struct {
	entities persistence.EntityStore
	events   persistence.EventStore
	nowFn    func() time.Time
}

func NewBuilder(entities persistence.EntityStore, events persistence.EventStore) *Builder {
	return &Builder{entities: entities, events: events, nowFn: time.Now}
}

// Build assembles the co-occurrence graph. No matching data yields an empty
// graph, never an error.
func (b *Builder) Build(ctx context.Context, opts Options) (*Graph, error) {
	now := b.nowFn().UTC()
	since := opts.Since
	if since.IsZero() {
		since = now.Add(-defaultWindow)
	}
	minEdge := opts.MinCooccurrence
	if minEdge <= 0 {
		minEdge = defaultMinEdge
	}

	mentions, err := b.entities.MentionsSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("load mentions: %w", err)
	}

	allowed, err := b.allowedEvents(ctx, since, now, opts.Categories)
	if err != nil {
		return nil, err
	}

	// Entity sets per event, deduplicated.
	byEvent := make(map[string]map[string]bool)
	mentionCounts := make(map[string]int)
	for _, m := range mentions {
		if allowed != nil && !allowed[m.EventID] {
			continue
		}
		set := byEvent[m.EventID]
		if set == nil {
			set = make(map[string]bool)
			byEvent[m.EventID] = set
		}
		if !set[m.CanonicalID] {
			set[m.CanonicalID] = true
			mentionCounts[m.CanonicalID]++
		}
	}

	edges := accumulateEdges(byEvent)

	g := &Graph{WindowStart: since, GeneratedAt: now}
	connected := make(map[string]bool)
	for _, e := range edges {
		if e.Weight < minEdge {
			continue
		}
		g.Edges = append(g.Edges, e)
		connected[e.Source] = true
		connected[e.Target] = true
	}
	sort.Slice(g.Edges, func(i, j int) bool {
		if g.Edges[i].Weight != g.Edges[j].Weight {
			return g.Edges[i].Weight > g.Edges[j].Weight
		}
		return g.Edges[i].Source+g.Edges[i].Target < g.Edges[j].Source+g.Edges[j].Target
	})

	communities := propagateLabels(connected, g.Edges)
	for id := range connected {
		node := Node{ID: id, Name: id, Mentions: mentionCounts[id], Community: communities[id]}
		if ent, err := b.entities.Get(ctx, id); err == nil {
			node.Name = ent.PrimaryName
			node.Type = ent.EntityType
		} else {
			log.Warn().Err(err).Str("entity", id).Msg("graph node lookup failed")
		}
		g.Nodes = append(g.Nodes, node)
	}
	sort.Slice(g.Nodes, func(i, j int) bool {
		if g.Nodes[i].Mentions != g.Nodes[j].Mentions {
			return g.Nodes[i].Mentions > g.Nodes[j].Mentions
		}
		return g.Nodes[i].ID < g.Nodes[j].ID
	})
	return g, nil
}

// allowedEvents returns the event-id filter for a category selection, or nil
// when no filter applies.
func (b *Builder) allowedEvents(ctx context.Context, since, now time.Time, categories []event.Category) (map[string]bool, error) {
	if len(categories) == 0 {
		return nil, nil
	}
	wanted := make(map[event.Category]bool, len(categories))
	for _, c := range categories {
		wanted[c] = true
	}
	evs, err := b.events.ListWindow(ctx, since, now)
	if err != nil {
		return nil, fmt.Errorf("load events for category filter: %w", err)
	}
	allowed := make(map[string]bool)
	for _, ev := range evs {
		if wanted[ev.Category] {
			allowed[ev.ID] = true
		}
	}
	return allowed, nil
}

// accumulateEdges turns per-event entity sets into weighted unordered pairs.
func accumulateEdges(byEvent map[string]map[string]bool) []Edge {
	type pair struct{ a, b string }
	weights := make(map[pair]*Edge)
	for eventID, set := range byEvent {
		ids := make([]string, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				p := pair{ids[i], ids[j]}
				e := weights[p]
				if e == nil {
					e = &Edge{Source: p.a, Target: p.b}
					weights[p] = e
				}
				e.Weight++
				if len(e.EventIDs) < maxEdgeEvents {
					e.EventIDs = append(e.EventIDs, eventID)
				}
			}
		}
	}
	out := make([]Edge, 0, len(weights))
	for _, e := range weights {
		sort.Strings(e.EventIDs)
		out = append(out, *e)
	}
	return out
}

// propagateLabels assigns community labels by greedy label propagation:
// every node adopts its neighbors' heaviest label until no label moves.
// Iteration order is sorted, so the result is deterministic.
func propagateLabels(nodes map[string]bool, edges []Edge) map[string]int {
	order := make([]string, 0, len(nodes))
	for id := range nodes {
		order = append(order, id)
	}
	sort.Strings(order)

	labels := make(map[string]int, len(order))
	for i, id := range order {
		labels[id] = i
	}

	type neighbor struct {
		id     string
		weight int
	}
	adj := make(map[string][]neighbor)
	for _, e := range edges {
		adj[e.Source] = append(adj[e.Source], neighbor{e.Target, e.Weight})
		adj[e.Target] = append(adj[e.Target], neighbor{e.Source, e.Weight})
	}

	for iter := 0; iter < labelPropagationCap; iter++ {
		changed := false
		for _, id := range order {
			tally := make(map[int]int)
			for _, n := range adj[id] {
				tally[labels[n.id]] += n.weight
			}
			best, bestWeight := labels[id], 0
			for label, w := range tally {
				if w > bestWeight || (w == bestWeight && label < best) {
					best, bestWeight = label, w
				}
			}
			if bestWeight > 0 && best != labels[id] {
				labels[id] = best
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	// Compact labels to 0..n in first-seen sorted order.
	compact := make(map[int]int)
	out := make(map[string]int, len(order))
	for _, id := range order {
		l := labels[id]
		if _, ok := compact[l]; !ok {
			compact[l] = len(compact)
		}
		out[id] = compact[l]
	}
	return out
}
