package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// NarrativeEvent is one supporting event in a relationship lineage.
type NarrativeEvent struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Category  string    `json:"category"`
	Timestamp time.Time `json:"timestamp"`
}

// Narrative describes how two entities relate through shared events.
type Narrative struct {
	From             Node             `json:"from"`
	To               Node             `json:"to"`
	Path             []Node           `json:"path"`
	Text             string           `json:"text"`
	SupportingEvents []NarrativeEvent `json:"supporting_events"`
}

// Narrative composes the relationship between two entities: the shortest
// co-occurrence path and the events along it. Unrelated entities yield an
// empty path and a text saying so, not an error.
func (b *Builder) Narrative(ctx context.Context, fromID, toID string) (*Narrative, error) {
	// Narrative paths may run through rare pairs, so keep single
	// co-occurrences.
	g, err := b.Build(ctx, Options{MinCooccurrence: 1})
	if err != nil {
		return nil, err
	}

	nodes := make(map[string]Node, len(g.Nodes))
	for _, n := range g.Nodes {
		nodes[n.ID] = n
	}
	n := &Narrative{
		From: b.lookupNode(ctx, nodes, fromID),
		To:   b.lookupNode(ctx, nodes, toID),
	}

	pathIDs := shortestPath(g.Edges, fromID, toID)
	if len(pathIDs) == 0 {
		n.Text = fmt.Sprintf("No documented relationship between %s and %s in the analysis window.",
			n.From.Name, n.To.Name)
		return n, nil
	}

	for _, id := range pathIDs {
		n.Path = append(n.Path, nodes[id])
	}
	n.SupportingEvents = b.lineage(ctx, g.Edges, pathIDs)
	n.Text = composeText(n.Path, n.SupportingEvents)
	return n, nil
}

func (b *Builder) lookupNode(ctx context.Context, nodes map[string]Node, id string) Node {
	if n, ok := nodes[id]; ok {
		return n
	}
	n := Node{ID: id, Name: id}
	if ent, err := b.entities.Get(ctx, id); err == nil {
		n.Name = ent.PrimaryName
		n.Type = ent.EntityType
	}
	return n
}

// shortestPath is a breadth-first search over the undirected edge set.
// Returns nil when no path exists; a self-path is the single node.
func shortestPath(edges []Edge, from, to string) []string {
	if from == to {
		return []string{from}
	}
	adj := make(map[string][]string)
	for _, e := range edges {
		adj[e.Source] = append(adj[e.Source], e.Target)
		adj[e.Target] = append(adj[e.Target], e.Source)
	}
	for _, ns := range adj {
		sort.Strings(ns)
	}

	prev := map[string]string{from: from}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adj[cur] {
			if _, seen := prev[next]; seen {
				continue
			}
			prev[next] = cur
			if next == to {
				var path []string
				for at := to; at != from; at = prev[at] {
					path = append([]string{at}, path...)
				}
				return append([]string{from}, path...)
			}
			queue = append(queue, next)
		}
	}
	return nil
}

// lineage collects the supporting events along a path, newest first.
func (b *Builder) lineage(ctx context.Context, edges []Edge, pathIDs []string) []NarrativeEvent {
	onPath := make(map[[2]string]bool)
	for i := 0; i+1 < len(pathIDs); i++ {
		a, c := pathIDs[i], pathIDs[i+1]
		if a > c {
			a, c = c, a
		}
		onPath[[2]string{a, c}] = true
	}

	seen := make(map[string]bool)
	var out []NarrativeEvent
	for _, e := range edges {
		if !onPath[[2]string{e.Source, e.Target}] {
			continue
		}
		for _, id := range e.EventIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			ev, err := b.events.Get(ctx, id)
			if err != nil {
				log.Warn().Err(err).Str("event", id).Msg("narrative event lookup failed")
				continue
			}
			out = append(out, NarrativeEvent{
				ID:        ev.ID,
				Title:     ev.Title,
				Category:  string(ev.Category),
				Timestamp: ev.EventTimestamp,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

func composeText(path []Node, events []NarrativeEvent) string {
	names := make([]string, len(path))
	for i, n := range path {
		names[i] = n.Name
	}
	var sb strings.Builder
	if len(path) < 2 {
		fmt.Fprintf(&sb, "%s is a single entity; no relationship path applies.", names[0])
		return sb.String()
	}
	if len(path) == 2 {
		fmt.Fprintf(&sb, "%s and %s appear together in %d events.", names[0], names[len(names)-1], len(events))
	} else {
		fmt.Fprintf(&sb, "%s connects to %s through %s, with %d supporting events.",
			names[0], names[len(names)-1], strings.Join(names[1:len(names)-1], ", "), len(events))
	}
	if len(events) > 0 {
		latest := events[0]
		fmt.Fprintf(&sb, " Most recent: %q (%s, %s).",
			latest.Title, latest.Category, latest.Timestamp.Format("2006-01-02"))
	}
	return sb.String()
}
