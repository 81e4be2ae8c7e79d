package rule

import (
	"context"
	"time"
)

type Repo interface {
	FetchEnabled(ctx context.Context) ([]*Rule, error)
}

// Resolver turns a rule into a deliverable title and due time.
// ok=false means the rule's entity no longer applies (deleted, wrong
// lifecycle state) and the rule must be skipped, not errored.
type Resolver interface {
	Resolve(ctx context.Context, r *Rule) (title string, dueAt time.Time, ok bool, err error)
}

// Registry maps an application tag to its Resolver so the fill pass stays
// free of per-application conditionals.
type Registry struct {
	byApp    map[string]Resolver
	fallback Resolver
}

func NewRegistry(fallback Resolver) *Registry {
	return &Registry{byApp: make(map[string]Resolver), fallback: fallback}
}

func (g *Registry) Register(app string, r Resolver) { g.byApp[app] = r }

func (g *Registry) For(app string) Resolver {
	if r, ok := g.byApp[app]; ok {
		return r
	}
	return g.fallback
}

// EmbeddedResolver reads the title and due time the owning application
// wrote into the rule itself. Used for every app without a dedicated resolver.
type EmbeddedResolver struct{}

func (EmbeddedResolver) Resolve(_ context.Context, r *Rule) (string, time.Time, bool, error) {
	if r.DueAt == nil || r.DueAt.IsZero() {
		return "", time.Time{}, false, nil
	}
	return r.EntityTitle, *r.DueAt, true, nil
}
