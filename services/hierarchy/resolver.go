// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package hierarchy

import (
	"log/slog"
	"sort"
	"sync"
)

// visit state for the iterative DFS.
type visitState int

const (
	unvisited visitState = iota
	inProgress
	resolved
)

// Resolver computes the applicable control set of each Zielobjekt: its
// directly assigned controls plus everything inherited along the parent
// chain.
//
// The memo cache lives on the Resolver, so one instance resolves one
// snapshot of the hierarchy. Safe for concurrent use.
type Resolver struct {
	reg *Registry
	// direct maps a Zielobjekt NAME (the catalog's target_objects tag)
	// to its directly assigned control IDs.
	direct map[string][]string
	log    *slog.Logger

	mu    sync.Mutex
	memo  map[string]map[string]struct{}
	state map[string]visitState
}

// NewResolver builds a resolver over one hierarchy snapshot.
func NewResolver(reg *Registry, direct map[string][]string, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		reg:    reg,
		direct: direct,
		log:    log,
		memo:   make(map[string]map[string]struct{}),
		state:  make(map[string]visitState),
	}
}

// Controls returns the sorted applicable control IDs for one
// Zielobjekt. Unknown IDs resolve to the empty set with a warning; a
// cycle along the parent chain is logged as an error and contributes
// nothing beyond the nodes below it.
func (r *Resolver) Controls(id string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.resolveLocked(id)
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// ResolveAll resolves every registered Zielobjekt.
func (r *Resolver) ResolveAll() map[string][]string {
	out := make(map[string][]string, r.reg.Len())
	for _, id := range r.reg.IDs() {
		out[id] = r.Controls(id)
	}
	return out
}

// resolveLocked walks the parent chain with an explicit stack. Each
// frame is pushed once to enqueue its parent and revisited once to fold
// the parent's resolved set into its own. r.mu must be held.
func (r *Resolver) resolveLocked(id string) map[string]struct{} {
	if set, ok := r.memo[id]; ok {
		return set
	}

	type frame struct {
		id           string
		parentPushed bool
	}
	stack := []frame{{id: id}}

	for len(stack) > 0 {
		f := &stack[len(stack)-1]

		z, known := r.reg.Get(f.id)
		if !known {
			r.log.Warn("unknown zielobjekt, resolving to empty control set",
				"uuid", f.id)
			r.memo[f.id] = map[string]struct{}{}
			r.state[f.id] = resolved
			stack = stack[:len(stack)-1]
			continue
		}

		if !f.parentPushed {
			r.state[f.id] = inProgress
			f.parentPushed = true
			if parent := z.ParentID; parent != "" {
				switch r.state[parent] {
				case inProgress:
					r.log.Error("cycle in zielobjekt hierarchy, ignoring parent link",
						"uuid", f.id, "parent", parent)
				case resolved:
					// Memoized, nothing to push.
				default:
					stack = append(stack, frame{id: parent})
					continue
				}
			}
		}

		// Parent (if any) is resolved or unusable; fold it in.
		set := make(map[string]struct{})
		for _, c := range r.direct[z.Name] {
			set[c] = struct{}{}
		}
		if parent := z.ParentID; parent != "" {
			for c := range r.memo[parent] {
				set[c] = struct{}{}
			}
		}
		r.memo[f.id] = set
		r.state[f.id] = resolved
		stack = stack[:len(stack)-1]
	}

	return r.memo[id]
}
