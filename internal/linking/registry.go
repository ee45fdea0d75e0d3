// Package linking maintains the cross-form evidence links: a mapping from a
// requirement key to the set of evidence ids satisfying it.
package linking

import (
	"fmt"
	"sort"
	"strings"
)

// EPAKey encodes an EPA criterion link target.
func EPAKey(level string, section, index int) string {
	return fmt.Sprintf("EPA-L%s-%d-%d", level, section, index)
}

// GSATKey encodes a GSAT domain link target.
func GSATKey(domain string, index int) string {
	return fmt.Sprintf("GSAT-%s-%d", domain, index)
}

// EPALevelPrefix is the key prefix shared by all EPA criteria at one level.
func EPALevelPrefix(level string) string {
	return "EPA-L" + level + "-"
}

// Registry maps requirement keys to deduplicated sets of evidence ids. It is
// agnostic to key semantics beyond exact-match lookup, and is not safe for
// concurrent use; the owning service serializes access.
type Registry struct {
	links map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{links: make(map[string]map[string]struct{})}
}

// Link unions the ids into the requirement key's set.
func (r *Registry) Link(key string, ids ...string) {
	if key == "" || len(ids) == 0 {
		return
	}
	set := r.links[key]
	if set == nil {
		set = make(map[string]struct{}, len(ids))
		r.links[key] = set
	}
	for _, id := range ids {
		if id != "" {
			set[id] = struct{}{}
		}
	}
}

// Unlink removes one evidence id from the key's set. Removing an absent id is
// a no-op.
func (r *Registry) Unlink(key, id string) {
	set, ok := r.links[key]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(r.links, key)
	}
}

// Get returns the ids linked under the key, sorted for stable output.
func (r *Registry) Get(key string) []string {
	set, ok := r.links[key]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Contains reports whether the id is linked under the key.
func (r *Registry) Contains(key, id string) bool {
	_, ok := r.links[key][id]
	return ok
}

// All returns every key with its sorted id set.
func (r *Registry) All() map[string][]string {
	out := make(map[string][]string, len(r.links))
	for key := range r.links {
		out[key] = r.Get(key)
	}
	return out
}

// ForEPALevel returns the links visible to an EPA form opened at the given
// level: EPA criterion keys for that level, plus plain requirement ids that
// carry no level encoding. EPA keys from other levels and GSAT keys are hidden.
func (r *Registry) ForEPALevel(level string) map[string][]string {
	prefix := EPALevelPrefix(level)
	out := make(map[string][]string)
	for key := range r.links {
		switch {
		case strings.HasPrefix(key, prefix):
			out[key] = r.Get(key)
		case !strings.HasPrefix(key, "EPA-") && !strings.HasPrefix(key, "GSAT-"):
			out[key] = r.Get(key)
		}
	}
	return out
}

// DropEvidence removes an evidence id from every key. Used when a record is
// discarded so no set references an id absent from the evidence store.
func (r *Registry) DropEvidence(id string) {
	for key := range r.links {
		r.Unlink(key, id)
	}
}
