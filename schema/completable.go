package schema

import (
	"context"
	"reflect"
	"sync"

	"github.com/sahilm/fuzzy"
)

// MaxCompletionValues is the cap completion/complete enforces on the number
// of suggestions returned in a single response, regardless of how many
// candidates a Completer produces.
const MaxCompletionValues = 100

// A Completer produces the full candidate list for one argument, given the
// value typed so far. It is not expected to do its own ranking or
// truncation; RankAndTruncate does that uniformly for every registered
// completer.
type Completer func(ctx context.Context, value string) ([]string, error)

// CompletionRegistry is the side table component H uses instead of
// subclassing Prompt/Resource types: a completer is attached to an argument
// schema's identity rather than folded into the schema document itself, so
// attaching one never changes what the schema validates. isCompletable and
// getCompleter are implemented here as IsCompletable/GetCompleter, the only
// observers of that side table; CompleterForSlot is the extra lookup the
// completion/complete handler needs because the wire request names an
// argument by (owner, argument name), not by schema object.
type CompletionRegistry struct {
	mu         sync.RWMutex
	completers map[uintptr]Completer
	slots      map[string]uintptr // "owner\x00argument" -> schema identity
}

// NewCompletionRegistry returns an empty registry.
func NewCompletionRegistry() *CompletionRegistry {
	return &CompletionRegistry{
		completers: make(map[uintptr]Completer),
		slots:      make(map[string]uintptr),
	}
}

// Attach associates c with schemaDoc's identity, and records that identity
// under the named argument slot of owner (a prompt name or a resource URI
// template) so completion/complete can find it again by name. Attaching
// again to the same schema object overwrites the previous completer.
func (r *CompletionRegistry) Attach(owner, argument string, schemaDoc map[string]any, c Completer) {
	id, ok := schemaIdentity(schemaDoc)
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completers[id] = c
	r.slots[slotKey(owner, argument)] = id
}

// IsCompletable reports whether schemaDoc has a completer attached.
func (r *CompletionRegistry) IsCompletable(schemaDoc map[string]any) bool {
	_, ok := r.GetCompleter(schemaDoc)
	return ok
}

// GetCompleter returns the Completer attached to schemaDoc's identity, if
// any. Two distinct map values built from the same JSON never compare equal
// here: attachment is by object identity, not by structural content.
func (r *CompletionRegistry) GetCompleter(schemaDoc map[string]any) (Completer, bool) {
	id, ok := schemaIdentity(schemaDoc)
	if !ok {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.completers[id]
	return c, ok
}

// CompleterForSlot returns the Completer attached under the named argument
// slot of owner, resolving through the identity the slot was attached with.
func (r *CompletionRegistry) CompleterForSlot(owner, argument string) (Completer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.slots[slotKey(owner, argument)]
	if !ok {
		return nil, false
	}
	c, ok := r.completers[id]
	return c, ok
}

func slotKey(owner, argument string) string { return owner + "\x00" + argument }

// schemaIdentity returns the pointer identity of a JSON Schema document
// decoded as map[string]any, per §9's side-table-by-identity design.
func schemaIdentity(schemaDoc map[string]any) (uintptr, bool) {
	if schemaDoc == nil {
		return 0, false
	}
	return reflect.ValueOf(schemaDoc).Pointer(), true
}

// RankAndTruncate ranks candidates against query using fuzzy subsequence
// matching (an empty query keeps input order) and truncates the result to
// MaxCompletionValues, reporting the true total and whether truncation
// occurred.
func RankAndTruncate(candidates []string, query string) (values []string, total int, hasMore bool) {
	if query == "" {
		total = len(candidates)
		if total > MaxCompletionValues {
			return candidates[:MaxCompletionValues], total, true
		}
		out := make([]string, total)
		copy(out, candidates)
		return out, total, false
	}

	matches := fuzzy.Find(query, candidates)
	total = len(matches)
	n := total
	if n > MaxCompletionValues {
		n = MaxCompletionValues
	}
	values = make([]string, n)
	for i := 0; i < n; i++ {
		values[i] = candidates[matches[i].Index]
	}
	return values, total, total > MaxCompletionValues
}
