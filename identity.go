package main

import "fmt"

// Identity Service: deterministic 128-bit stable keys for guards, traces,
// and blocks, ported from the mixing arithmetic the CIAM notes freeze
// (archived/ciam_ids.h in the reference project). Same input always
// produces the same key, regardless of AST traversal order.

const fnvOffset64 = uint64(1469598103934665603)
const fnvPrime64 = uint64(1099511628211)

func fnv1a64(b []byte) uint64 {
	h := fnvOffset64
	for _, c := range b {
		h ^= uint64(c)
		h *= fnvPrime64
	}
	return h
}

func fnv1a64String(s string) uint64 {
	return fnv1a64([]byte(s))
}

// StableSeed is derived once from the canonicalised source text and feeds
// every key computation in the compilation unit.
func StableSeed(canonicalSource string) uint64 {
	return fnv1a64String(canonicalSource)
}

// StableKey is the 128-bit deterministic identity, represented as two
// uint64 halves. Comparable with Less for sorted assignment.
type StableKey struct {
	Hi uint64
	Lo uint64
}

// Less orders keys the same way the reference mixing function does:
// hi first, then lo.
func (k StableKey) Less(o StableKey) bool {
	if k.Hi != o.Hi {
		return k.Hi < o.Hi
	}
	return k.Lo < o.Lo
}

func (k StableKey) Equal(o StableKey) bool {
	return k.Hi == o.Hi && k.Lo == o.Lo
}

// mixKey is the frozen, non-cryptographic mixing step. The constants are
// fixed points of the reference implementation and must never change —
// changing them would silently break byte-for-byte reproducibility of
// every downstream artifact.
func mixKey(a, b, c, d uint64) StableKey {
	return StableKey{
		Hi: (a * 0x9E3779B185EBCA87) ^ (c + 0xD6E8FEB86659FD93),
		Lo: (b * 0xC2B2AE3D27D4EB4F) ^ (d + 0x165667B19E3779F9),
	}
}

// RoleTag is a frozen 32-bit tag identifying the kind of CIAM artifact a
// key belongs to, spelled as an ASCII-packed four-letter code.
type RoleTag uint32

const (
	RoleGuard RoleTag = 0x47415244 // 'GARD'
	RoleTrace RoleTag = 0x54524143 // 'TRAC'
	RoleBlock RoleTag = 0x424C4B21 // 'BLK!'
)

// RoleTagGuard/RoleTagTrace/RoleTagBlock combine the base role with a
// 16-bit sub-kind, matching role_tag_guard/_trace/_block.
func RoleTagGuard(kind uint16) RoleTag { return RoleGuard ^ RoleTag(uint32(kind)<<16) }
func RoleTagTrace(kind uint16) RoleTag { return RoleTrace ^ RoleTag(uint32(kind)<<16) }
func RoleTagBlock(kind uint16) RoleTag { return RoleBlock ^ RoleTag(uint32(kind)<<16) }

// SymID identifies the enclosing procedure for key derivation.
type SymID uint32

// KeyFromLexicalPath is Layer 2: a key built from the lexical path
// (slot_kind, ordinal pairs folded to uint32s), resilient to reordering of
// unrelated code.
func KeyFromLexicalPath(seed uint64, fn SymID, path []uint32, ruleID uint32, role RoleTag) StableKey {
	h1 := seed ^ (uint64(fn) << 32) ^ uint64(ruleID)
	h2 := uint64(0xA5A5A5A5A5A5A5A5) ^ uint64(role)

	hp := fnvOffset64
	for _, x := range path {
		b := [4]byte{
			byte(x),
			byte(x >> 8),
			byte(x >> 16),
			byte(x >> 24),
		}
		hp ^= fnv1a64(b[:])
		hp *= fnvPrime64
	}

	return mixKey(h1, h2, hp, (uint64(fn)<<1)^seed)
}

// KeyFromSpanFallback is Layer 3: the least stable fallback, used only
// when no lexical path is available.
func KeyFromSpanFallback(seed uint64, fn SymID, sp Span, ruleID uint32, role RoleTag, neighborhoodHint uint64) StableKey {
	a := seed ^ (uint64(fn) << 32) ^ uint64(ruleID)
	b := (uint64(uint32(sp.Line)) << 32) ^ uint64(uint32(sp.Col))
	c := (uint64(uint32(sp.Len)) << 32) ^ uint64(role)
	d := neighborhoodHint ^ (uint64(fn) * 0x9E3779B185EBCA87)
	return mixKey(a, b, c, d)
}

// BestKeyForNode picks the strongest available layer: lexical path first,
// then a bare stable node id treated as a one-element path, then the span
// fallback.
func BestKeyForNode(seed uint64, fn SymID, ruleID uint32, role RoleTag, nodeID uint32, path []uint32, sp Span, neighborhoodHint uint64) StableKey {
	if len(path) != 0 {
		return KeyFromLexicalPath(seed, fn, path, ruleID, role)
	}
	if nodeID != 0 {
		return KeyFromLexicalPath(seed, fn, []uint32{nodeID}, ruleID, role)
	}
	return KeyFromSpanFallback(seed, fn, sp, ruleID, role, neighborhoodHint)
}

// IDCandidate is one not-yet-numbered CIAM artifact awaiting sorted
// assignment. All tiebreak fields must be deterministic across runs.
type IDCandidate struct {
	Key      StableKey
	Fn       SymID
	Where    Span
	RuleID   uint32
	Role     RoleTag
	NodeID   uint32
	Assigned uint32
}

// AssignIDsSorted sorts candidates by (key, then the full tiebreak chain)
// and assigns sequential ids starting at startAt. The sort — not insertion
// order — is the source of determinism.
func AssignIDsSorted(items []*IDCandidate, startAt uint32) {
	sortIDCandidates(items)
	next := startAt
	for _, it := range items {
		it.Assigned = next
		next++
	}
}

func sortIDCandidates(items []*IDCandidate) {
	// insertion sort would be fine for typical per-function candidate
	// counts, but the local stable merge sort (sortByLess) keeps the
	// worst case at O(n log n).
	less := func(a, b *IDCandidate) bool {
		if !a.Key.Equal(b.Key) {
			return a.Key.Less(b.Key)
		}
		if a.Fn != b.Fn {
			return a.Fn < b.Fn
		}
		if a.Where.Line != b.Where.Line {
			return a.Where.Line < b.Where.Line
		}
		if a.Where.Col != b.Where.Col {
			return a.Where.Col < b.Where.Col
		}
		if a.Where.Len != b.Where.Len {
			return a.Where.Len < b.Where.Len
		}
		if a.RuleID != b.RuleID {
			return a.RuleID < b.RuleID
		}
		if a.Role != b.Role {
			return a.Role < b.Role
		}
		return a.NodeID < b.NodeID
	}
	sortByLess(items, less)
}

// sortByLess is a small stable merge sort kept local so
// the tiebreak comparator above reads as one ordered chain rather than a
// sort.Slice closure capturing mutable state.
func sortByLess(items []*IDCandidate, less func(a, b *IDCandidate) bool) {
	n := len(items)
	if n < 2 {
		return
	}
	buf := make([]*IDCandidate, n)
	var merge func(lo, hi int)
	merge = func(lo, hi int) {
		if hi-lo < 2 {
			return
		}
		mid := (lo + hi) / 2
		merge(lo, mid)
		merge(mid, hi)
		i, j, k := lo, mid, lo
		for i < mid && j < hi {
			if less(items[j], items[i]) {
				buf[k] = items[j]
				j++
			} else {
				buf[k] = items[i]
				i++
			}
			k++
		}
		for i < mid {
			buf[k] = items[i]
			i++
			k++
		}
		for j < hi {
			buf[k] = items[j]
			j++
			k++
		}
		copy(items[lo:hi], buf[lo:hi])
	}
	merge(0, n)
}

// BlockCandidate is one not-yet-numbered basic block awaiting sorted
// assignment of its index within the procedure.
type BlockCandidate struct {
	Key         StableKey
	Fn          SymID
	EntrySpan   Span
	AssignedBB  uint32
}

// AssignBlockIDsSorted sorts blocks by (key, fn, entry span) and assigns
// sequential indices starting at 0.
func AssignBlockIDsSorted(blocks []*BlockCandidate) {
	n := len(blocks)
	if n < 2 {
		for i, b := range blocks {
			b.AssignedBB = uint32(i)
		}
		return
	}
	less := func(a, b *BlockCandidate) bool {
		if !a.Key.Equal(b.Key) {
			return a.Key.Less(b.Key)
		}
		if a.Fn != b.Fn {
			return a.Fn < b.Fn
		}
		if a.EntrySpan.Line != b.EntrySpan.Line {
			return a.EntrySpan.Line < b.EntrySpan.Line
		}
		if a.EntrySpan.Col != b.EntrySpan.Col {
			return a.EntrySpan.Col < b.EntrySpan.Col
		}
		return a.EntrySpan.Len < b.EntrySpan.Len
	}
	buf := make([]*BlockCandidate, n)
	var merge func(lo, hi int)
	merge = func(lo, hi int) {
		if hi-lo < 2 {
			return
		}
		mid := (lo + hi) / 2
		merge(lo, mid)
		merge(mid, hi)
		i, j, k := lo, mid, lo
		for i < mid && j < hi {
			if less(blocks[j], blocks[i]) {
				buf[k] = blocks[j]
				j++
			} else {
				buf[k] = blocks[i]
				i++
			}
			k++
		}
		for i < mid {
			buf[k] = blocks[i]
			i++
			k++
		}
		for j < hi {
			buf[k] = blocks[j]
			j++
			k++
		}
		copy(blocks[lo:hi], buf[lo:hi])
	}
	merge(0, n)
	for i, b := range blocks {
		b.AssignedBB = uint32(i)
	}
}

// AssignGuardIdentities walks every procedure's MMIO read/write sites and
// computes a stable label identity for each one's alignment/bounds-check
// branch targets, keyed by the statement's AST node id. Codegen uses this
// instead of the per-function freshLabel counter for MMIO guards, so an
// unrelated edit elsewhere in the same procedure does not shift the
// label names a guard emits — the whole point of building on lexical
// paths rather than traversal order.
func AssignGuardIdentities(prog *Program, seed uint64) map[uint32]StableKey {
	keys := make(map[uint32]StableKey)
	var fn SymID
	for _, proc := range prog.Procs {
		fn++
		var walk func(s Stmt)
		walk = func(s Stmt) {
			switch n := s.(type) {
			case *MMIOReadStmt:
				path := LexicalPathWords(LexicalPath(n))
				keys[n.ID] = BestKeyForNode(seed, fn, 1, RoleTagGuard(1), n.ID, path, n.Sp, 0)
			case *MMIOWriteStmt:
				path := LexicalPathWords(LexicalPath(n))
				keys[n.ID] = BestKeyForNode(seed, fn, 1, RoleTagGuard(2), n.ID, path, n.Sp, 0)
			case *BlockStmt:
				for _, st := range n.Stmts {
					walk(st)
				}
			}
		}
		walk(proc.Body)
	}
	return keys
}

// guardLabelName renders a guard identity key into the label-name space
// codegen's fixup table uses, distinct from the L<n> sequential scheme
// so the two never collide.
func guardLabelName(key StableKey, suffix string) string {
	return fmt.Sprintf("guard$%016x%016x$%s", key.Hi, key.Lo, suffix)
}
