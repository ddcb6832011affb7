package main

// Lexical path contract: every AST node carries a stable structural
// identity — (parent, slot kind, ordinal) — derived from lexical source
// order rather than AST-construction order, so the Identity Service's
// Layer 2 keys are resilient to unrelated code moving around. Ported from
// the reference project's lexpath contract header, trimmed to the slot
// kinds this grammar's node set actually produces.

// SlotKind names the role a child plays under its parent. Values are
// frozen once assigned a meaning: adding a new slot kind must not reuse a
// retired number, since stable keys are derived from it.
type SlotKind uint16

const (
	SlotFileItems SlotKind = iota + 1
	SlotProcParams
	SlotProcBody
	SlotBlockStmts
	SlotLetValue
	SlotAssignLHS
	SlotAssignRHS
	SlotReturnExpr
	SlotCallCallee
	SlotCallArgs
	SlotUnaryArg
	SlotBinaryLHS
	SlotBinaryRHS
	SlotBranchCond
	SlotBranchTargets
	SlotMMIORegionAddr
	SlotMMIORegionSize
	SlotMMIOTargetVar
	SlotMMIOAddrExpr
	SlotMMIOValueExpr
	SlotLabelName
	SlotTrapCode
	SlotTernaryCond
	SlotTernaryTrue
	SlotTernaryFalse
	SlotCallIntoSlotArgs
)

// LexPathStep is one (slot, ordinal) hop in a path from the procedure
// root to a node.
type LexPathStep struct {
	Slot    SlotKind
	Ordinal uint32
}

// lexChild is the minimal shape ordinal assignment needs from a node:
// its byte position for ordering and its node id as the final tiebreak.
type lexChild struct {
	ByteOffset uint32
	ByteLen    uint32
	NodeID     uint32
}

// AssignOrdinals implements the exact rule from the lexical path
// contract: ordinal(C) = rank of C in children sorted by
// (byte_offset asc, byte_len desc, node_id asc). Insertion order into
// children is irrelevant; only this sort determines ordinals.
func AssignOrdinals(children []lexChild) []uint32 {
	n := len(children)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	less := func(a, b int) bool {
		ca, cb := children[a], children[b]
		if ca.ByteOffset != cb.ByteOffset {
			return ca.ByteOffset < cb.ByteOffset
		}
		if ca.ByteLen != cb.ByteLen {
			return ca.ByteLen > cb.ByteLen
		}
		return ca.NodeID < cb.NodeID
	}
	// insertion sort: child lists per slot are small (params, statements,
	// call args), so O(n^2) worst case is not a concern and the
	// comparator stays easy to audit against the contract text.
	for i := 1; i < n; i++ {
		j := i
		for j > 0 && less(idx[j], idx[j-1]) {
			idx[j], idx[j-1] = idx[j-1], idx[j]
			j--
		}
	}
	ordinals := make([]uint32, n)
	for rank, original := range idx {
		ordinals[original] = uint32(rank)
	}
	return ordinals
}

// LexicalPath climbs a node's parent chain, returning the path in
// root-first order. Nodes must already carry their own (slot, ordinal)
// from ordinal assignment at construction time.
func LexicalPath(n Node) []LexPathStep {
	var steps []LexPathStep
	for cur := n; cur != nil; {
		meta := cur.Meta()
		if meta.Parent == nil {
			break
		}
		steps = append(steps, LexPathStep{Slot: meta.Slot, Ordinal: meta.Ordinal})
		cur = meta.Parent
	}
	// reverse to root-first order
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return steps
}

// LexicalPathWords folds a path into the uint32 sequence
// KeyFromLexicalPath expects: each step packed with the slot in the high
// 16 bits and the ordinal's low 16 bits in the low half, so distinct
// slot/ordinal pairs never collide while ordinals stay below 65536.
func LexicalPathWords(path []LexPathStep) []uint32 {
	words := make([]uint32, len(path))
	for i, s := range path {
		words[i] = (uint32(s.Slot) << 16) | (s.Ordinal & 0xFFFF)
	}
	return words
}
