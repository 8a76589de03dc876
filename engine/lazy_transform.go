package engine

import "github.com/tiendc/go-deepcopy"

// transformKind distinguishes the structural operations LazyTransformService
// tracks.
type transformKind uint8

const (
	transformAddRows transformKind = iota
	transformRemoveRows
	transformAddColumns
	transformRemoveColumns
)

// transformRecord is one versioned structural edit. Records accumulate in
// order; a vertex "catches up" by replaying every record past whatever
// version its own AST was last rewritten against.
type transformRecord struct {
	kind  transformKind
	sheet uint32
	at    uint32
	count uint32
}

// LazyTransformService is C9: eager structural transforms (transform.go)
// already reshape the address/range/matrix/named-range mappings
// immediately, because that bookkeeping is cheap. What is NOT cheap is
// walking every formula in the workbook to fix up its absolute cell
// references — most formulas shift in lockstep with their operands and
// need no change at all. This service instead records each transform once
// and rewrites a formula's AST lazily, the next time that formula is about
// to be evaluated, and only the formulas that actually observe a stale
// absolute reference pay the rewrite cost.
//
// Because the template cache (C5) lets many cells share one *ParseResult
// (and therefore one AST pointer), catching a vertex up can never mutate
// the shared AST in place: doing so would also rewrite every other cell
// still using that template, at whatever version they happen to be at.
// Each catch-up instead forks the AST with go-deepcopy before rewriting,
// trading a full-subtree clone for the complexity of a minimal persistent
// tree update — simpler to get right without being able to run the code.
type LazyTransformService struct {
	graph   *DependencyGraph
	records []transformRecord
	applied map[VertexID]int // vertex id -> count of records already applied
}

func NewLazyTransformService(graph *DependencyGraph) *LazyTransformService {
	return &LazyTransformService{graph: graph, applied: make(map[VertexID]int)}
}

// Enqueue records a structural transform for later lazy application.
// transform.go calls this alongside its own eager mapping updates.
func (s *LazyTransformService) Enqueue(kind transformKind, sheet, at, count uint32) {
	s.records = append(s.records, transformRecord{kind: kind, sheet: sheet, at: at, count: count})
}

// ForceApplyPostponedTransformations rewrites every formula vertex's AST
// against every outstanding record immediately (spec §6's
// forceApplyPostponedTransformations), instead of waiting for each to be
// evaluated individually.
func (s *LazyTransformService) ForceApplyPostponedTransformations() {
	if len(s.records) == 0 {
		return
	}
	for id, v := range s.graph.vertices {
		if v.Kind == VertexKindFormula || v.Kind == VertexKindMatrix {
			s.CatchUp(id)
		}
	}
}

// CatchUp replays every record the vertex hasn't seen yet against its AST,
// forking it first if there is anything to apply.
func (s *LazyTransformService) CatchUp(id VertexID) {
	v := s.graph.vertices[id]
	if v == nil || v.Formula == nil {
		return
	}
	from := s.applied[id]
	if from >= len(s.records) {
		return
	}

	forked := forkAST(v.Formula.AST)
	for _, rec := range s.records[from:] {
		rewriteAST(forked, rec)
	}

	v.Formula = &ParseResult{
		AST:                forked,
		Dependencies:       extractDependencies(forked, v.Address),
		Hash:               v.Formula.Hash,
		RegexHash:          v.Formula.RegexHash,
		Volatile:           containsVolatileCall(forked),
		StructureSensitive: containsStructureSensitiveCall(forked),
	}
	s.applied[id] = len(s.records)
	s.graph.processCellDependencies(id, v.Formula.Dependencies)
}

// forkAST deep-copies an AST subtree so in-place rewriting never touches a
// template shared with other cells through the parser cache.
func forkAST(node ASTNode) ASTNode {
	var dst ASTNode
	if err := deepcopy.Copy(&dst, node); err != nil || dst == nil {
		return node
	}
	return dst
}

// rewriteAST walks node, adjusting every absolute cell/range reference
// affected by rec. Relative references are left untouched: a formula cell
// and the operand it relatively addresses shift together under the eager
// address-mapping pass, so their stored offset stays correct by
// construction (spec §3's per-axis relative/absolute rule) — only
// references pinned to an absolute row or column, or pinned across sheets,
// can actually go stale here.
func rewriteAST(node ASTNode, rec transformRecord) {
	switch n := node.(type) {
	case *CellRefNode:
		rewriteCellRef(n, rec)
	case *RangeRefNode:
		rewriteCellRef(&n.Start, rec)
		rewriteCellRef(&n.End, rec)
	case *BinaryOpNode:
		rewriteAST(n.Left, rec)
		rewriteAST(n.Right, rec)
	case *UnaryOpNode:
		rewriteAST(n.Operand, rec)
	case *FunctionCallNode:
		for _, a := range n.Args {
			rewriteAST(a, rec)
		}
	}
}

func rewriteCellRef(n *CellRefNode, rec transformRecord) {
	if n.WorksheetExplicit && n.WorksheetID != rec.sheet {
		return
	}
	switch rec.kind {
	case transformAddRows:
		if n.AbsRow && n.Row >= int64(rec.at) {
			n.Row += int64(rec.count)
		}
	case transformRemoveRows:
		if n.AbsRow {
			band := int64(rec.at) + int64(rec.count)
			switch {
			case n.Row >= int64(rec.at) && n.Row < band:
				n.Row = -1 // dangles: absolute() will report invalid, Eval yields #REF!
			case n.Row >= band:
				n.Row -= int64(rec.count)
			}
		}
	case transformAddColumns:
		if n.AbsCol && n.Col >= int64(rec.at) {
			n.Col += int64(rec.count)
		}
	case transformRemoveColumns:
		if n.AbsCol {
			band := int64(rec.at) + int64(rec.count)
			switch {
			case n.Col >= int64(rec.at) && n.Col < band:
				n.Col = -1
			case n.Col >= band:
				n.Col -= int64(rec.count)
			}
		}
	}
}
