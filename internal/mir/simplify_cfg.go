package mir

import (
	"fmt"

	"fortio.org/safecast"
)

// SimplifyCFG threads branches through empty goto blocks, then drops the
// blocks that are no longer reachable and renumbers the rest in order.
// Destructor bodies are emitted with one block per phase, so most of the
// blocks it removes are phase joins that ended up empty.
func SimplifyCFG(f *Func) {
	if f == nil || len(f.Blocks) == 0 {
		return
	}
	forward := forwardingTargets(f)
	if len(forward) > 0 {
		resolve := func(id BlockID) BlockID {
			if to, ok := forward[id]; ok {
				return to
			}
			return id
		}
		for i := range f.Blocks {
			f.Blocks[i].Term.redirect(resolve)
		}
		f.Entry = resolve(f.Entry)
	}
	compactBlocks(f, computeReachability(f))
}

// isForwarder reports whether id holds nothing but a goto.
func isForwarder(f *Func, id BlockID) bool {
	if id < 0 || int(id) >= len(f.Blocks) {
		return false
	}
	bb := &f.Blocks[id]
	return len(bb.Instrs) == 0 && bb.Term.Kind == TermGoto
}

// forwardingTargets maps every forwarder to the first non-forwarder its
// goto chain reaches. Chains that loop back on themselves are left alone.
func forwardingTargets(f *Func) map[BlockID]BlockID {
	out := make(map[BlockID]BlockID)
	for i := range f.Blocks {
		start := f.Blocks[i].ID
		if !isForwarder(f, start) {
			continue
		}
		seen := map[BlockID]bool{start: true}
		to := f.Blocks[start].Term.Goto.Target
		for isForwarder(f, to) && !seen[to] {
			seen[to] = true
			to = f.Blocks[to].Term.Goto.Target
		}
		if isForwarder(f, to) {
			// cycle of empty blocks
			continue
		}
		out[start] = to
	}
	return out
}

// computeReachability marks the blocks reachable from the entry.
func computeReachability(f *Func) []bool {
	live := make([]bool, len(f.Blocks))
	work := []BlockID{f.Entry}
	for len(work) > 0 {
		id := work[len(work)-1]
		work = work[:len(work)-1]
		if id < 0 || int(id) >= len(f.Blocks) || live[id] {
			continue
		}
		live[id] = true
		work = append(work, f.Blocks[id].Term.Successors()...)
	}
	return live
}

// compactBlocks keeps the live blocks in their original order, renumbers
// them densely and rewrites every block reference. Values defined in a
// dropped block lose their block.
func compactBlocks(f *Func, live []bool) {
	renum := make([]BlockID, len(f.Blocks))
	kept := f.Blocks[:0:0]
	for i := range f.Blocks {
		if !live[i] {
			renum[i] = NoBlockID
			continue
		}
		renum[i] = blockIndex(len(kept))
		kept = append(kept, f.Blocks[i])
	}
	remap := func(id BlockID) BlockID {
		if id < 0 || int(id) >= len(renum) {
			return NoBlockID
		}
		return renum[id]
	}
	for i := range kept {
		kept[i].ID = blockIndex(i)
		kept[i].Term.redirect(remap)
	}
	for i := range f.Values {
		if v := &f.Values[i]; v.Block != NoBlockID {
			v.Block = remap(v.Block)
		}
	}
	f.Blocks = kept
	f.Entry = remap(f.Entry)
	for _, p := range f.Params {
		f.Values[p].Block = f.Entry
	}
}

func blockIndex(i int) BlockID {
	n, err := safecast.Conv[int32](i)
	if err != nil {
		panic(fmt.Errorf("block table overflow: %w", err))
	}
	return BlockID(n)
}
