package main

// OptimizationPass mirrors the teacher's driver pattern: each pass
// reports whether it changed anything, and the driver reruns every pass
// until a full round makes no further changes (fixed point), rather than
// running each pass exactly once.
type OptimizationPass interface {
	Name() string
	Run(fn *IRFunction) bool
}

// OptimizeProgram drives every registered pass to a fixed point per
// function, independently — a function that stabilises early does not
// hold up optimisation of the rest of the program.
func OptimizeProgram(prog *IRProgram, level int) {
	if level <= 0 {
		return
	}
	passes := []OptimizationPass{
		&peepholeCoalesce{},
		&deadCodeElimination{},
	}
	for _, fn := range prog.Funcs {
		runToFixedPoint(fn, passes)
	}
}

func runToFixedPoint(fn *IRFunction, passes []OptimizationPass) {
	for {
		changed := false
		for _, p := range passes {
			if p.Run(fn) {
				changed = true
			}
		}
		if !changed {
			return
		}
	}
}

// peepholeCoalesce rewrites every operand, anywhere in the function,
// that reads a temp defined by exactly one MOVE so that it reads the
// MOVE's source directly, and turns a MOVE-to-self into a no-op by
// clearing its destination.
type peepholeCoalesce struct{}

func (p *peepholeCoalesce) Name() string { return "peephole-coalesce" }

func (p *peepholeCoalesce) Run(fn *IRFunction) bool {
	changed := false
	// build a map of temp -> its single defining MOVE source, when that
	// temp is defined by exactly one MOVE and never redefined elsewhere.
	moveSrc := make(map[int]int)
	defCount := make(map[int]int)
	for _, inst := range fn.Insts {
		if inst.Dst != noTemp {
			defCount[inst.Dst]++
		}
	}
	for _, inst := range fn.Insts {
		if inst.Op == OpMove && defCount[inst.Dst] == 1 {
			moveSrc[inst.Dst] = inst.A
		}
	}
	for i := range fn.Insts {
		in := &fn.Insts[i]
		if in.Op == OpMove && in.Dst == in.A {
			in.Dst = noTemp
			changed = true
			continue
		}
		if in.A != noTemp {
			if src, ok := moveSrc[in.A]; ok && src != in.A {
				in.A = src
				changed = true
			}
		}
		if in.B != noTemp {
			if src, ok := moveSrc[in.B]; ok && src != in.B {
				in.B = src
				changed = true
			}
		}
	}
	return changed
}

// deadCodeElimination removes instructions whose destination temp is
// never read and that have no side effect, iterating to a fixed point:
// removing one dead instruction can make another's only use disappear.
type deadCodeElimination struct{}

func (d *deadCodeElimination) Name() string { return "dead-code-elimination" }

func hasSideEffect(op Opcode) bool {
	switch op {
	case OpCall, OpRet, OpPrintInt, OpPrintStr, OpMMIORead, OpMMIOWrite, OpTrap, OpHalt, OpLabel, OpJmp, OpJmpIfZero, OpSlotStore:
		return true
	default:
		return false
	}
}

func (d *deadCodeElimination) Run(fn *IRFunction) bool {
	used := make(map[int]bool)
	for _, t := range fn.ParamTemp {
		_ = t // params are not a "use" by themselves
	}
	for _, inst := range fn.Insts {
		if inst.A != noTemp {
			used[inst.A] = true
		}
		if inst.B != noTemp {
			used[inst.B] = true
		}
		for _, a := range inst.ArgTemps {
			used[a] = true
		}
	}
	kept := fn.Insts[:0]
	changed := false
	for _, inst := range fn.Insts {
		if !hasSideEffect(inst.Op) && (inst.Dst == noTemp || !used[inst.Dst]) {
			changed = true
			continue
		}
		kept = append(kept, inst)
	}
	fn.Insts = kept
	return changed
}
