package engine

import (
	"fmt"

	"github.com/rtiangha/dynarmic/internal/armcond"
	"github.com/rtiangha/dynarmic/internal/decoder"
	"github.com/rtiangha/dynarmic/internal/frontend"
	"github.com/rtiangha/dynarmic/internal/ir"
	"github.com/rtiangha/dynarmic/internal/loc"
	"github.com/rtiangha/dynarmic/internal/optimizer"
	"github.com/rtiangha/dynarmic/internal/telemetry"
)

// compile runs the full per-block pipeline of §2's diagram starting at
// desc: decode+lift (§4.1/§4.2), the optimizer passes (§4.3), host code
// emission (§4.4/§4.5), and registration in the BlockCache (§4.7).
func (e *Engine) compile(desc loc.Descriptor) (BlockDescriptor, error) {
	id := e.nextBlockID
	e.nextBlockID++

	blk, cond, err := e.lift(id, desc)
	if err != nil {
		return BlockDescriptor{}, err
	}
	blk.CycleCost = uint32(blk.NumInsts())

	optimizer.Run(blk, e.optCfg, cond)

	res, err := e.machine.CompileBlock(blk, e.info, e.cbAddrs)
	if err != nil {
		return BlockDescriptor{}, fmt.Errorf("engine: compiling %s: %w", desc, err)
	}

	if err := e.arena.EnableWriting(); err != nil {
		return BlockDescriptor{}, err
	}
	entrypoint, appendErr := e.arena.Append(res.Code)
	if err := e.arena.DisableWriting(); err != nil && appendErr == nil {
		appendErr = err
	}
	if appendErr != nil {
		return BlockDescriptor{}, appendErr
	}

	if err := e.cache.Add(desc, entrypoint, len(res.Code), blk.PCRangeLo, blk.PCRangeHi, res); err != nil {
		return BlockDescriptor{}, err
	}

	if e.log != nil {
		e.log.Debug("engine: compiled block",
			telemetry.Field{Key: "descriptor", Value: desc.String()},
			telemetry.Field{Key: "instructions", Value: blk.NumInsts()},
			telemetry.Field{Key: "bytes", Value: len(res.Code)},
		)
	}
	return BlockDescriptor{Entrypoint: entrypoint, Size: len(res.Code)}, nil
}

// lift decodes and lifts guest instructions starting at desc until the
// lifter reports Done, dispatching to the A32, Thumb, or A64 visitor
// implementation per desc's ISA/Thumb bits. Instruction words are fetched
// directly through the embedder's memory-read callbacks, in Go, at compile
// time (§5: compilation always runs on the calling goroutine, never in
// emitted code).
func (e *Engine) lift(id ir.BlockID, desc loc.Descriptor) (*ir.Block, armcond.Code, error) {
	switch {
	case desc.ISA() == loc.A64:
		l := frontend.NewA64Lifter(id, desc)
		for !l.Done() {
			word := e.fetch32(l.PC())
			decoder.A64Table.Lookup(word)(l, word)
		}
		return l.Block(), armcond.AL, nil
	case desc.Thumb():
		l := frontend.NewThumbLifter(id, desc)
		for !l.Done() {
			hw := e.fetch16(l.PC())
			decoder.ThumbTable.Lookup(hw)(l, hw)
		}
		return l.Block(), l.BlockCondition(), nil
	default:
		l := frontend.NewA32Lifter(id, desc)
		for !l.Done() {
			word := e.fetch32(l.PC())
			decoder.A32Table.Lookup(word)(l, word)
		}
		return l.Block(), l.BlockCondition(), nil
	}
}

func (e *Engine) fetch32(addr uint64) uint32 {
	if e.cb.MemoryRead32 == nil {
		return 0
	}
	return e.cb.MemoryRead32(addr)
}

func (e *Engine) fetch16(addr uint64) uint16 {
	if e.cb.MemoryRead16 == nil {
		return 0
	}
	return e.cb.MemoryRead16(addr)
}
