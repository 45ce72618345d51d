package bytecode

import (
	"encoding/binary"

	"fortio.org/safecast"

	"github.com/chazu/crunch/pkg/fault"
	"github.com/chazu/crunch/pkg/value"
)

// BytecodeVersion is the current program format version.
// Increment when making incompatible changes to the format.
const BytecodeVersion uint16 = 1

// Magic bytes for program files: "CRNC"
var BytecodeMagic = []byte{'C', 'R', 'N', 'C'}

// headerLen is magic + version + flags.
const headerLen = 8

type constTag uint8

const (
	tagNone constTag = iota
	tagBool
	tagInt
	tagPointer
	tagString
)

func tagOf(v value.Value) constTag {
	switch v.Kind() {
	case value.KindBool:
		return tagBool
	case value.KindInt:
		return tagInt
	case value.KindPointer:
		return tagPointer
	case value.KindString:
		return tagString
	default:
		return tagNone
	}
}

// constantPool deduplicates the out of line operands of a program.
type constantPool struct {
	values []value.Value
	index  map[value.Value]uint16
}

func newConstantPool() *constantPool {
	return &constantPool{index: make(map[value.Value]uint16)}
}

func (p *constantPool) add(v value.Value) (uint16, error) {
	if idx, ok := p.index[v]; ok {
		return idx, nil
	}
	idx, err := safecast.Convert[uint16](len(p.values))
	if err != nil {
		return 0, fault.Newf(fault.BytecodeError, "constant pool is full (%d entries)", len(p.values))
	}
	p.values = append(p.values, v)
	p.index[v] = idx
	return idx, nil
}

// Encode serializes a program: main followed by the auxiliary functions.
//
// Format:
//
//	[magic:4] [version:2] [flags:2]
//	[function_count:4] ([instruction_count:4] [instructions:8*n])...
//	[constant_count:4] ([tag:1] [payload])...
func Encode(main []Instruction, others [][]Instruction) ([]byte, error) {
	functions := make([][]Instruction, 0, len(others)+1)
	functions = append(functions, main)
	functions = append(functions, others...)

	size := headerLen + 8
	for _, fn := range functions {
		size += 4 + len(fn)*InstructionLength
	}
	buf := make([]byte, 0, size)

	buf = append(buf, BytecodeMagic...)
	buf = binary.BigEndian.AppendUint16(buf, BytecodeVersion)
	buf = binary.BigEndian.AppendUint16(buf, 0)

	count, err := safecast.Convert[uint32](len(functions))
	if err != nil {
		return nil, fault.Newf(fault.BytecodeError, "too many functions: %d", len(functions))
	}
	buf = binary.BigEndian.AppendUint32(buf, count)

	pool := newConstantPool()
	for fi, fn := range functions {
		n, err := safecast.Convert[uint32](len(fn))
		if err != nil {
			return nil, fault.Newf(fault.BytecodeError, "function %d has too many instructions: %d", fi, len(fn))
		}
		buf = binary.BigEndian.AppendUint32(buf, n)

		for pc, inst := range fn {
			encoded, err := encodeInstruction(inst, pool)
			if err != nil {
				return nil, fault.Newf(fault.BytecodeError, "function %d, instruction %04d: %s", fi, pc, message(err))
			}
			buf = append(buf, encoded[:]...)
		}
	}

	buf = binary.BigEndian.AppendUint32(buf, uint32(len(pool.values)))
	for _, v := range pool.values {
		buf = appendConstant(buf, v)
	}
	return buf, nil
}

func encodeInstruction(inst Instruction, pool *constantPool) ([InstructionLength]byte, error) {
	var b [InstructionLength]byte
	if err := inst.Validate(); err != nil {
		return b, err
	}
	b[0] = byte(inst.Op)

	switch inst.Op {
	case OpLoad:
		b[1] = byte(inst.Regs[0])
		tag := tagOf(inst.Value)
		b[2] = byte(tag)

		var arg uint32
		switch tag {
		case tagBool:
			if inst.Value.AsBool() {
				arg = 1
			}
		case tagInt:
			arg = uint32(inst.Value.AsInt())
		case tagPointer, tagString:
			idx, err := pool.add(inst.Value)
			if err != nil {
				return b, err
			}
			arg = uint32(idx)
		}
		binary.BigEndian.PutUint32(b[4:], arg)

	case OpCache:
		b[1] = byte(inst.Regs[0])
		binary.BigEndian.PutUint32(b[2:], inst.Loc)
		idx, err := pool.add(inst.Value)
		if err != nil {
			return b, err
		}
		binary.BigEndian.PutUint16(b[6:], idx)

	case OpSave:
		b[1] = byte(inst.Regs[0])
		binary.BigEndian.PutUint32(b[2:], inst.Loc)

	case OpDrop:
		binary.BigEndian.PutUint32(b[2:], inst.Loc)

	case OpCompare:
		b[1] = byte(inst.Cmp)
		b[2] = byte(inst.Regs[0])
		b[3] = byte(inst.Regs[1])

	case OpJump, OpJumpComp:
		binary.BigEndian.PutUint32(b[4:], uint32(inst.Offset))

	case OpJumpPoint, OpFunc:
		binary.BigEndian.PutUint32(b[4:], inst.Loc)

	case OpSyscall:
		b[1] = inst.Table
		for i, r := range inst.Regs {
			b[2+i] = byte(r)
		}

	default:
		for i := 0; i < GetOpcodeInfo(inst.Op).RegCount; i++ {
			b[1+i] = byte(inst.Regs[i])
		}
	}
	return b, nil
}

func appendConstant(buf []byte, v value.Value) []byte {
	tag := tagOf(v)
	buf = append(buf, byte(tag))

	switch tag {
	case tagBool:
		if v.AsBool() {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	case tagInt:
		buf = binary.BigEndian.AppendUint32(buf, uint32(v.AsInt()))
	case tagPointer:
		buf = binary.BigEndian.AppendUint64(buf, v.AsPointer())
	case tagString:
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(v.AsString())))
		buf = append(buf, v.AsString()...)
	}
	return buf
}

// reader walks an encoded program, failing with a BytecodeError on truncation.
type reader struct {
	data []byte
	pos  int
}

func (r *reader) take(n int, what string) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.data) || r.pos+n < r.pos {
		return nil, fault.Newf(fault.BytecodeError, "unexpected end of bytecode reading %s at pos %d", what, r.pos)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) u8(what string) (uint8, error) {
	b, err := r.take(1, what)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) u32(what string) (uint32, error) {
	b, err := r.take(4, what)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *reader) u64(what string) (uint64, error) {
	b, err := r.take(8, what)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// Decode parses an encoded program into main and the auxiliary functions.
// The whole input must be consumed.
func Decode(data []byte) ([]Instruction, [][]Instruction, error) {
	if len(data) < headerLen {
		return nil, nil, fault.Newf(fault.BytecodeError, "bytecode too short: need at least %d bytes, got %d", headerLen, len(data))
	}
	if string(data[0:4]) != string(BytecodeMagic) {
		return nil, nil, fault.Newf(fault.BytecodeError, "invalid bytecode magic: expected %q, got %q", BytecodeMagic, data[0:4])
	}
	if version := binary.BigEndian.Uint16(data[4:6]); version > BytecodeVersion {
		return nil, nil, fault.Newf(fault.BytecodeError, "bytecode version %d is newer than supported version %d", version, BytecodeVersion)
	}

	r := &reader{data: data, pos: headerLen}

	count, err := r.u32("function count")
	if err != nil {
		return nil, nil, err
	}
	if count == 0 {
		return nil, nil, fault.New(fault.MissingMain, "program contains no functions")
	}

	// Bodies reference the constant pool, which follows them.
	bodies := make([][]byte, 0, min(int(count), len(data)/4))
	for i := uint32(0); i < count; i++ {
		n, err := r.u32("instruction count")
		if err != nil {
			return nil, nil, err
		}
		body, err := r.take(int(n)*InstructionLength, "function body")
		if err != nil {
			return nil, nil, err
		}
		bodies = append(bodies, body)
	}

	constants, err := decodeConstants(r)
	if err != nil {
		return nil, nil, err
	}
	if r.pos != len(data) {
		return nil, nil, fault.Newf(fault.BytecodeError, "%d trailing bytes after program", len(data)-r.pos)
	}

	functions := make([][]Instruction, len(bodies))
	for fi, body := range bodies {
		fn := make([]Instruction, 0, len(body)/InstructionLength)
		for off := 0; off < len(body); off += InstructionLength {
			inst, err := decodeInstruction(body[off:off+InstructionLength], constants)
			if err != nil {
				return nil, nil, fault.Newf(fault.BytecodeError, "function %d, instruction %04d: %s", fi, off/InstructionLength, message(err))
			}
			fn = append(fn, inst)
		}
		functions[fi] = fn
	}
	return functions[0], functions[1:], nil
}

func decodeConstants(r *reader) ([]value.Value, error) {
	count, err := r.u32("constant count")
	if err != nil {
		return nil, err
	}

	constants := make([]value.Value, 0, min(int(count), len(r.data)-r.pos))
	for i := uint32(0); i < count; i++ {
		tag, err := r.u8("constant tag")
		if err != nil {
			return nil, err
		}

		switch constTag(tag) {
		case tagNone:
			constants = append(constants, value.NoneValue())
		case tagBool:
			b, err := r.u8("bool constant")
			if err != nil {
				return nil, err
			}
			if b > 1 {
				return nil, fault.Newf(fault.BytecodeError, "constant %d: invalid bool byte %d", i, b)
			}
			constants = append(constants, value.Bool(b == 1))
		case tagInt:
			n, err := r.u32("int constant")
			if err != nil {
				return nil, err
			}
			constants = append(constants, value.Int(int32(n)))
		case tagPointer:
			p, err := r.u64("pointer constant")
			if err != nil {
				return nil, err
			}
			constants = append(constants, value.Pointer(p))
		case tagString:
			n, err := r.u32("string constant length")
			if err != nil {
				return nil, err
			}
			s, err := r.take(int(n), "string constant")
			if err != nil {
				return nil, err
			}
			constants = append(constants, value.String(string(s)))
		default:
			return nil, fault.Newf(fault.BytecodeError, "constant %d: invalid tag %d", i, tag)
		}
	}
	return constants, nil
}

func decodeInstruction(b []byte, constants []value.Value) (Instruction, error) {
	op := Opcode(b[0])
	if !op.Valid() {
		return Instruction{}, fault.Newf(fault.BytecodeError, "invalid instruction header 0x%02X", b[0])
	}

	constant := func(idx uint32, want constTag) (value.Value, error) {
		if int64(idx) >= int64(len(constants)) {
			return value.Value{}, fault.Newf(fault.BytecodeError, "constant %d out of range (%d constants)", idx, len(constants))
		}
		v := constants[idx]
		if want != tagNone && tagOf(v) != want {
			return value.Value{}, fault.Newf(fault.BytecodeError, "constant %d is a %s, expected tag %d", idx, v.Kind(), want)
		}
		return v, nil
	}

	inst := Instruction{Op: op}
	switch op {
	case OpLoad:
		inst.Regs[0] = Register(b[1])
		arg := binary.BigEndian.Uint32(b[4:])
		switch tag := constTag(b[2]); tag {
		case tagNone:
		case tagBool:
			if arg > 1 {
				return Instruction{}, fault.Newf(fault.BytecodeError, "invalid inline bool %d", arg)
			}
			inst.Value = value.Bool(arg == 1)
		case tagInt:
			inst.Value = value.Int(int32(arg))
		case tagPointer, tagString:
			v, err := constant(arg, tag)
			if err != nil {
				return Instruction{}, err
			}
			inst.Value = v
		default:
			return Instruction{}, fault.Newf(fault.BytecodeError, "invalid load tag %d", tag)
		}

	case OpCache:
		inst.Regs[0] = Register(b[1])
		inst.Loc = binary.BigEndian.Uint32(b[2:])
		v, err := constant(uint32(binary.BigEndian.Uint16(b[6:])), tagNone)
		if err != nil {
			return Instruction{}, err
		}
		inst.Value = v

	case OpSave:
		inst.Regs[0] = Register(b[1])
		inst.Loc = binary.BigEndian.Uint32(b[2:])

	case OpDrop:
		inst.Loc = binary.BigEndian.Uint32(b[2:])

	case OpCompare:
		inst.Cmp = Comparator(b[1])
		inst.Regs[0] = Register(b[2])
		inst.Regs[1] = Register(b[3])

	case OpJump, OpJumpComp:
		inst.Offset = int32(binary.BigEndian.Uint32(b[4:]))

	case OpJumpPoint, OpFunc:
		inst.Loc = binary.BigEndian.Uint32(b[4:])

	case OpSyscall:
		inst.Table = b[1]
		for i := range inst.Regs {
			inst.Regs[i] = Register(b[2+i])
		}

	default:
		for i := 0; i < GetOpcodeInfo(op).RegCount; i++ {
			inst.Regs[i] = Register(b[1+i])
		}
	}

	if err := inst.Validate(); err != nil {
		return Instruction{}, err
	}
	return inst, nil
}

// message strips the kind prefix from a fault so it can be rewrapped with
// position information.
func message(err error) string {
	if f, ok := err.(*fault.Error); ok {
		return f.Message
	}
	return err.Error()
}
