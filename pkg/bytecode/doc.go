// Package bytecode defines the register machine instruction set and its
// binary encoding.
//
// Every instruction encodes to exactly 8 bytes: a one byte header drawn from
// the 27 values 0x00..0x1A, followed by seven operand bytes whose packing
// depends on the opcode. Strings and pointer immediates do not fit in seven
// bytes and are stored out of line in a constant pool that follows the
// function bodies.
//
// # Program layout
//
//	[magic "CRNC":4] [version:u16] [flags:u16]
//	[function_count:u32]
//	  per function: [instruction_count:u32] [instruction_count * 8 bytes]
//	[constant_count:u32]
//	  per constant: [tag:u8] [payload]
//
// The first function is always main. All integers are big-endian.
//
// # Instruction packing
//
//	Load       [op] [reg] [tag] [0] [inline:u32]   bool and int inline, others pool index
//	Cache      [op] [reg] [loc:u32] [pool:u16]
//	Save       [op] [reg] [loc:u32] [0 0]
//	Drop       [op] [0] [loc:u32] [0 0]
//	Compare    [op] [cmp] [left] [right]
//	Jump*      [op] [0 0 0] [offset:i32]
//	JumpPoint  [op] [0 0 0] [label:u32]
//	Func       [op] [0 0 0] [index:u32]
//	Syscall    [op] [table] [out] [p1] [p2] [p3] [p4] [p5]
//
// Register operands of the remaining opcodes occupy the bytes directly after
// the header.
//
// Programs can also be wrapped in a CBOR Image, which adds function names and
// build metadata around the raw encoding.
package bytecode
