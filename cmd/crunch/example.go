package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/chazu/crunch/pkg/builder"
	"github.com/chazu/crunch/pkg/bytecode"
	"github.com/chazu/crunch/pkg/value"
)

// handleExampleCommand processes the `crunch example` subcommand.
func handleExampleCommand(args []string) {
	fs := flag.NewFlagSet("example", flag.ExitOnError)
	image := fs.Bool("image", false, "Wrap the program in an image with function names")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: crunch example [-image] OUT")
		os.Exit(1)
	}

	data, err := exampleProgram(*image)
	if err != nil {
		fail(err)
	}
	if err := os.WriteFile(fs.Arg(0), data, 0644); err != nil {
		fail(err)
	}
	fmt.Printf("Wrote %s (%d bytes)\n", fs.Arg(0), len(data))
}

// buildExample greets, then prints the product computed by a callee.
func buildExample() ([][]bytecode.Instruction, []string, error) {
	b := builder.New()
	answer := b.Intern("answer")

	err := b.Function(builder.MainName, func(b *builder.CodeBuilder, ctx *builder.FunctionContext) error {
		text, err := ctx.ReserveReg()
		if err != nil {
			return err
		}
		result, err := ctx.ReserveReg()
		if err != nil {
			return err
		}
		ctx.Load(value.String("Hello, world!\n"), text).
			Print(text).
			FuncCall(answer).
			OpToReg(result).
			Print(result).
			Load(value.String("\n"), text).
			Print(text).
			Halt()
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	err = b.Function("answer", func(b *builder.CodeBuilder, ctx *builder.FunctionContext) error {
		x, err := ctx.ReserveReg()
		if err != nil {
			return err
		}
		y, err := ctx.ReserveReg()
		if err != nil {
			return err
		}
		ctx.Load(value.Int(6), x).
			Load(value.Int(7), y).
			Mult(x, y).
			Return()
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	program, err := b.Build()
	if err != nil {
		return nil, nil, err
	}
	return program, b.Symbols(), nil
}

// exampleProgram encodes the example as a raw program or as an image.
func exampleProgram(image bool) ([]byte, error) {
	program, names, err := buildExample()
	if err != nil {
		return nil, err
	}
	if !image {
		return bytecode.Encode(program[0], program[1:])
	}
	img, err := bytecode.NewImage(builder.MainName, names, program[0], program[1:])
	if err != nil {
		return nil, err
	}
	return bytecode.MarshalImage(img)
}
