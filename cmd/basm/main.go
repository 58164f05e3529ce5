// Command basm is the macro-assembler front-end: it translates a
// BASM source file into a bm.Image binary, optionally verifying it
// first (spec §4, §6).
package main

import (
	"fmt"
	"os"

	cli "github.com/urfave/cli/v2"

	"bm/basm"
	"bm/verifier"
)

func main() {
	app := cli.NewApp()
	app.Name = "basm"
	app.Usage = "translate BASM source into a bm program image"
	app.ArgsUsage = "input.basm"
	app.Flags = []cli.Flag{
		&cli.StringFlag{Name: "o", Usage: "output image path", Value: "a.bm"},
		&cli.StringSliceFlag{Name: "I", Usage: "add a directory to the %include search path"},
		&cli.StringFlag{Name: "t", Usage: "target (only 'bm' is supported)", Value: "bm"},
		&cli.BoolFlag{Name: "verify", Usage: "run the verifier before writing the image"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "basm:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.Args().Len() < 1 {
		return cli.Exit("basm: missing input file", 1)
	}
	input := c.Args().First()

	if target := c.String("t"); target != "bm" {
		return cli.Exit(fmt.Sprintf("basm: unsupported target %q (only \"bm\" is implemented)", target), 1)
	}

	tr := basm.NewTranslator(c.StringSlice("I"))
	img, err := tr.TranslateFile(input)
	if err != nil {
		return cli.Exit(fmt.Sprintf("basm: %v", err), 1)
	}

	if c.Bool("verify") {
		fault, err := verifier.Verify(img, tr.OperandTypes)
		if err != nil {
			return cli.Exit(fmt.Sprintf("basm: verify: %v", err), 1)
		}
		if fault != nil {
			return cli.Exit(fmt.Sprintf("basm: verify: %v", fault), 1)
		}
	}

	out, err := os.Create(c.String("o"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("basm: %v", err), 1)
	}
	defer out.Close()

	if err := img.Write(out); err != nil {
		return cli.Exit(fmt.Sprintf("basm: writing image: %v", err), 1)
	}
	return nil
}
