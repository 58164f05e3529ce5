// Command bm loads a binary program image and runs it to completion
// or fault (spec §4.1).
package main

import (
	"fmt"
	"os"

	cli "github.com/urfave/cli/v2"

	"bm/bm"
)

func main() {
	app := cli.NewApp()
	app.Name = "bm"
	app.Usage = "run a bm program image"
	app.ArgsUsage = "input.bm"
	app.Flags = []cli.Flag{
		&cli.Int64Flag{Name: "l", Usage: "execution step budget (0 = unbounded)", Value: 0},
		&cli.BoolFlag{Name: "n", Usage: "treat a non-existent native as a no-op instead of faulting"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "bm:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.Args().Len() < 1 {
		return cli.Exit("bm: missing input file", 1)
	}

	f, err := os.Open(c.Args().First())
	if err != nil {
		return cli.Exit(fmt.Sprintf("bm: %v", err), 1)
	}
	defer f.Close()

	img, err := bm.ReadImage(f)
	if err != nil {
		return cli.Exit(fmt.Sprintf("bm: %v", err), 1)
	}

	registry := map[string]bm.Native{
		"write": bm.NewWriteNative(os.Stdout),
	}
	natives, err := bm.ResolveNatives(img.Externals, registry)
	if err != nil {
		if !c.Bool("n") {
			return cli.Exit(fmt.Sprintf("bm: %v", err), 1)
		}
		natives = make([]bm.Native, len(img.Externals))
		for i, name := range img.Externals {
			if fn, ok := registry[name]; ok {
				natives[i] = fn
			} else {
				natives[i] = func(*bm.BM) error { return nil }
			}
		}
	}

	vm := bm.New(img, natives)
	budget := c.Int64("l")
	if budget == 0 {
		budget = -1
	}

	if err := vm.Run(budget); err != nil {
		fmt.Fprintln(os.Stderr, bm.FormatFault(err, vm.IP))
		return cli.Exit("", 1)
	}
	return nil
}
