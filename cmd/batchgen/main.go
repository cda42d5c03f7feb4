// Command batchgen writes a synthetic items JSON file for feeding the
// stockcast batch runner during development.
package main

import (
	"encoding/json"
	"flag"
	"os"

	"github.com/merchkit/stockcast/internal/batchgen"
)

func main() {
	n := flag.Int("n", 100, "number of items to generate")
	seed := flag.Int64("seed", 42, "random seed")
	out := flag.String("out", "", "output file, stdout when empty")
	flag.Parse()

	g := batchgen.New(batchgen.WithSeed(*seed))
	items := g.Batch(*n)

	w := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			os.Stderr.WriteString("create output file: " + err.Error() + "\n")
			os.Exit(1)
		}
		defer f.Close()
		w = f
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(items); err != nil {
		os.Stderr.WriteString("encode items: " + err.Error() + "\n")
		os.Exit(1)
	}
}
