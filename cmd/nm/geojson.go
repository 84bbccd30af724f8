package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/infblueocean/newsmap/internal/analysis"
)

func runGeoJSON() int {
	fs := flag.NewFlagSet("geojson", flag.ExitOnError)
	limit := fs.Int("limit", 500, "Maximum analyzed articles to consider")
	out := fs.String("o", "", "Write to file instead of stdout")
	indent := fs.Bool("indent", false, "Pretty-print the output")
	fs.Parse(os.Args[1:])

	cfg := loadConfig()
	p, closeAll := openPipeline(cfg)
	defer closeAll()

	analyzed, err := p.Store.GetAnalyzed(*limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	fc := analysis.ToGeoJSON(analyzed)

	var data []byte
	if *indent {
		data, err = json.MarshalIndent(fc, "", "  ")
	} else {
		data, err = json.Marshal(fc)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	data = append(data, '\n')

	if *out == "" {
		os.Stdout.Write(data)
		return 0
	}
	if err := os.WriteFile(*out, data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Fprintf(os.Stderr, "wrote %d features (%d analyzed) to %s\n", len(fc.Features), len(analyzed), *out)
	return 0
}
