//go:build ignore

// generate_testdata.go creates standard tree datasets for benchmarking.
// Usage: go run scripts/generate_testdata.go
//
// Creates, as both .json and .db:
//
//	testdata/benchmark/small   (1000 items, random tree)
//	testdata/benchmark/medium  (10000 items, random tree)
//	testdata/benchmark/wide    (50000 leaves under one root)
//	testdata/benchmark/deep    (5 levels, 10 children each)
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vanderheijden86/viewtree/internal/datasource"
	"github.com/vanderheijden86/viewtree/pkg/testutil"
)

type dataset struct {
	name  string
	desc  string
	build func(g *testutil.Generator) datasource.Item
}

var datasets = []dataset{
	{"small", "1000 items - random recursive tree", func(g *testutil.Generator) datasource.Item { return g.Random(1000) }},
	{"medium", "10000 items - random recursive tree", func(g *testutil.Generator) datasource.Item { return g.Random(10000) }},
	{"wide", "50000 leaves under one root", func(g *testutil.Generator) datasource.Item { return g.Wide(50000) }},
	{"deep", "5 levels, 10 children each", func(g *testutil.Generator) datasource.Item { return g.Tree(5, 10) }},
}

func main() {
	outputDir := "testdata/benchmark"
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create output directory: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	for i, ds := range datasets {
		fmt.Printf("Generating %s dataset (%s)...\n", ds.name, ds.desc)

		g := testutil.New(testutil.GeneratorConfig{
			Seed:       int64(i + 1), // Reproducible per dataset
			IDPrefix:   ds.name + "-",
			WordLabels: true,
		})
		root := ds.build(g)

		jsonPath := filepath.Join(outputDir, ds.name+".json")
		if err := datasource.WriteJSON(jsonPath, root); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", jsonPath, err)
			os.Exit(1)
		}

		dbPath := filepath.Join(outputDir, ds.name+".db")
		_ = os.Remove(dbPath)
		if err := datasource.WriteSQLite(ctx, dbPath, root); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", dbPath, err)
			os.Exit(1)
		}

		fmt.Printf("  Written %s and %s (%d items)\n", jsonPath, dbPath, root.Count())
	}

	fmt.Println("\nDone! Test datasets created in", outputDir)
}
