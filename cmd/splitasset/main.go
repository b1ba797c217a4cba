package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/officelab/splitasset"
)

var (
	cyan   = color.New(color.FgCyan).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
)

type config struct {
	Root         string
	ChunkSize    int64
	ManifestName string
}

func parseFlags() *config {
	var c config

	flag.StringVar(&c.Root, "root", "./dist", "Publish root to scan for oversized files")
	flag.Int64Var(&c.ChunkSize, "chunk-size", splitasset.DefaultChunkSize, "Split threshold and chunk size in bytes")
	flag.StringVar(&c.ManifestName, "manifest", splitasset.DefaultManifestName, "Manifest file name under the publish root")

	flag.Usage = func() {
		fmt.Printf("Usage: %s [options]\n\nOptions:\n", os.Args[0])
		flag.PrintDefaults()
	}

	flag.Parse()
	return &c
}

func main() {
	c := parseFlags()

	if _, err := os.Stat(c.Root); os.IsNotExist(err) {
		fmt.Printf("\n%s Directory does not exist: %s\n", red("✗"), yellow(c.Root))
		os.Exit(1)
	}

	start := time.Now()
	fmt.Printf("\n%s Processing: %s (chunk size %s)\n",
		cyan("•"), yellow(c.Root), yellow(humanize.IBytes(uint64(c.ChunkSize))))

	splitter := splitasset.NewSplitter(
		splitasset.WithChunkSize(c.ChunkSize),
		splitasset.WithManifestName(c.ManifestName),
	)
	defer splitter.Close()

	report, err := splitter.Split(c.Root)
	if err != nil {
		fmt.Printf("\n%s Split failed: %v\n", red("✗"), err)
		os.Exit(1)
	}

	for _, f := range report.Files {
		fmt.Printf("%s %s (%s) -> %s chunks\n",
			cyan("•"), yellow(f.Path), humanize.IBytes(uint64(f.Size)), yellow(humanize.Comma(int64(f.Chunks))))
	}

	if len(report.Files) == 0 {
		fmt.Printf("\n%s Nothing to split, manifest untouched\n", green("✓"))
		return
	}

	fmt.Printf("\n%s Split %s file(s) in %s\n",
		green("✓"),
		yellow(humanize.Comma(int64(len(report.Files)))),
		yellow(time.Since(start).Round(time.Millisecond)),
	)
	fmt.Printf("%s Manifest: %s\n\n", cyan("•"), yellow(c.ManifestName))
}
