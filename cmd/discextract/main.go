package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	disc "github.com/bgrewell/disc-kit"
	"github.com/bgrewell/disc-kit/pkg/filesystem"
	"github.com/bgrewell/disc-kit/pkg/logging"
	"github.com/spf13/afero"
	"github.com/theckman/yacspin"
	"golang.org/x/term"
)

type extractor struct {
	out     afero.Fs
	spinner *yacspin.Spinner
	count   int
}

func (x *extractor) status(message string) {
	if x.spinner != nil {
		x.spinner.Message(message)
	}
}

// extract walks a directory entry recursively, writing files and recreating
// directories below dest. Symlinks are written as plain text files holding
// their target path.
func (x *extractor) extract(entry filesystem.Entry, dest string) error {
	children, err := entry.Iterdir()
	if err != nil {
		return err
	}

	for _, child := range children {
		name := child.Name()
		if name == "." || name == ".." {
			continue
		}
		target := filepath.Join(dest, name)
		x.status(name)

		switch {
		case child.IsSymlink():
			// Symlink targets are recorded as paths; afero has no symlink
			// support so they are written as plain text files.
			link, err := child.Readlink()
			if err != nil {
				return fmt.Errorf("failed to read symlink %s: %w", name, err)
			}
			if err := afero.WriteFile(x.out, target, []byte(link), 0o644); err != nil {
				return fmt.Errorf("failed to write symlink %s: %w", target, err)
			}
		case child.IsDir():
			if err := x.out.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", target, err)
			}
			if err := x.extract(child, target); err != nil {
				return err
			}
		default:
			if err := x.extractFile(child, target); err != nil {
				return err
			}
		}
		x.count++
	}
	return nil
}

func (x *extractor) extractFile(entry filesystem.Entry, target string) error {
	contents, err := entry.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", entry.Name(), err)
	}

	outFile, err := x.out.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", target, err)
	}
	defer outFile.Close()

	if _, err := io.Copy(outFile, contents); err != nil {
		return fmt.Errorf("failed to write file %s: %w", target, err)
	}
	return nil
}

func main() {
	// Logging level flags
	debug := flag.Bool("v", false, "Enable verbose (debug) logging")
	trace := flag.Bool("vv", false, "Enable trace logging")

	// Extraction options
	format := flag.String("format", "", "Preferred format (iso9660, joliet, rockridge, udf)")
	pathTable := flag.Bool("pathtable", false, "Resolve lookups through the path table")

	// Output directory
	outputDir := flag.String("o", "./extracted", "Output directory for extracted files")

	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Println("Usage: discextract [options] <path-to-image>")
		fmt.Println("  -v               Enable verbose (debug) logging")
		fmt.Println("  -vv              Enable trace logging")
		fmt.Println("  -format <name>   Preferred format (iso9660, joliet, rockridge, udf)")
		fmt.Println("  -pathtable       Resolve lookups through the path table")
		fmt.Println("  -o <directory>   Output directory (default './extracted')")
		os.Exit(1)
	}

	opts := []disc.Option{}
	if *trace {
		opts = append(opts, disc.WithLogger(logging.NewSimpleLogger(os.Stderr, logging.LEVEL_TRACE, true)))
	} else if *debug {
		opts = append(opts, disc.WithLogger(logging.NewSimpleLogger(os.Stderr, logging.LEVEL_DEBUG, true)))
	}
	if *format != "" {
		opts = append(opts, disc.WithPreference(disc.Format(*format)))
	}
	if *pathTable {
		opts = append(opts, disc.WithPathTableLookup(true))
	}

	imagePath := flag.Arg(0)
	fh, err := os.Open(imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open image: %v\n", err)
		os.Exit(1)
	}
	defer fh.Close()

	d, err := disc.Open(fh, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open disc: %v\n", err)
		os.Exit(1)
	}

	root, err := d.Get("/")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read root directory: %v\n", err)
		os.Exit(1)
	}

	x := &extractor{out: afero.NewOsFs()}

	// Only animate on a real terminal.
	if term.IsTerminal(int(os.Stderr.Fd())) {
		spinner, err := yacspin.New(yacspin.Config{
			Writer:          os.Stderr,
			Frequency:       100 * time.Millisecond,
			CharSet:         yacspin.CharSets[14],
			Suffix:          " extracting",
			SuffixAutoColon: true,
			StopCharacter:   "✓",
			StopColors:      []string{"fgGreen"},
		})
		if err == nil && spinner.Start() == nil {
			x.spinner = spinner
		}
	}

	if err := x.out.MkdirAll(*outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create output directory: %v\n", err)
		os.Exit(1)
	}

	err = x.extract(root, *outputDir)
	if x.spinner != nil {
		if err != nil {
			x.spinner.StopFail()
		} else {
			x.spinner.Stop()
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to extract image: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Extracted %d entries from %s (%s) to '%s'.\n", x.count, imagePath, d.SelectedFormat(), *outputDir)
}
