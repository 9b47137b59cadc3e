package main

import (
	"fmt"
	"os"

	disc "github.com/bgrewell/disc-kit"
	"github.com/bgrewell/disc-kit/pkg/filesystem"
	"github.com/bgrewell/disc-kit/pkg/logging"
	"github.com/bgrewell/disc-kit/pkg/version"
	"github.com/bgrewell/usage"
)

// DisplayDiscInfo prints general information about the disc image.
func DisplayDiscInfo(d *disc.Disc, verbose bool) error {
	fmt.Println("=== Disc Information ===")
	if d.Name() != "" {
		fmt.Printf("Volume Name: %s\n", d.Name())
	}
	if d.Application() != "" {
		fmt.Printf("Created By: %s\n", d.Application())
	}
	if d.Publisher() != "" {
		fmt.Printf("Publisher: %s\n", d.Publisher())
	}
	fmt.Printf("Selected Format: %s\n", d.SelectedFormat())

	formats := d.AvailableFormats()
	fmt.Printf("Available Formats:")
	for _, format := range formats {
		fmt.Printf(" %s", format)
	}
	fmt.Println()

	root, err := d.Get("/")
	if err != nil {
		return fmt.Errorf("failed to read root directory: %w", err)
	}

	files, dirs, symlinks := 0, 0, 0
	totalSize := int64(0)
	var walk func(entry filesystem.Entry, path string) error
	walk = func(entry filesystem.Entry, path string) error {
		children, err := entry.Iterdir()
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", path, err)
		}
		for _, child := range children {
			name := child.Name()
			if name == "." || name == ".." {
				continue
			}
			childPath := path + "/" + name
			if verbose {
				fmt.Printf("  %s (%s, %d bytes)\n", childPath, child.Mode(), child.Size())
			}
			switch {
			case child.IsSymlink():
				symlinks++
			case child.IsDir():
				dirs++
				if err := walk(child, childPath); err != nil {
					return err
				}
			default:
				files++
				totalSize += child.Size()
			}
		}
		return nil
	}

	if verbose {
		fmt.Println("\n=== Contents ===")
	}
	if err := walk(root, ""); err != nil {
		return err
	}

	fmt.Printf("Total Files: %d\n", files)
	fmt.Printf("Total Directories: %d\n", dirs)
	fmt.Printf("Total Symlinks: %d\n", symlinks)
	fmt.Printf("Total Size: %d bytes (%.2f MB)\n", totalSize, float64(totalSize)/1024/1024)
	fmt.Println("=========================")

	return nil
}

func main() {

	u := usage.NewUsage(
		usage.WithApplicationVersion(version.Version()),
		usage.WithApplicationBranch(version.Branch()),
		usage.WithApplicationBuildDate(version.Date()),
		usage.WithApplicationCommitHash(version.Revision()),
		usage.WithApplicationName("discview"),
		usage.WithApplicationDescription("discview is a command-line tool for inspecting optical disc images. It detects ISO9660, Joliet, Rock Ridge and UDF filesystems, shows volume information and lists the directory tree of the selected format."),
	)

	help := u.AddBooleanOption("h", "help", false, "Show this help message", "optional", nil)
	verbose := u.AddBooleanOption("v", "verbose", false, "Print verbose output", "", nil)
	pathTable := u.AddBooleanOption("p", "pathtable", false, "Resolve lookups through the path table", "optional", nil)
	path := u.AddArgument(1, "image-path", "Path to the disc image", "")
	format := u.AddArgument(2, "format", "Preferred format (iso9660, joliet, rockridge, udf)", "optional")
	parsed := u.Parse()

	if !parsed {
		u.PrintError(fmt.Errorf("failed to parse arguments"))
		os.Exit(1)
	}

	if *help {
		u.PrintUsage()
		os.Exit(0)
	}

	if path == nil || *path == "" {
		u.PrintError(fmt.Errorf("location of the disc image must be provided"))
		os.Exit(1)
	}

	fh, err := os.Open(*path)
	if err != nil {
		u.PrintError(err)
		os.Exit(1)
	}
	defer fh.Close()

	opts := []disc.Option{}
	if *verbose {
		opts = append(opts, disc.WithLogger(logging.NewSimpleLogger(os.Stderr, logging.LEVEL_DEBUG, true)))
	}
	if format != nil && *format != "" {
		opts = append(opts, disc.WithPreference(disc.Format(*format)))
	}
	if *pathTable {
		opts = append(opts, disc.WithPathTableLookup(true))
	}

	d, err := disc.Open(fh, opts...)
	if err != nil {
		u.PrintError(err)
		os.Exit(1)
	}

	if err := DisplayDiscInfo(d, *verbose); err != nil {
		u.PrintError(err)
		os.Exit(1)
	}
}
