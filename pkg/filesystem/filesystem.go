package filesystem

import (
	"io"
	"io/fs"
	"time"
)

// Format identifies one of the filesystem families that can coexist on a
// single disc image.
type Format string

const (
	ISO9660   Format = "iso9660"
	Joliet    Format = "joliet"
	Rockridge Format = "rockridge"
	UDF       Format = "udf"
)

// DefaultPreferenceOrder is the fallback order used when no preference is
// given or the preferred format is absent. UDF is the most modern standard
// and carries the most metadata, Rockridge beats Joliet for the same reason.
var DefaultPreferenceOrder = []Format{UDF, Rockridge, Joliet, ISO9660}

// FS is implemented by each format reader registered on a disc.
type FS interface {
	// Name returns the volume name, stripped of space padding.
	Name() string
	// Publisher returns the publisher identifier of the volume.
	Publisher() string
	// Application returns the application identifier of the volume.
	Application() string
	// Get resolves an absolute path to an entry.
	Get(path string) (Entry, error)
}

// Entry is the unified view of a file, directory or symlink, independent of
// the backing format.
type Entry interface {
	Name() string
	IsDir() bool
	IsSymlink() bool

	// Parent returns the entry this one was discovered through, or nil for
	// the root. It is a non-owning back-reference used for relative lookups.
	Parent() Entry

	// Get resolves a path relative to this directory entry.
	Get(path string) (Entry, error)

	// Iterdir returns the children of this directory in on-disc order.
	Iterdir() ([]Entry, error)

	// Listdir returns the children of this directory keyed by name.
	Listdir() (map[string]Entry, error)

	// Open returns a stream over the file contents.
	Open() (io.ReadSeeker, error)

	// Readlink returns the symlink target. ErrNotASymlink if IsSymlink is
	// false.
	Readlink() (string, error)

	ATime() time.Time
	MTime() time.Time
	CTime() time.Time
	// BTime returns the creation time, or the zero time when the backing
	// format does not record one.
	BTime() time.Time

	Mode() fs.FileMode
	UID() uint32
	GID() uint32
	Nlinks() uint32
	Inode() uint64
	Size() int64
}

// Listdir builds the name-keyed map for an entry from its Iterdir order.
// Readers use it to implement Entry.Listdir.
func Listdir(e Entry) (map[string]Entry, error) {
	children, err := e.Iterdir()
	if err != nil {
		return nil, err
	}
	out := make(map[string]Entry, len(children))
	for _, child := range children {
		out[child.Name()] = child
	}
	return out, nil
}

// UnixMode converts a raw POSIX st_mode value into an fs.FileMode.
func UnixMode(mode uint32) fs.FileMode {
	out := fs.FileMode(mode & 0o777)

	switch mode & 0xF000 {
	case 0xC000:
		out |= fs.ModeSocket
	case 0xA000:
		out |= fs.ModeSymlink
	case 0x8000:
		// Regular file.
	case 0x6000:
		out |= fs.ModeDevice
	case 0x4000:
		out |= fs.ModeDir
	case 0x2000:
		out |= fs.ModeDevice | fs.ModeCharDevice
	case 0x1000:
		out |= fs.ModeNamedPipe
	}

	if mode&0o4000 != 0 {
		out |= fs.ModeSetuid
	}
	if mode&0o2000 != 0 {
		out |= fs.ModeSetgid
	}
	if mode&0o1000 != 0 {
		out |= fs.ModeSticky
	}

	return out
}
