package iso9660

import (
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/bgrewell/disc-kit/pkg/consts"
	"github.com/bgrewell/disc-kit/pkg/encoding"
	"github.com/bgrewell/disc-kit/pkg/filesystem"
	"github.com/bgrewell/disc-kit/pkg/logging"
)

// WrapFunc builds the externally visible entry for a parsed directory
// record. The base filesystem wraps records in plain ISO9660 entries; the
// Rock Ridge overlay installs its own constructor so lookups and the path
// table produce overlay entries instead.
type WrapFunc func(rec *DirectoryRecord, parent filesystem.Entry) (filesystem.Entry, error)

// FS reads an ISO9660 (or, with a UTF-16BE decoder, Joliet) volume.
type FS struct {
	r            io.ReaderAt
	pvd          *PrimaryVolumeDescriptor
	decode       encoding.Decoder
	log          *logging.Logger
	blockSize    int64
	usePathTable bool
	wrap         WrapFunc
	pathTableMap map[string]uint32
}

// Config carries the construction parameters of an FS.
type Config struct {
	// Decoder decodes identifier bytes; nil means single-byte identifiers.
	Decoder encoding.Decoder
	// UsePathTable routes Get through the path table instead of walking
	// from the root record.
	UsePathTable bool
	// Logger receives diagnostics; nil drops them.
	Logger *logging.Logger
}

// NewFS builds a reader over a parsed primary (or supplementary) volume
// descriptor.
func NewFS(r io.ReaderAt, pvd *PrimaryVolumeDescriptor, cfg Config) *FS {
	if cfg.Decoder == nil {
		cfg.Decoder = encoding.Identity
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.DefaultLogger()
	}
	fsys := &FS{
		r:            r,
		pvd:          pvd,
		decode:       cfg.Decoder,
		log:          cfg.Logger,
		blockSize:    int64(pvd.LogicalBlockSize),
		usePathTable: cfg.UsePathTable,
	}
	fsys.wrap = func(rec *DirectoryRecord, parent filesystem.Entry) (filesystem.Entry, error) {
		return fsys.NewEntry(rec, parent)
	}
	return fsys
}

// SetWrap replaces the entry constructor used for every record this
// filesystem parses.
func (fsys *FS) SetWrap(wrap WrapFunc) {
	fsys.wrap = wrap
}

// Reader exposes the underlying byte source.
func (fsys *FS) Reader() io.ReaderAt {
	return fsys.r
}

// BlockSize returns the logical block size of the volume.
func (fsys *FS) BlockSize() int64 {
	return fsys.blockSize
}

// Decode decodes identifier bytes using the volume's configured encoding.
func (fsys *FS) Decode(data []byte) (string, error) {
	return fsys.decode(data)
}

// Logger returns the diagnostic sink of this volume.
func (fsys *FS) Logger() *logging.Logger {
	return fsys.log
}

// RootRecord parses the directory record embedded in the volume descriptor.
func (fsys *FS) RootRecord() (*DirectoryRecord, error) {
	return UnmarshalDirectoryRecord(fsys.pvd.RootDirectoryRecord)
}

// Root returns the root directory entry.
func (fsys *FS) Root() (filesystem.Entry, error) {
	rec, err := fsys.RootRecord()
	if err != nil {
		return nil, err
	}
	return fsys.wrap(rec, nil)
}

func (fsys *FS) decodeTrimmed(data []byte) string {
	decoded, err := fsys.decode(data)
	if err != nil {
		fsys.log.Error(err, "failed to decode identifier field")
		return ""
	}
	return strings.TrimRight(decoded, " \x00")
}

// Name returns the volume identifier, stripped of space padding.
func (fsys *FS) Name() string {
	return fsys.decodeTrimmed(fsys.pvd.VolumeID)
}

// Publisher returns the publisher identifier, stripped of space padding.
func (fsys *FS) Publisher() string {
	return fsys.decodeTrimmed(fsys.pvd.PublisherID)
}

// Application returns the application identifier, stripped of space padding.
func (fsys *FS) Application() string {
	return fsys.decodeTrimmed(fsys.pvd.ApplicationID)
}

// Get resolves an absolute path, either by walking the directory tree from
// the root record or through the path table when configured.
func (fsys *FS) Get(path string) (filesystem.Entry, error) {
	path = filesystem.Normalize(path)

	if !fsys.usePathTable {
		root, err := fsys.Root()
		if err != nil {
			return nil, err
		}
		return filesystem.Walk(root, path)
	}
	return fsys.getFromPathTable(path)
}

// PathTable returns the lazily built map of directory paths to extents.
func (fsys *FS) PathTable() (map[string]uint32, error) {
	return fsys.pathTable()
}

// getFromPathTable resolves a path the way Windows drivers do: directories
// come straight from the path table, files by scanning their parent
// directory.
func (fsys *FS) getFromPathTable(path string) (filesystem.Entry, error) {
	table, err := fsys.pathTable()
	if err != nil {
		return nil, err
	}

	dirPath, fileName := path, ""
	if _, ok := table[dirPath]; !ok {
		// Only directories live in the path table; retry with the parent.
		idx := strings.LastIndex(path, "/")
		dirPath, fileName = path[:idx], path[idx+1:]
		if dirPath == "" {
			dirPath = "/"
		}
	}

	extent, ok := table[dirPath]
	if !ok {
		return nil, fmt.Errorf("%w: %s", filesystem.ErrPathNotFound, path)
	}

	rec, err := fsys.RecordAtBlock(extent)
	if err != nil {
		return nil, err
	}
	entry, err := fsys.wrap(rec, nil)
	if err != nil {
		return nil, err
	}
	if fileName == "" {
		return entry, nil
	}

	children, err := entry.Iterdir()
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		if child.Name() == fileName {
			return child, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", filesystem.ErrPathNotFound, path)
}

// RecordAtBlock parses the directory record at the start of a logical
// block.
func (fsys *FS) RecordAtBlock(block uint32) (*DirectoryRecord, error) {
	offset := int64(block) * fsys.blockSize
	buf := make([]byte, consts.ISO9660_SECTOR_SIZE)
	n, err := io.NewSectionReader(fsys.r, offset, consts.ISO9660_SECTOR_SIZE).Read(buf)
	if err != nil && err != io.EOF {
		return nil, filesystem.Malformed("reading directory record at offset %d: %v", offset, err)
	}
	return UnmarshalDirectoryRecord(buf[:n])
}

// ReadRecords reads the directory extent of rec and parses each directory
// record in it, in on-disc order. Iteration stops at the first zero length
// byte of a block, the remainder being padding; records are 2-aligned.
func (fsys *FS) ReadRecords(rec *DirectoryRecord) ([]*DirectoryRecord, error) {
	if !rec.IsDir() {
		return nil, fmt.Errorf("%w: cannot iterate a file", filesystem.ErrNotADirectory)
	}

	buf := make([]byte, rec.Size)
	offset := int64(rec.Extent) * fsys.blockSize
	if _, err := io.ReadFull(io.NewSectionReader(fsys.r, offset, int64(rec.Size)), buf); err != nil {
		return nil, filesystem.Malformed("reading directory extent at offset %d: %v", offset, err)
	}

	var records []*DirectoryRecord
	pos := 0
	for pos < len(buf) {
		if buf[pos] == 0x00 {
			break
		}
		child, err := UnmarshalDirectoryRecord(buf[pos:])
		if err != nil {
			return nil, err
		}
		records = append(records, child)

		pos += int(child.Length)
		if pos%2 != 0 {
			pos++
		}
	}

	return records, nil
}

// NewEntry builds a plain ISO9660 entry for a parsed directory record.
func (fsys *FS) NewEntry(rec *DirectoryRecord, parent filesystem.Entry) (*Entry, error) {
	// The self and parent identifiers are single bytes in every encoding,
	// so they are mapped before decoding.
	if len(rec.RawName) == 1 && rec.RawName[0] <= 0x01 {
		name := "."
		if rec.RawName[0] == 0x01 {
			name = ".."
		}
		return &Entry{fs: fsys, rec: rec, name: name, parent: parent}, nil
	}

	name, err := fsys.decode(rec.RawName)
	if err != nil {
		return nil, err
	}
	if !rec.IsDir() {
		// File identifiers carry a version suffix after the separator.
		name, _, _ = strings.Cut(name, consts.ISO9660_SEPARATOR_2)
	}
	return &Entry{fs: fsys, rec: rec, name: name, parent: parent}, nil
}

// Entry is a single file or directory of an ISO9660 volume.
type Entry struct {
	fs     *FS
	rec    *DirectoryRecord
	name   string
	parent filesystem.Entry
}

// Record exposes the parsed directory record backing this entry.
func (e *Entry) Record() *DirectoryRecord {
	return e.rec
}

// FS returns the filesystem this entry belongs to.
func (e *Entry) FS() *FS {
	return e.fs
}

func (e *Entry) Name() string {
	return e.name
}

func (e *Entry) IsDir() bool {
	return e.rec.IsDir()
}

// IsSymlink is always false: plain ISO9660 cannot record symlinks.
func (e *Entry) IsSymlink() bool {
	return false
}

func (e *Entry) Parent() filesystem.Entry {
	return e.parent
}

func (e *Entry) Get(path string) (filesystem.Entry, error) {
	return filesystem.Walk(e, path)
}

func (e *Entry) Iterdir() ([]filesystem.Entry, error) {
	records, err := e.fs.ReadRecords(e.rec)
	if err != nil {
		return nil, err
	}
	entries := make([]filesystem.Entry, 0, len(records))
	for _, rec := range records {
		child, err := e.fs.wrap(rec, e)
		if err != nil {
			return nil, err
		}
		entries = append(entries, child)
	}
	return entries, nil
}

func (e *Entry) Listdir() (map[string]filesystem.Entry, error) {
	return filesystem.Listdir(e)
}

// Open returns a stream over the file contents.
func (e *Entry) Open() (io.ReadSeeker, error) {
	if e.rec.IsDir() {
		return nil, fmt.Errorf("%w: %s", filesystem.ErrNotAFile, e.name)
	}
	if e.rec.Interleave != 0 {
		return nil, fmt.Errorf("%w: %s", filesystem.ErrInterleaved, e.name)
	}
	if e.rec.ExtAttrLength != 0 {
		return nil, fmt.Errorf("%w: %s", filesystem.ErrExtendedAttributes, e.name)
	}
	return io.NewSectionReader(e.fs.r, int64(e.rec.Extent)*e.fs.blockSize, int64(e.rec.Size)), nil
}

func (e *Entry) Readlink() (string, error) {
	return "", fmt.Errorf("%w: %s", filesystem.ErrNotASymlink, e.name)
}

// Plain ISO9660 records carry a single timestamp, exposed for all three
// times.
func (e *Entry) ATime() time.Time { return e.rec.Recorded }
func (e *Entry) MTime() time.Time { return e.rec.Recorded }
func (e *Entry) CTime() time.Time { return e.rec.Recorded }

// BTime returns the zero time: ISO9660 does not record a birth time.
func (e *Entry) BTime() time.Time { return time.Time{} }

func (e *Entry) Mode() fs.FileMode {
	if e.rec.ExtAttrLength != 0 {
		e.fs.log.Error(filesystem.ErrExtendedAttributes, "falling back to default permissions", "name", e.name)
	}
	mode := fs.FileMode(0o644)
	if e.rec.IsDir() {
		mode |= fs.ModeDir
	}
	return mode
}

func (e *Entry) UID() uint32 {
	return 0
}

func (e *Entry) GID() uint32 {
	return 0
}

func (e *Entry) Nlinks() uint32 {
	return 1
}

// Inode returns 0: ISO9660 has no stable inode numbers.
func (e *Entry) Inode() uint64 {
	return 0
}

func (e *Entry) Size() int64 {
	return int64(e.rec.Size)
}
