// Package rockridge overlays Rock Ridge Interchange Protocol semantics on an
// ISO9660 volume: POSIX attributes, long names, symlinks, timestamp vectors
// and relocated deep directories.
package rockridge

import (
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/bgrewell/disc-kit/pkg/consts"
	"github.com/bgrewell/disc-kit/pkg/filesystem"
	"github.com/bgrewell/disc-kit/pkg/iso9660"
	"github.com/bgrewell/disc-kit/pkg/susp"
)

// FS reads an ISO9660 volume through the Rock Ridge overlay. It owns a
// dedicated base reader whose entry constructor is replaced, so plain
// ISO9660 access to the same image is unaffected.
type FS struct {
	base  *iso9660.FS
	limit int
}

// NewFS wraps a base ISO9660 reader. The reader's entry constructor is
// replaced; the caller must not share it with a plain ISO9660 view.
func NewFS(base *iso9660.FS, continuationLimit int) *FS {
	overlay := &FS{base: base, limit: continuationLimit}
	base.SetWrap(func(rec *iso9660.DirectoryRecord, parent filesystem.Entry) (filesystem.Entry, error) {
		return overlay.newEntry(rec, parent)
	})
	return overlay
}

// Base exposes the underlying ISO9660 reader.
func (overlay *FS) Base() *iso9660.FS {
	return overlay.base
}

func (overlay *FS) Name() string {
	return overlay.base.Name()
}

func (overlay *FS) Publisher() string {
	return overlay.base.Publisher()
}

func (overlay *FS) Application() string {
	return overlay.base.Application()
}

// Get resolves an absolute path with Rock Ridge names and relocation
// applied.
func (overlay *FS) Get(path string) (filesystem.Entry, error) {
	return overlay.base.Get(path)
}

// PathTable exposes the base volume's path table.
func (overlay *FS) PathTable() (map[string]uint32, error) {
	return overlay.base.PathTable()
}

// newEntry scans the record's system use area, applies the alternate name
// and re-binds through a child link when the record is a relocation
// placeholder.
func (overlay *FS) newEntry(rec *iso9660.DirectoryRecord, parent filesystem.Entry) (*Entry, error) {
	base, err := overlay.base.NewEntry(rec, parent)
	if err != nil {
		return nil, err
	}
	area, err := susp.Scan(overlay.base.Reader(), overlay.base.BlockSize(), rec, overlay.limit)
	if err != nil {
		return nil, err
	}

	entry := &Entry{fs: overlay, base: base, area: area, name: base.Name()}
	if err := entry.applyName(); err != nil {
		return nil, err
	}
	// The placeholder record carries the name; the real record lives at the
	// child link location. Resolve after naming.
	if err := entry.resolveRelocation(); err != nil {
		return nil, err
	}
	return entry, nil
}

// Entry is an ISO9660 entry with its Rock Ridge system use area applied on
// top. Base metadata is delegated; any field with a corresponding system use
// entry is overridden.
type Entry struct {
	fs   *FS
	base *iso9660.Entry
	area *susp.Area
	name string

	// Lazily resolved caches; the library is single-task so a plain
	// resolved flag suffices.
	symlink         *string
	symlinkResolved bool
	posix           *PosixEntry
	posixResolved   bool
	stamps          map[TimestampType]time.Time
	stampsResolved  bool
}

// Area exposes the scanned system use area of this record.
func (e *Entry) Area() *susp.Area {
	return e.area
}

// applyName replaces the ISO9660 name with the concatenation of every NM
// entry payload.
func (e *Entry) applyName() error {
	if !e.area.Has(SigAlternateName) {
		return nil
	}
	name := ""
	for _, raw := range e.area.Entries(SigAlternateName) {
		nm, err := UnmarshalNameEntry(raw.Data)
		if err != nil {
			return err
		}
		decoded, err := e.fs.base.Decode(nm.Name)
		if err != nil {
			return err
		}
		name += decoded
	}
	e.name = name
	return nil
}

// resolveRelocation re-binds a placeholder record to the real directory
// record named by its child link, keeping the placeholder's name. The
// parent back-reference also stays with the placeholder so upward lookups
// keep working from the original position in the tree.
func (e *Entry) resolveRelocation() error {
	if !e.area.Has(SigChildLink) {
		return nil
	}

	location, err := UnmarshalChildLink(e.area.Entries(SigChildLink)[0].Data)
	if err != nil {
		return err
	}

	rec, err := e.fs.base.RecordAtBlock(location)
	if err != nil {
		return err
	}
	base, err := e.fs.base.NewEntry(rec, e.base.Parent())
	if err != nil {
		return err
	}
	area, err := susp.Scan(e.fs.base.Reader(), e.fs.base.BlockSize(), rec, e.fs.limit)
	if err != nil {
		return err
	}

	// The real record's own name is the meaningless placeholder inside
	// rr_moved, so e.name is left untouched.
	e.base = base
	e.area = area
	return nil
}

func (e *Entry) Name() string {
	return e.name
}

func (e *Entry) IsDir() bool {
	return e.base.IsDir()
}

func (e *Entry) Parent() filesystem.Entry {
	return e.base.Parent()
}

func (e *Entry) Get(path string) (filesystem.Entry, error) {
	return filesystem.Walk(e, path)
}

// Iterdir yields the children with relocation placeholders resolved and
// relocated originals (RE records inside rr_moved) hidden.
func (e *Entry) Iterdir() ([]filesystem.Entry, error) {
	records, err := e.fs.base.ReadRecords(e.base.Record())
	if err != nil {
		return nil, err
	}

	entries := make([]filesystem.Entry, 0, len(records))
	for _, rec := range records {
		child, err := e.fs.newEntry(rec, e)
		if err != nil {
			return nil, err
		}
		if child.area.Has(SigRelocated) {
			// The record also appears at its original deep path; hiding it
			// here keeps it from showing up twice.
			continue
		}
		entries = append(entries, child)
	}
	return entries, nil
}

func (e *Entry) Listdir() (map[string]filesystem.Entry, error) {
	return filesystem.Listdir(e)
}

func (e *Entry) Open() (io.ReadSeeker, error) {
	return e.base.Open()
}

func (e *Entry) resolveSymlink() error {
	e.symlinkResolved = true
	if !e.area.Has(SigSymlink) {
		return nil
	}

	payloads := make([][]byte, 0, 1)
	for _, raw := range e.area.Entries(SigSymlink) {
		payloads = append(payloads, raw.Data)
	}
	target, err := SymlinkTarget(payloads)
	if err != nil {
		return err
	}
	e.symlink = &target
	return nil
}

func (e *Entry) IsSymlink() bool {
	if !e.symlinkResolved {
		if err := e.resolveSymlink(); err != nil {
			e.fs.base.Logger().Error(err, "failed to resolve symlink", "name", e.name)
		}
	}
	return e.symlink != nil
}

func (e *Entry) Readlink() (string, error) {
	if !e.symlinkResolved {
		if err := e.resolveSymlink(); err != nil {
			return "", err
		}
	}
	if e.symlink == nil {
		return "", fmt.Errorf("%w: %s", filesystem.ErrNotASymlink, e.name)
	}
	return *e.symlink, nil
}

func (e *Entry) resolvePosix() *PosixEntry {
	if !e.posixResolved {
		e.posixResolved = true
		if e.area.Has(SigPosix) {
			px, err := UnmarshalPosixEntry(e.area.Entries(SigPosix)[0].Data)
			if err != nil {
				e.fs.base.Logger().Error(err, "failed to parse PX entry", "name", e.name)
			} else {
				e.posix = px
			}
		}
	}
	return e.posix
}

func (e *Entry) resolveStamps() map[TimestampType]time.Time {
	if !e.stampsResolved {
		e.stampsResolved = true
		if e.area.Has(SigTimestamps) {
			stamps, err := UnmarshalTimestamps(e.area.Entries(SigTimestamps)[0].Data)
			if err != nil {
				e.fs.base.Logger().Error(err, "failed to parse TF entry", "name", e.name)
			} else {
				e.stamps = stamps
			}
		}
	}
	return e.stamps
}

func (e *Entry) stampOr(ts TimestampType, fallback time.Time) time.Time {
	if stamp, ok := e.resolveStamps()[ts]; ok {
		return stamp
	}
	return fallback
}

func (e *Entry) ATime() time.Time {
	return e.stampOr(TimestampAccess, e.base.ATime())
}

func (e *Entry) MTime() time.Time {
	return e.stampOr(TimestampModify, e.base.MTime())
}

func (e *Entry) CTime() time.Time {
	return e.stampOr(TimestampAttributes, e.base.CTime())
}

func (e *Entry) BTime() time.Time {
	return e.stampOr(TimestampCreation, time.Time{})
}

func (e *Entry) Mode() fs.FileMode {
	if px := e.resolvePosix(); px != nil {
		return filesystem.UnixMode(px.Mode)
	}
	return e.base.Mode()
}

func (e *Entry) UID() uint32 {
	if px := e.resolvePosix(); px != nil {
		return px.UID
	}
	return e.base.UID()
}

func (e *Entry) GID() uint32 {
	if px := e.resolvePosix(); px != nil {
		return px.GID
	}
	return e.base.GID()
}

func (e *Entry) Nlinks() uint32 {
	if px := e.resolvePosix(); px != nil {
		return px.Nlinks
	}
	return e.base.Nlinks()
}

// Inode returns 0: RRIP 1.12 reserves no field for a file serial number.
func (e *Entry) Inode() uint64 {
	return 0
}

func (e *Entry) Size() int64 {
	return e.base.Size()
}

// Probe checks whether the volume described by pvd is Rock Ridge compliant
// and returns an overlay reader when it is. Detection reads the six bytes
// directly after the root directory's embedded record looking for the SUSP
// indicator, then requires an ER entry with a known Rock Ridge identifier on
// the root's first child record.
func Probe(r io.ReaderAt, pvd *iso9660.PrimaryVolumeDescriptor, cfg iso9660.Config, continuationLimit int) (*FS, error) {
	base := iso9660.NewFS(r, pvd, cfg)
	log := base.Logger()

	rootRec, err := base.RootRecord()
	if err != nil {
		return nil, err
	}

	magic := make([]byte, len(consts.SUSP_MAGIC))
	offset := int64(rootRec.Extent)*base.BlockSize() + consts.ISO9660_ROOT_RECORD_LENGTH
	if _, err := io.ReadFull(io.NewSectionReader(r, offset, int64(len(magic))), magic); err != nil {
		return nil, filesystem.Malformed("reading system use indicator at offset %d: %v", offset, err)
	}
	if string(magic) != consts.SUSP_MAGIC {
		return nil, filesystem.ErrNotRockridge
	}

	// The ER entry announcing the extension lives on the first record of
	// the root directory.
	records, err := base.ReadRecords(rootRec)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, filesystem.ErrNotRockridge
	}
	area, err := susp.Scan(r, base.BlockSize(), records[0], continuationLimit)
	if err != nil {
		return nil, err
	}
	if !area.Has(susp.SigExtensionsRef) {
		log.Warn("disc is SUSP-compliant but carries no extensions reference")
		return nil, filesystem.ErrNotRockridge
	}

	er, err := susp.UnmarshalExtensionsRef(area.Entries(susp.SigExtensionsRef)[0].Data)
	if err != nil {
		return nil, err
	}
	for _, identifier := range consts.ROCKRIDGE_IDENTIFIERS {
		if er.Identifier == identifier {
			return NewFS(base, continuationLimit), nil
		}
	}

	log.Warn("disc is SUSP-compliant but the extension is not Rock Ridge", "identifier", er.Identifier)
	return nil, filesystem.ErrNotRockridge
}
