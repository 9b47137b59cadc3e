package filesystem

import (
	"errors"
	"fmt"
)

// Probing errors. These are caught by the disc facade and used to decide
// which formats get registered; they never surface to callers of a selected
// reader.
var (
	ErrNotUDF       = errors.New("not a UDF filesystem")
	ErrNotRockridge = errors.New("not a Rock Ridge filesystem")
)

// Open-time errors.
var (
	ErrNoPrimaryVolume        = errors.New("no primary volume descriptor found")
	ErrNoCompatibleFilesystem = errors.New("no compatible filesystem found on disc")
	ErrInvalidVolumeDescID    = errors.New("invalid volume descriptor identifier")
	ErrSelectionFailed        = errors.New("could not select a format for disc")
)

// Lookup errors.
var (
	ErrPathNotFound  = errors.New("path not found")
	ErrNotADirectory = errors.New("not a directory")
	ErrNotAFile      = errors.New("not a file")
	ErrNotASymlink   = errors.New("not a symlink")
)

// Feature gaps. Recognisable on-disc constructs this library refuses to read.
var (
	ErrExtendedAttributes        = errors.New("extended attribute record is present but not supported")
	ErrUnsupportedAllocationType = errors.New("extended allocation descriptors are not supported")
	ErrInterleaved               = errors.New("interleaved files are not supported")
	ErrMultiplePartitions        = errors.New("multiple UDF partitions are not supported")
	ErrSparableRemap             = errors.New("reads through a sparable partition remap are not supported")
	ErrVirtualPartition          = errors.New("reads from a virtual partition are not supported")
	ErrMetadataPartition         = errors.New("reads from a metadata partition are not supported")
	ErrUnknownPartitionType      = errors.New("unknown partition map type")
	ErrUnexpectedICB             = errors.New("unexpected descriptor tag while resolving ICB")
	ErrBadEncoding               = errors.New("unknown character encoding")
)

// MalformedDescriptorError reports recognisable but structurally invalid
// on-disc data. Parsers return it instead of panicking on malformed input.
type MalformedDescriptorError struct {
	Reason string
}

func (e *MalformedDescriptorError) Error() string {
	return "malformed descriptor: " + e.Reason
}

// Malformed builds a MalformedDescriptorError with a formatted reason.
func Malformed(format string, args ...interface{}) error {
	return &MalformedDescriptorError{Reason: fmt.Sprintf(format, args...)}
}
