// Package abi holds the small set of syscall-ABI sentinel values and wire
// constants shared across the entity, space, and syscall packages, adopted
// verbatim from original_source's api/*.h (§12 of SPEC_FULL.md).
package abi

// InvalidOffset is passed as a Read/Write offset argument to mean "use the
// handle's own seek cursor" rather than an explicit byte offset.
const InvalidOffset int64 = -1

// InvalidAddress is passed as Allocate's address hint to mean "let the
// kernel choose a virtual address".
const InvalidAddress uint64 = ^uint64(0)

// InvalidEntityID marks an unused/absent handle-table slot or FD field.
const InvalidEntityID int64 = -1

// OpenFlags is the bit set passed to the Open syscall (§6.1).
type OpenFlags uint32

const (
	OpenRead            OpenFlags = 0x1
	OpenWrite           OpenFlags = 0x2
	OpenCreateIfMissing OpenFlags = 0x4
	OpenCreateOnly      OpenFlags = 0x8
	OpenDirectory       OpenFlags = 0x10
)

func (f OpenFlags) Has(bit OpenFlags) bool { return f&bit != 0 }

// SeekLocation is the whence argument to the Seek syscall.
type SeekLocation int

const (
	SeekSet SeekLocation = iota
	SeekCurrent
	SeekEnd
)

// CreatePipeHandleFlags packs the read/write group assignment and blocking
// bit for CreatePipe's flags_u64 argument (§12, from original_source's
// CreatePipeHandleFlags).
type CreatePipeHandleFlags uint32

const (
	PipeReaderBlocking CreatePipeHandleFlags = 0x1
	PipeWriterBlocking CreatePipeHandleFlags = 0x2
)

func (f CreatePipeHandleFlags) Has(bit CreatePipeHandleFlags) bool { return f&bit != 0 }
