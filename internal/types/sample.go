package types

import (
	"time"

	"gorm.io/datatypes"
)

// Sample is one analyzed binary. hash_sha256 is the global identity; md5 and
// sha1 are secondary lookup keys only. Dimension-valued fields reference the
// interned lookup tables by id.
type Sample struct {
	ID                            int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	HashSHA256                    string     `gorm:"column:hash_sha256;size:64;not null;uniqueIndex" json:"hash_sha256"`
	HashMD5                       *string    `gorm:"column:hash_md5;size:32;index" json:"hash_md5,omitempty"`
	HashSHA1                      *string    `gorm:"column:hash_sha1;size:40;index" json:"hash_sha1,omitempty"`
	Size                          *int64     `gorm:"column:size" json:"size,omitempty"`
	SSDeep                        *string    `gorm:"column:ssdeep" json:"ssdeep,omitempty"`
	Imphash                       *string    `gorm:"column:imphash;index" json:"imphash,omitempty"`
	Entropy                       *float64   `gorm:"column:entropy" json:"entropy,omitempty"`
	FileSize                      *int64     `gorm:"column:file_size" json:"file_size,omitempty"`
	EntryPoint                    *int64     `gorm:"column:entry_point" json:"entry_point,omitempty"`
	FirstKB                       []byte     `gorm:"column:first_kb" json:"first_kb,omitempty"`
	OverlaySHA256                 *string    `gorm:"column:overlay_sha256;size:64" json:"overlay_sha256,omitempty"`
	OverlaySize                   *int64     `gorm:"column:overlay_size" json:"overlay_size,omitempty"`
	OverlaySSDeep                 *string    `gorm:"column:overlay_ssdeep" json:"overlay_ssdeep,omitempty"`
	OverlayEntropy                *float64   `gorm:"column:overlay_entropy" json:"overlay_entropy,omitempty"`
	BuildTimestamp                *time.Time `gorm:"column:build_timestamp" json:"build_timestamp,omitempty"`
	StringsCountOfLengthAtLeast10 *int64     `gorm:"column:strings_count_of_length_at_least_10" json:"strings_count_of_length_at_least_10,omitempty"`
	StringsCount                  *int64     `gorm:"column:strings_count" json:"strings_count,omitempty"`
	MagicID                       *int64     `gorm:"column:magic_id" json:"magic_id,omitempty"`
	ExportNameID                  *int64     `gorm:"column:export_name_id" json:"export_name_id,omitempty"`
	ByteHistogramID               *int64     `gorm:"column:byte_histogram_id" json:"byte_histogram_id,omitempty"`
	SourceID                      *int64     `gorm:"column:source_id" json:"source_id,omitempty"`
	ProcessedAt                   *time.Time `gorm:"column:processed_at" json:"processed_at,omitempty"`
}

func (Sample) TableName() string { return "sample" }

// ByteHistogram holds the 256 bucket counts of one sample as a single row.
// The buckets travel as a fixed 256-slot array serialized into one jsonb
// column.
type ByteHistogram struct {
	ID     int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Counts datatypes.JSON `gorm:"column:counts;type:jsonb;not null" json:"counts"`
}

func (ByteHistogram) TableName() string { return "byte_histogram" }

type Section struct {
	ID             int64    `gorm:"primaryKey;autoIncrement" json:"id"`
	SampleID       int64    `gorm:"column:sample_id;not null;index" json:"sample_id"`
	HashSHA256     *string  `gorm:"column:hash_sha256;size:64;index" json:"hash_sha256,omitempty"`
	NameID         *int64   `gorm:"column:name_id" json:"name_id,omitempty"`
	VirtualAddress *int64   `gorm:"column:virtual_address" json:"virtual_address,omitempty"`
	VirtualSize    *int64   `gorm:"column:virtual_size" json:"virtual_size,omitempty"`
	RawSize        *int64   `gorm:"column:raw_size" json:"raw_size,omitempty"`
	Entropy        *float64 `gorm:"column:entropy" json:"entropy,omitempty"`
	SSDeep         *string  `gorm:"column:ssdeep" json:"ssdeep,omitempty"`
	SortOrder      int      `gorm:"column:sort_order;not null" json:"sort_order"`
}

func (Section) TableName() string { return "section" }

type Resource struct {
	ID             int64    `gorm:"primaryKey;autoIncrement" json:"id"`
	SampleID       int64    `gorm:"column:sample_id;not null;index" json:"sample_id"`
	HashSHA256     *string  `gorm:"column:hash_sha256;size:64;index" json:"hash_sha256,omitempty"`
	Offset         *int64   `gorm:"column:offset" json:"offset,omitempty"`
	Size           *int64   `gorm:"column:size" json:"size,omitempty"`
	ActualSize     *int64   `gorm:"column:actual_size" json:"actual_size,omitempty"`
	Entropy        *float64 `gorm:"column:entropy" json:"entropy,omitempty"`
	SSDeep         *string  `gorm:"column:ssdeep" json:"ssdeep,omitempty"`
	TypePairID     *int64   `gorm:"column:type_pair_id" json:"type_pair_id,omitempty"`
	NamePairID     *int64   `gorm:"column:name_pair_id" json:"name_pair_id,omitempty"`
	LanguagePairID *int64   `gorm:"column:language_pair_id" json:"language_pair_id,omitempty"`
	SortOrder      int      `gorm:"column:sort_order;not null" json:"sort_order"`
}

func (Resource) TableName() string { return "resource" }

type ExportSymbol struct {
	ID       int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	SampleID int64  `gorm:"column:sample_id;not null;index" json:"sample_id"`
	Address  *int64 `gorm:"column:address" json:"address,omitempty"`
	NameID   *int64 `gorm:"column:name_id" json:"name_id,omitempty"`
	Ordinal  *int64 `gorm:"column:ordinal" json:"ordinal,omitempty"`
}

func (ExportSymbol) TableName() string { return "export_symbol" }

type Import struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	SampleID  int64  `gorm:"column:sample_id;not null;index" json:"sample_id"`
	DLLNameID *int64 `gorm:"column:dll_name_id" json:"dll_name_id,omitempty"`
	Address   *int64 `gorm:"column:address" json:"address,omitempty"`
	NameID    *int64 `gorm:"column:name_id" json:"name_id,omitempty"`
}

func (Import) TableName() string { return "import" }

type DebugDirectory struct {
	ID        int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	SampleID  int64      `gorm:"column:sample_id;not null;index" json:"sample_id"`
	Timestamp *time.Time `gorm:"column:timestamp" json:"timestamp,omitempty"`
	PathID    *int64     `gorm:"column:path_id" json:"path_id,omitempty"`
	Age       *int64     `gorm:"column:age" json:"age,omitempty"`
	Signature *string    `gorm:"column:signature" json:"signature,omitempty"`
	GUID      *string    `gorm:"column:guid" json:"guid,omitempty"`
}

func (DebugDirectory) TableName() string { return "debug_directory" }

// SampleFunction rows only ever come from disassembly submissions and are
// wholly replaced on each one.
type SampleFunction struct {
	ID                   int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	SampleID             int64          `gorm:"column:sample_id;not null;index" json:"sample_id"`
	Offset               *int64         `gorm:"column:offset" json:"offset,omitempty"`
	Size                 *int64         `gorm:"column:size" json:"size,omitempty"`
	RealSize             *int64         `gorm:"column:real_size" json:"real_size,omitempty"`
	Name                 *string        `gorm:"column:name" json:"name,omitempty"`
	Calltype             *string        `gorm:"column:calltype" json:"calltype,omitempty"`
	CC                   *int64         `gorm:"column:cc" json:"cc,omitempty"`
	Cost                 *int64         `gorm:"column:cost" json:"cost,omitempty"`
	EBBs                 *int64         `gorm:"column:ebbs" json:"ebbs,omitempty"`
	Edges                *int64         `gorm:"column:edges" json:"edges,omitempty"`
	Indegree             *int64         `gorm:"column:indegree" json:"indegree,omitempty"`
	Nargs                *int64         `gorm:"column:nargs" json:"nargs,omitempty"`
	NBBs                 *int64         `gorm:"column:nbbs" json:"nbbs,omitempty"`
	Nlocals              *int64         `gorm:"column:nlocals" json:"nlocals,omitempty"`
	Outdegree            *int64         `gorm:"column:outdegree" json:"outdegree,omitempty"`
	Type                 *string        `gorm:"column:type" json:"type,omitempty"`
	OpcodesSHA256        *string        `gorm:"column:opcodes_sha256;size:64" json:"opcodes_sha256,omitempty"`
	OpcodesCRC32         *string        `gorm:"column:opcodes_crc32" json:"opcodes_crc32,omitempty"`
	CleanedOpcodesSHA256 *string        `gorm:"column:cleaned_opcodes_sha256;size:64" json:"cleaned_opcodes_sha256,omitempty"`
	CleanedOpcodesCRC32  *string        `gorm:"column:cleaned_opcodes_crc32" json:"cleaned_opcodes_crc32,omitempty"`
	Opcodes              datatypes.JSON `gorm:"column:opcodes;type:jsonb" json:"opcodes,omitempty"`
}

func (SampleFunction) TableName() string { return "sample_function" }

type SampleHasTag struct {
	SampleID int64 `gorm:"column:sample_id;primaryKey" json:"sample_id"`
	TagID    int64 `gorm:"column:tag_id;primaryKey" json:"tag_id"`
}

func (SampleHasTag) TableName() string { return "sample_has_tag" }

type SampleHasFileName struct {
	SampleID   int64 `gorm:"column:sample_id;primaryKey" json:"sample_id"`
	FileNameID int64 `gorm:"column:file_name_id;primaryKey" json:"file_name_id"`
}

func (SampleHasFileName) TableName() string { return "sample_has_file_name" }

type SampleHasPeyd struct {
	SampleID int64 `gorm:"column:sample_id;primaryKey" json:"sample_id"`
	PeydID   int64 `gorm:"column:peyd_id;primaryKey" json:"peyd_id"`
}

func (SampleHasPeyd) TableName() string { return "sample_has_peyd" }

type SampleHasHeuristicIOC struct {
	SampleID int64 `gorm:"column:sample_id;primaryKey" json:"sample_id"`
	IOCID    int64 `gorm:"column:ioc_id;primaryKey" json:"ioc_id"`
}

func (SampleHasHeuristicIOC) TableName() string { return "sample_has_heuristic_ioc" }

type SampleSource struct {
	ID         int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Identifier string `gorm:"column:identifier;not null;uniqueIndex" json:"identifier"`
}

func (SampleSource) TableName() string { return "sample_source" }

type APIKey struct {
	ID      int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Content string `gorm:"column:content;not null;uniqueIndex" json:"content"`
}

func (APIKey) TableName() string { return "api_key" }
