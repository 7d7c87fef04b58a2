package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// SampleAggregate is the wire form of one analyzed sample as submitted by a
// worker. Every scalar is a pointer and every collection is a nil-able
// slice: a field absent from the JSON stays nil, which is distinct from
// present-but-empty. Only set fields are emitted.
type SampleAggregate struct {
	ID         *int64  `json:"id,omitempty"`
	HashSHA256 *string `json:"hash_sha256,omitempty"`
	HashMD5    *string `json:"hash_md5,omitempty"`
	HashSHA1   *string `json:"hash_sha1,omitempty"`

	Size          *int64           `json:"size,omitempty"`
	CodeHistogram *HistogramCounts `json:"code_histogram,omitempty"`
	Magic         *string          `json:"magic,omitempty"`
	Peyd          []string         `json:"peyd,omitempty"`

	SSDeep  *string  `json:"ssdeep,omitempty"`
	Imphash *string  `json:"imphash,omitempty"`
	Entropy *float64 `json:"entropy,omitempty"`

	FileSize   *int64    `json:"file_size,omitempty"`
	EntryPoint *int64    `json:"entry_point,omitempty"`
	FirstKB    *HexBytes `json:"first_kb,omitempty"`

	OverlaySHA256  *string  `json:"overlay_sha256,omitempty"`
	OverlaySize    *int64   `json:"overlay_size,omitempty"`
	OverlaySSDeep  *string  `json:"overlay_ssdeep,omitempty"`
	OverlayEntropy *float64 `json:"overlay_entropy,omitempty"`

	BuildTimestamp *WireTime `json:"build_timestamp,omitempty"`

	DebugDirectories []DebugDirectoryEntry `json:"debug_directories,omitempty"`

	StringsCountOfLengthAtLeast10 *int64   `json:"strings_count_of_length_at_least_10,omitempty"`
	StringsCount                  *int64   `json:"strings_count,omitempty"`
	HeuristicIOCs                 []string `json:"heuristic_iocs,omitempty"`

	ExportName *string       `json:"export_name,omitempty"`
	Exports    []ExportEntry `json:"exports,omitempty"`
	Imports    []ImportEntry `json:"imports,omitempty"`

	Sections  []SectionEntry  `json:"sections,omitempty"`
	Resources []ResourceEntry `json:"resources,omitempty"`
	Functions []FunctionEntry `json:"functions,omitempty"`

	SourceID  *int64   `json:"source_id,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	FileNames []string `json:"file_names,omitempty"`

	ProcessedAt *WireTime `json:"processed_at,omitempty"`
}

// Submission is a result upload: the aggregate plus the id of the task that
// authorized it, if any.
type Submission struct {
	SampleAggregate
	TaskID *int64 `json:"task_id,omitempty"`
}

type SectionEntry struct {
	HashSHA256     *string  `json:"hash_sha256,omitempty"`
	Name           *string  `json:"name,omitempty"`
	VirtualAddress *int64   `json:"virtual_address,omitempty"`
	VirtualSize    *int64   `json:"virtual_size,omitempty"`
	RawSize        *int64   `json:"raw_size,omitempty"`
	Entropy        *float64 `json:"entropy,omitempty"`
	SSDeep         *string  `json:"ssdeep,omitempty"`
}

type ResourceEntry struct {
	HashSHA256  *string  `json:"hash_sha256,omitempty"`
	Offset      *int64   `json:"offset,omitempty"`
	Size        *int64   `json:"size,omitempty"`
	ActualSize  *int64   `json:"actual_size,omitempty"`
	SSDeep      *string  `json:"ssdeep,omitempty"`
	Entropy     *float64 `json:"entropy,omitempty"`
	TypeID      *int64   `json:"type_id,omitempty"`
	TypeStr     *string  `json:"type_str,omitempty"`
	NameID      *int64   `json:"name_id,omitempty"`
	NameStr     *string  `json:"name_str,omitempty"`
	LanguageID  *int64   `json:"language_id,omitempty"`
	LanguageStr *string  `json:"language_str,omitempty"`
}

type ExportEntry struct {
	Address *int64  `json:"address,omitempty"`
	Name    *string `json:"name,omitempty"`
	Ordinal *int64  `json:"ordinal,omitempty"`
}

type ImportEntry struct {
	DLLName *string `json:"dll_name,omitempty"`
	Address *int64  `json:"address,omitempty"`
	Name    *string `json:"name,omitempty"`
}

type DebugDirectoryEntry struct {
	Timestamp *WireTime `json:"timestamp,omitempty"`
	Path      *string   `json:"path,omitempty"`
	Age       *int64    `json:"age,omitempty"`
	Signature *string   `json:"signature,omitempty"`
	GUID      *string   `json:"guid,omitempty"`
}

type FunctionEntry struct {
	Offset               *int64          `json:"offset,omitempty"`
	Size                 *int64          `json:"size,omitempty"`
	RealSize             *int64          `json:"real_size,omitempty"`
	Name                 *string         `json:"name,omitempty"`
	Calltype             *string         `json:"calltype,omitempty"`
	CC                   *int64          `json:"cc,omitempty"`
	Cost                 *int64          `json:"cost,omitempty"`
	EBBs                 *int64          `json:"ebbs,omitempty"`
	Edges                *int64          `json:"edges,omitempty"`
	Indegree             *int64          `json:"indegree,omitempty"`
	Nargs                *int64          `json:"nargs,omitempty"`
	NBBs                 *int64          `json:"nbbs,omitempty"`
	Nlocals              *int64          `json:"nlocals,omitempty"`
	Outdegree            *int64          `json:"outdegree,omitempty"`
	Type                 *string         `json:"type,omitempty"`
	OpcodesSHA256        *string         `json:"opcodes_sha256,omitempty"`
	OpcodesCRC32         *string         `json:"opcodes_crc32,omitempty"`
	CleanedOpcodesSHA256 *string         `json:"cleaned_opcodes_sha256,omitempty"`
	CleanedOpcodesCRC32  *string         `json:"cleaned_opcodes_crc32,omitempty"`
	Opcodes              json.RawMessage `json:"opcodes,omitempty"`
}

// HexBytes is raw binary carried as a lowercase hex string on the wire.
type HexBytes []byte

func (h HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(h))
}

func (h *HexBytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("first_kb is not valid hex: %w", err)
	}
	*h = decoded
	return nil
}

// HistogramCounts maps the wire histogram object {"0".."255": count} onto
// 256 fixed slots. Missing buckets count as zero; keys outside 0..255 are
// rejected.
type HistogramCounts [256]int64

func (hc HistogramCounts) MarshalJSON() ([]byte, error) {
	m := make(map[string]int64, 256)
	for i, count := range hc {
		m[strconv.Itoa(i)] = count
	}
	return json.Marshal(m)
}

func (hc *HistogramCounts) UnmarshalJSON(data []byte) error {
	var m map[string]int64
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	var out HistogramCounts
	for key, count := range m {
		bucket, err := strconv.Atoi(key)
		if err != nil || bucket < 0 || bucket > 255 {
			return fmt.Errorf("histogram bucket %q out of range", key)
		}
		out[bucket] = count
	}
	*hc = out
	return nil
}

// WireTime renders timestamps the way the workers emit them
// ("2006-01-02 15:04:05 UTC") while also accepting RFC3339 on input.
type WireTime struct {
	time.Time
}

const wireTimeLayout = "2006-01-02 15:04:05 UTC"

func NewWireTime(t time.Time) *WireTime {
	return &WireTime{Time: t.UTC()}
}

func (w WireTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.Time.UTC().Format(wireTimeLayout))
}

func (w *WireTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for _, layout := range []string{wireTimeLayout, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			w.Time = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("unparsable timestamp %q", s)
}
