package repos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/kurasuta/kurasuta-backend/internal/logger"
	"github.com/kurasuta/kurasuta-backend/internal/types"
)

// SampleRepo owns the sample row and its first-class children. All write
// methods expect to run inside the transaction owned by the ingestion
// service; reads fall back to the base handle.
type SampleRepo interface {
	ByHash(ctx context.Context, tx *gorm.DB, hashType, hash string) (*types.Sample, error)
	Create(ctx context.Context, tx *gorm.DB, sample *types.Sample) error
	Update(ctx context.Context, tx *gorm.DB, sample *types.Sample) error
	LockHash(ctx context.Context, tx *gorm.DB, hash string) error

	DeleteChildren(ctx context.Context, tx *gorm.DB, sampleID int64) error
	DeleteFunctions(ctx context.Context, tx *gorm.DB, sampleID int64) error

	CreateHistogram(ctx context.Context, tx *gorm.DB, histogram *types.ByteHistogram) error
	DeleteHistogram(ctx context.Context, tx *gorm.DB, id int64) error

	CreateSections(ctx context.Context, tx *gorm.DB, sections []*types.Section) error
	CreateResources(ctx context.Context, tx *gorm.DB, resources []*types.Resource) error
	CreateExports(ctx context.Context, tx *gorm.DB, exports []*types.ExportSymbol) error
	CreateImports(ctx context.Context, tx *gorm.DB, imports []*types.Import) error
	CreateDebugDirectories(ctx context.Context, tx *gorm.DB, dirs []*types.DebugDirectory) error
	CreateFunctions(ctx context.Context, tx *gorm.DB, functions []*types.SampleFunction) error
	CreateTagLinks(ctx context.Context, tx *gorm.DB, links []*types.SampleHasTag) error
	CreateFileNameLinks(ctx context.Context, tx *gorm.DB, links []*types.SampleHasFileName) error
	CreatePeydLinks(ctx context.Context, tx *gorm.DB, links []*types.SampleHasPeyd) error
	CreateIOCLinks(ctx context.Context, tx *gorm.DB, links []*types.SampleHasHeuristicIOC) error

	LoadAggregate(ctx context.Context, tx *gorm.DB, sample *types.Sample) (*types.SampleAggregate, error)
}

type sampleRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSampleRepo(db *gorm.DB, baseLog *logger.Logger) SampleRepo {
	return &sampleRepo{db: db, log: baseLog.With("repo", "SampleRepo")}
}

func (r *sampleRepo) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *sampleRepo) ByHash(ctx context.Context, tx *gorm.DB, hashType, hash string) (*types.Sample, error) {
	var column string
	switch hashType {
	case "sha256":
		column = "hash_sha256"
	case "md5":
		column = "hash_md5"
	case "sha1":
		column = "hash_sha1"
	default:
		return nil, fmt.Errorf("unknown hash type %q", hashType)
	}

	var sample types.Sample
	err := r.handle(tx).WithContext(ctx).
		Where(fmt.Sprintf("%s = ?", column), hash).
		First(&sample).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sample, nil
}

func (r *sampleRepo) Create(ctx context.Context, tx *gorm.DB, sample *types.Sample) error {
	return r.handle(tx).WithContext(ctx).Create(sample).Error
}

func (r *sampleRepo) Update(ctx context.Context, tx *gorm.DB, sample *types.Sample) error {
	// Save writes every column so a replace clears fields the new
	// submission no longer carries.
	return r.handle(tx).WithContext(ctx).Save(sample).Error
}

// LockHash serializes concurrent submissions for one hash within the
// enclosing transaction. Without it, two interleaved metadata replaces for
// the same sample could leave a duplicated or torn subtree.
func (r *sampleRepo) LockHash(ctx context.Context, tx *gorm.DB, hash string) error {
	return r.handle(tx).WithContext(ctx).
		Exec(`SELECT pg_advisory_xact_lock(hashtext(?))`, hash).Error
}

// DeleteChildren removes every first-class child of a sample, in dependency
// order. The sample row itself stays: its numeric id is preserved across a
// metadata replace.
func (r *sampleRepo) DeleteChildren(ctx context.Context, tx *gorm.DB, sampleID int64) error {
	transaction := r.handle(tx).WithContext(ctx)
	deletions := []interface{}{
		&types.SampleHasPeyd{},
		&types.SampleHasHeuristicIOC{},
		&types.DebugDirectory{},
		&types.Section{},
		&types.Resource{},
		&types.ExportSymbol{},
		&types.Import{},
		&types.SampleFunction{},
		&types.SampleHasFileName{},
		&types.SampleHasTag{},
	}
	for _, model := range deletions {
		if err := transaction.Where("sample_id = ?", sampleID).Delete(model).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *sampleRepo) DeleteFunctions(ctx context.Context, tx *gorm.DB, sampleID int64) error {
	return r.handle(tx).WithContext(ctx).
		Where("sample_id = ?", sampleID).
		Delete(&types.SampleFunction{}).Error
}

func (r *sampleRepo) CreateHistogram(ctx context.Context, tx *gorm.DB, histogram *types.ByteHistogram) error {
	return r.handle(tx).WithContext(ctx).Create(histogram).Error
}

func (r *sampleRepo) DeleteHistogram(ctx context.Context, tx *gorm.DB, id int64) error {
	return r.handle(tx).WithContext(ctx).Delete(&types.ByteHistogram{}, id).Error
}

func (r *sampleRepo) CreateSections(ctx context.Context, tx *gorm.DB, sections []*types.Section) error {
	if len(sections) == 0 {
		return nil
	}
	return r.handle(tx).WithContext(ctx).Create(&sections).Error
}

func (r *sampleRepo) CreateResources(ctx context.Context, tx *gorm.DB, resources []*types.Resource) error {
	if len(resources) == 0 {
		return nil
	}
	return r.handle(tx).WithContext(ctx).Create(&resources).Error
}

func (r *sampleRepo) CreateExports(ctx context.Context, tx *gorm.DB, exports []*types.ExportSymbol) error {
	if len(exports) == 0 {
		return nil
	}
	return r.handle(tx).WithContext(ctx).Create(&exports).Error
}

func (r *sampleRepo) CreateImports(ctx context.Context, tx *gorm.DB, imports []*types.Import) error {
	if len(imports) == 0 {
		return nil
	}
	return r.handle(tx).WithContext(ctx).Create(&imports).Error
}

func (r *sampleRepo) CreateDebugDirectories(ctx context.Context, tx *gorm.DB, dirs []*types.DebugDirectory) error {
	if len(dirs) == 0 {
		return nil
	}
	return r.handle(tx).WithContext(ctx).Create(&dirs).Error
}

func (r *sampleRepo) CreateFunctions(ctx context.Context, tx *gorm.DB, functions []*types.SampleFunction) error {
	if len(functions) == 0 {
		return nil
	}
	return r.handle(tx).WithContext(ctx).Create(&functions).Error
}

func (r *sampleRepo) CreateTagLinks(ctx context.Context, tx *gorm.DB, links []*types.SampleHasTag) error {
	if len(links) == 0 {
		return nil
	}
	return r.handle(tx).WithContext(ctx).Create(&links).Error
}

func (r *sampleRepo) CreateFileNameLinks(ctx context.Context, tx *gorm.DB, links []*types.SampleHasFileName) error {
	if len(links) == 0 {
		return nil
	}
	return r.handle(tx).WithContext(ctx).Create(&links).Error
}

func (r *sampleRepo) CreatePeydLinks(ctx context.Context, tx *gorm.DB, links []*types.SampleHasPeyd) error {
	if len(links) == 0 {
		return nil
	}
	return r.handle(tx).WithContext(ctx).Create(&links).Error
}

func (r *sampleRepo) CreateIOCLinks(ctx context.Context, tx *gorm.DB, links []*types.SampleHasHeuristicIOC) error {
	if len(links) == 0 {
		return nil
	}
	return r.handle(tx).WithContext(ctx).Create(&links).Error
}

type sectionRow struct {
	HashSHA256     *string  `gorm:"column:hash_sha256"`
	Name           *string  `gorm:"column:name"`
	VirtualAddress *int64   `gorm:"column:virtual_address"`
	VirtualSize    *int64   `gorm:"column:virtual_size"`
	RawSize        *int64   `gorm:"column:raw_size"`
	Entropy        *float64 `gorm:"column:entropy"`
	SSDeep         *string  `gorm:"column:ssdeep"`
}

type resourceRow struct {
	HashSHA256  *string  `gorm:"column:hash_sha256"`
	Offset      *int64   `gorm:"column:offset"`
	Size        *int64   `gorm:"column:size"`
	ActualSize  *int64   `gorm:"column:actual_size"`
	SSDeep      *string  `gorm:"column:ssdeep"`
	Entropy     *float64 `gorm:"column:entropy"`
	TypeID      *int64   `gorm:"column:type_id"`
	TypeStr     *string  `gorm:"column:type_str"`
	NameID      *int64   `gorm:"column:name_id"`
	NameStr     *string  `gorm:"column:name_str"`
	LanguageID  *int64   `gorm:"column:language_id"`
	LanguageStr *string  `gorm:"column:language_str"`
}

type exportRow struct {
	Address *int64  `gorm:"column:address"`
	Name    *string `gorm:"column:name"`
	Ordinal *int64  `gorm:"column:ordinal"`
}

type importRow struct {
	DLLName *string `gorm:"column:dll_name"`
	Address *int64  `gorm:"column:address"`
	Name    *string `gorm:"column:name"`
}

// LoadAggregate joins the dimension strings back in and rebuilds the wire
// aggregate. Sections and resources come back ordered by sort_order, which
// is the one ordering guarantee of the data model.
func (r *sampleRepo) LoadAggregate(ctx context.Context, tx *gorm.DB, sample *types.Sample) (*types.SampleAggregate, error) {
	transaction := r.handle(tx).WithContext(ctx)

	agg := &types.SampleAggregate{
		ID:                            &sample.ID,
		HashSHA256:                    &sample.HashSHA256,
		HashMD5:                       sample.HashMD5,
		HashSHA1:                      sample.HashSHA1,
		Size:                          sample.Size,
		SSDeep:                        sample.SSDeep,
		Imphash:                       sample.Imphash,
		Entropy:                       sample.Entropy,
		FileSize:                      sample.FileSize,
		EntryPoint:                    sample.EntryPoint,
		OverlaySHA256:                 sample.OverlaySHA256,
		OverlaySize:                   sample.OverlaySize,
		OverlaySSDeep:                 sample.OverlaySSDeep,
		OverlayEntropy:                sample.OverlayEntropy,
		StringsCountOfLengthAtLeast10: sample.StringsCountOfLengthAtLeast10,
		StringsCount:                  sample.StringsCount,
		SourceID:                      sample.SourceID,
	}
	if len(sample.FirstKB) > 0 {
		firstKB := types.HexBytes(sample.FirstKB)
		agg.FirstKB = &firstKB
	}
	if sample.BuildTimestamp != nil {
		agg.BuildTimestamp = types.NewWireTime(*sample.BuildTimestamp)
	}
	if sample.ProcessedAt != nil {
		agg.ProcessedAt = types.NewWireTime(*sample.ProcessedAt)
	}

	if sample.MagicID != nil {
		magic, err := r.dimensionContent(ctx, transaction, types.DimensionMagic, *sample.MagicID)
		if err != nil {
			return nil, err
		}
		agg.Magic = magic
	}
	if sample.ExportNameID != nil {
		exportName, err := r.dimensionContent(ctx, transaction, types.DimensionExportName, *sample.ExportNameID)
		if err != nil {
			return nil, err
		}
		agg.ExportName = exportName
	}

	if sample.ByteHistogramID != nil {
		var histogram types.ByteHistogram
		if err := transaction.First(&histogram, *sample.ByteHistogramID).Error; err != nil {
			return nil, err
		}
		var counts types.HistogramCounts
		if err := json.Unmarshal(histogram.Counts, &counts); err != nil {
			return nil, fmt.Errorf("corrupt histogram row %d: %w", histogram.ID, err)
		}
		agg.CodeHistogram = &counts
	}

	var sections []sectionRow
	err := transaction.Raw(`
		SELECT s.hash_sha256, sn.content AS name, s.virtual_address, s.virtual_size, s.raw_size, s.entropy, s.ssdeep
		FROM section s
		LEFT JOIN section_name sn ON (s.name_id = sn.id)
		WHERE (s.sample_id = ?)
		ORDER BY s.sort_order
	`, sample.ID).Scan(&sections).Error
	if err != nil {
		return nil, err
	}
	for _, row := range sections {
		agg.Sections = append(agg.Sections, types.SectionEntry{
			HashSHA256:     row.HashSHA256,
			Name:           row.Name,
			VirtualAddress: row.VirtualAddress,
			VirtualSize:    row.VirtualSize,
			RawSize:        row.RawSize,
			Entropy:        row.Entropy,
			SSDeep:         row.SSDeep,
		})
	}

	var resources []resourceRow
	err = transaction.Raw(`
		SELECT
			r.hash_sha256, r.offset, r.size, r.actual_size, r.ssdeep, r.entropy,
			tp.content_id AS type_id, tp.content_str AS type_str,
			np.content_id AS name_id, np.content_str AS name_str,
			lp.content_id AS language_id, lp.content_str AS language_str
		FROM resource r
		LEFT JOIN resource_type_pair tp ON (r.type_pair_id = tp.id)
		LEFT JOIN resource_name_pair np ON (r.name_pair_id = np.id)
		LEFT JOIN resource_language_pair lp ON (r.language_pair_id = lp.id)
		WHERE (r.sample_id = ?)
		ORDER BY r.sort_order
	`, sample.ID).Scan(&resources).Error
	if err != nil {
		return nil, err
	}
	for _, row := range resources {
		agg.Resources = append(agg.Resources, types.ResourceEntry{
			HashSHA256:  row.HashSHA256,
			Offset:      row.Offset,
			Size:        row.Size,
			ActualSize:  row.ActualSize,
			SSDeep:      row.SSDeep,
			Entropy:     row.Entropy,
			TypeID:      row.TypeID,
			TypeStr:     row.TypeStr,
			NameID:      row.NameID,
			NameStr:     row.NameStr,
			LanguageID:  row.LanguageID,
			LanguageStr: row.LanguageStr,
		})
	}

	var exports []exportRow
	err = transaction.Raw(`
		SELECT e.address, en.content AS name, e.ordinal
		FROM export_symbol e
		LEFT JOIN export_symbol_name en ON (e.name_id = en.id)
		WHERE (e.sample_id = ?)
	`, sample.ID).Scan(&exports).Error
	if err != nil {
		return nil, err
	}
	for _, row := range exports {
		agg.Exports = append(agg.Exports, types.ExportEntry{
			Address: row.Address,
			Name:    row.Name,
			Ordinal: row.Ordinal,
		})
	}

	var imports []importRow
	err = transaction.Raw(`
		SELECT dn.content AS dll_name, i.address, imn.content AS name
		FROM import i
		LEFT JOIN dll_name dn ON (i.dll_name_id = dn.id)
		LEFT JOIN import_name imn ON (i.name_id = imn.id)
		WHERE (i.sample_id = ?)
	`, sample.ID).Scan(&imports).Error
	if err != nil {
		return nil, err
	}
	for _, row := range imports {
		agg.Imports = append(agg.Imports, types.ImportEntry{
			DLLName: row.DLLName,
			Address: row.Address,
			Name:    row.Name,
		})
	}

	var debugDirs []types.DebugDirectory
	err = transaction.Raw(`
		SELECT d.timestamp, d.path_id, d.age, d.signature, d.guid
		FROM debug_directory d
		WHERE (d.sample_id = ?)
	`, sample.ID).Scan(&debugDirs).Error
	if err != nil {
		return nil, err
	}
	for _, row := range debugDirs {
		entry := types.DebugDirectoryEntry{
			Age:       row.Age,
			Signature: row.Signature,
			GUID:      row.GUID,
		}
		if row.Timestamp != nil {
			entry.Timestamp = types.NewWireTime(*row.Timestamp)
		}
		if row.PathID != nil {
			path, err := r.dimensionContent(ctx, transaction, types.DimensionPath, *row.PathID)
			if err != nil {
				return nil, err
			}
			entry.Path = path
		}
		agg.DebugDirectories = append(agg.DebugDirectories, entry)
	}

	var functions []types.SampleFunction
	err = transaction.
		Where("sample_id = ?", sample.ID).
		Find(&functions).Error
	if err != nil {
		return nil, err
	}
	for _, fn := range functions {
		entry := types.FunctionEntry{
			Offset:               fn.Offset,
			Size:                 fn.Size,
			RealSize:             fn.RealSize,
			Name:                 fn.Name,
			Calltype:             fn.Calltype,
			CC:                   fn.CC,
			Cost:                 fn.Cost,
			EBBs:                 fn.EBBs,
			Edges:                fn.Edges,
			Indegree:             fn.Indegree,
			Nargs:                fn.Nargs,
			NBBs:                 fn.NBBs,
			Nlocals:              fn.Nlocals,
			Outdegree:            fn.Outdegree,
			Type:                 fn.Type,
			OpcodesSHA256:        fn.OpcodesSHA256,
			OpcodesCRC32:         fn.OpcodesCRC32,
			CleanedOpcodesSHA256: fn.CleanedOpcodesSHA256,
			CleanedOpcodesCRC32:  fn.CleanedOpcodesCRC32,
		}
		if len(fn.Opcodes) > 0 {
			entry.Opcodes = json.RawMessage(fn.Opcodes)
		}
		agg.Functions = append(agg.Functions, entry)
	}

	linkedValues := []struct {
		sql    string
		target *[]string
	}{
		{
			`SELECT p.content FROM peyd p JOIN sample_has_peyd l ON (l.peyd_id = p.id) WHERE (l.sample_id = ?)`,
			&agg.Peyd,
		},
		{
			`SELECT i.content FROM ioc i JOIN sample_has_heuristic_ioc l ON (l.ioc_id = i.id) WHERE (l.sample_id = ?)`,
			&agg.HeuristicIOCs,
		},
		{
			`SELECT t.content FROM tag t JOIN sample_has_tag l ON (l.tag_id = t.id) WHERE (l.sample_id = ?)`,
			&agg.Tags,
		},
		{
			`SELECT f.content FROM file_name f JOIN sample_has_file_name l ON (l.file_name_id = f.id) WHERE (l.sample_id = ?)`,
			&agg.FileNames,
		},
	}
	for _, linked := range linkedValues {
		var values []string
		if err := transaction.Raw(linked.sql, sample.ID).Scan(&values).Error; err != nil {
			return nil, err
		}
		*linked.target = values
	}

	return agg, nil
}

func (r *sampleRepo) dimensionContent(ctx context.Context, tx *gorm.DB, table string, id int64) (*string, error) {
	if !types.IsDimensionTable(table) {
		return nil, fmt.Errorf("unknown dimension table %q", table)
	}
	var content string
	sql := fmt.Sprintf(`SELECT content FROM %q WHERE (id = ?)`, table)
	if err := tx.Raw(sql, id).Scan(&content).Error; err != nil {
		return nil, err
	}
	return &content, nil
}
