package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/kurasuta/kurasuta-backend/internal/apierr"
	"github.com/kurasuta/kurasuta-backend/internal/db"
	"github.com/kurasuta/kurasuta-backend/internal/logger"
	"github.com/kurasuta/kurasuta-backend/internal/repos"
	"github.com/kurasuta/kurasuta-backend/internal/types"
	"github.com/kurasuta/kurasuta-backend/internal/utils"
)

const (
	StatusOK     = "ok"
	StatusExists = "EXISTS"
)

// IngestService is the transactional writer for the sample graph. A
// submission is committed or rolled back as one unit: a mid-ingestion
// failure never leaves a partial subtree visible.
type IngestService interface {
	Submit(ctx context.Context, urlHash string, sub *types.Submission) (string, error)
	ByHash(ctx context.Context, hashType, hash string) (*types.SampleAggregate, error)
}

type ingestService struct {
	log           *logger.Logger
	sampleRepo    repos.SampleRepo
	dimensionRepo repos.DimensionRepo
	taskService   TaskService
	// runTx executes fn inside one database transaction.
	runTx func(ctx context.Context, fn func(tx *gorm.DB) error) error
}

func NewIngestService(
	gormDB *gorm.DB,
	log *logger.Logger,
	sampleRepo repos.SampleRepo,
	dimensionRepo repos.DimensionRepo,
	taskService TaskService,
) IngestService {
	return &ingestService{
		log:           log.With("service", "IngestService"),
		sampleRepo:    sampleRepo,
		dimensionRepo: dimensionRepo,
		taskService:   taskService,
		runTx: func(ctx context.Context, fn func(tx *gorm.DB) error) error {
			return gormDB.WithContext(ctx).Transaction(fn)
		},
	}
}

// Submit validates a result submission against the task that authorized it
// and applies it to the sample graph.
//
// Branches for hash h:
//   - no sample, no task or metadata task: full insert
//   - no sample, disassembly task: reject, disassembly needs a sample
//   - sample exists, no task: no writes, EXISTS
//   - sample exists, metadata task: delete subtree, full replace (numeric
//     sample id is preserved; only children are recreated)
//   - sample exists, disassembly task: replace the function list only
func (s *ingestService) Submit(ctx context.Context, urlHash string, sub *types.Submission) (string, error) {
	hash := strings.ToLower(urlHash)
	if err := utils.ValidateSHA256(hash); err != nil {
		return "", err
	}
	if sub.HashSHA256 != nil && !strings.EqualFold(*sub.HashSHA256, hash) {
		return "", apierr.InvalidUsage("hash in body does not match hash in URL")
	}

	status := StatusOK
	err := s.runTx(ctx, func(tx *gorm.DB) error {
		// Serializes concurrent submissions for the same hash; released
		// automatically at commit/rollback.
		if err := s.sampleRepo.LockHash(ctx, tx, hash); err != nil {
			return err
		}

		var task *types.Task
		if sub.TaskID != nil {
			completed, err := s.taskService.Complete(ctx, tx, *sub.TaskID)
			if err != nil {
				return err
			}
			task = completed
		}

		existing, err := s.sampleRepo.ByHash(ctx, tx, "sha256", hash)
		if err != nil {
			return err
		}

		switch {
		case existing == nil:
			if task != nil && task.Type == types.TaskTypeDisassembly {
				return apierr.InvalidUsage("sample does not exist")
			}
			return s.insertSample(ctx, tx, nil, hash, &sub.SampleAggregate)

		case task == nil:
			status = StatusExists
			return nil

		case task.Type == types.TaskTypeMetadata:
			if err := s.sampleRepo.DeleteChildren(ctx, tx, existing.ID); err != nil {
				return err
			}
			return s.insertSample(ctx, tx, existing, hash, &sub.SampleAggregate)

		case task.Type == types.TaskTypeDisassembly:
			if err := s.sampleRepo.DeleteFunctions(ctx, tx, existing.ID); err != nil {
				return err
			}
			return s.insertFunctions(ctx, tx, existing.ID, sub.Functions)

		default:
			return apierr.InvalidUsage("Unsupported task type %q", task.Type)
		}
	})
	if err != nil {
		// A racing writer that slipped in ahead of us surfaces as a unique
		// violation on the sample hash; the sample exists, so say so. Only
		// that table qualifies: a 23505 anywhere else means bad submission
		// data and the rollback must be reported as a failure.
		if db.IsUniqueViolationOn(err, types.Sample{}.TableName()) {
			return StatusExists, nil
		}
		return "", err
	}
	return status, nil
}

func (s *ingestService) ByHash(ctx context.Context, hashType, hash string) (*types.SampleAggregate, error) {
	sample, err := s.sampleRepo.ByHash(ctx, nil, hashType, hash)
	if err != nil {
		return nil, err
	}
	if sample == nil {
		return nil, nil
	}
	return s.sampleRepo.LoadAggregate(ctx, nil, sample)
}

// insertSample writes the sample row and every child subtree, interning
// each dimension value on the way. When existing is non-nil its row (and
// numeric id) is reused and overwritten in place.
func (s *ingestService) insertSample(ctx context.Context, tx *gorm.DB, existing *types.Sample, hash string, agg *types.SampleAggregate) error {
	now := time.Now()
	sample := &types.Sample{
		HashSHA256:                    hash,
		HashMD5:                       agg.HashMD5,
		HashSHA1:                      agg.HashSHA1,
		Size:                          agg.Size,
		SSDeep:                        agg.SSDeep,
		Imphash:                       agg.Imphash,
		Entropy:                       agg.Entropy,
		FileSize:                      agg.FileSize,
		EntryPoint:                    agg.EntryPoint,
		OverlaySHA256:                 agg.OverlaySHA256,
		OverlaySize:                   agg.OverlaySize,
		OverlaySSDeep:                 agg.OverlaySSDeep,
		OverlayEntropy:                agg.OverlayEntropy,
		StringsCountOfLengthAtLeast10: agg.StringsCountOfLengthAtLeast10,
		StringsCount:                  agg.StringsCount,
		SourceID:                      agg.SourceID,
		ProcessedAt:                   &now,
	}
	if existing != nil {
		sample.ID = existing.ID
	}
	if agg.FirstKB != nil {
		sample.FirstKB = []byte(*agg.FirstKB)
	}
	if agg.BuildTimestamp != nil {
		buildTimestamp := agg.BuildTimestamp.Time
		sample.BuildTimestamp = &buildTimestamp
	}

	if agg.Magic != nil {
		magicID, err := s.dimensionRepo.Ensure(ctx, tx, types.DimensionMagic, *agg.Magic)
		if err != nil {
			return err
		}
		sample.MagicID = &magicID
	}
	if agg.ExportName != nil {
		exportNameID, err := s.dimensionRepo.Ensure(ctx, tx, types.DimensionExportName, *agg.ExportName)
		if err != nil {
			return err
		}
		sample.ExportNameID = &exportNameID
	}

	if agg.CodeHistogram != nil {
		counts, err := json.Marshal(agg.CodeHistogram)
		if err != nil {
			return err
		}
		histogram := &types.ByteHistogram{Counts: datatypes.JSON(counts)}
		if err := s.sampleRepo.CreateHistogram(ctx, tx, histogram); err != nil {
			return err
		}
		sample.ByteHistogramID = &histogram.ID
	}

	if existing == nil {
		if err := s.sampleRepo.Create(ctx, tx, sample); err != nil {
			return err
		}
	} else {
		if err := s.sampleRepo.Update(ctx, tx, sample); err != nil {
			return err
		}
		// The old histogram row is orphaned once the sample points away
		// from it.
		if existing.ByteHistogramID != nil {
			if err := s.sampleRepo.DeleteHistogram(ctx, tx, *existing.ByteHistogramID); err != nil {
				return err
			}
		}
	}

	peydIDs, err := s.internValues(ctx, tx, types.DimensionPeyd, agg.Peyd)
	if err != nil {
		return err
	}
	peydLinks := make([]*types.SampleHasPeyd, 0, len(peydIDs))
	for _, id := range peydIDs {
		peydLinks = append(peydLinks, &types.SampleHasPeyd{SampleID: sample.ID, PeydID: id})
	}
	if err := s.sampleRepo.CreatePeydLinks(ctx, tx, peydLinks); err != nil {
		return err
	}

	if err := s.insertDebugDirectories(ctx, tx, sample.ID, agg.DebugDirectories); err != nil {
		return err
	}
	if err := s.insertExports(ctx, tx, sample.ID, agg.Exports); err != nil {
		return err
	}
	if err := s.insertImports(ctx, tx, sample.ID, agg.Imports); err != nil {
		return err
	}

	iocIDs, err := s.internValues(ctx, tx, types.DimensionIOC, agg.HeuristicIOCs)
	if err != nil {
		return err
	}
	iocLinks := make([]*types.SampleHasHeuristicIOC, 0, len(iocIDs))
	for _, id := range iocIDs {
		iocLinks = append(iocLinks, &types.SampleHasHeuristicIOC{SampleID: sample.ID, IOCID: id})
	}
	if err := s.sampleRepo.CreateIOCLinks(ctx, tx, iocLinks); err != nil {
		return err
	}

	if err := s.insertSections(ctx, tx, sample.ID, agg.Sections); err != nil {
		return err
	}
	if err := s.insertResources(ctx, tx, sample.ID, agg.Resources); err != nil {
		return err
	}

	tagIDs, err := s.internValues(ctx, tx, types.DimensionTag, agg.Tags)
	if err != nil {
		return err
	}
	tagLinks := make([]*types.SampleHasTag, 0, len(tagIDs))
	for _, id := range tagIDs {
		tagLinks = append(tagLinks, &types.SampleHasTag{SampleID: sample.ID, TagID: id})
	}
	if err := s.sampleRepo.CreateTagLinks(ctx, tx, tagLinks); err != nil {
		return err
	}

	fileNameIDs, err := s.internValues(ctx, tx, types.DimensionFileName, agg.FileNames)
	if err != nil {
		return err
	}
	fileNameLinks := make([]*types.SampleHasFileName, 0, len(fileNameIDs))
	for _, id := range fileNameIDs {
		fileNameLinks = append(fileNameLinks, &types.SampleHasFileName{SampleID: sample.ID, FileNameID: id})
	}
	return s.sampleRepo.CreateFileNameLinks(ctx, tx, fileNameLinks)
}

// internValues collapses repeated values to one id each; the link tables
// key on (sample_id, dimension_id) and a duplicate row would abort the
// whole submission.
func (s *ingestService) internValues(ctx context.Context, tx *gorm.DB, table string, values []string) ([]int64, error) {
	ids := make([]int64, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, value := range values {
		if seen[value] {
			continue
		}
		seen[value] = true
		id, err := s.dimensionRepo.Ensure(ctx, tx, table, value)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *ingestService) insertDebugDirectories(ctx context.Context, tx *gorm.DB, sampleID int64, entries []types.DebugDirectoryEntry) error {
	rows := make([]*types.DebugDirectory, 0, len(entries))
	for _, entry := range entries {
		row := &types.DebugDirectory{
			SampleID:  sampleID,
			Age:       entry.Age,
			Signature: entry.Signature,
			GUID:      entry.GUID,
		}
		if entry.Timestamp != nil {
			timestamp := entry.Timestamp.Time
			row.Timestamp = &timestamp
		}
		if entry.Path != nil {
			pathID, err := s.dimensionRepo.Ensure(ctx, tx, types.DimensionPath, *entry.Path)
			if err != nil {
				return err
			}
			row.PathID = &pathID
		}
		rows = append(rows, row)
	}
	return s.sampleRepo.CreateDebugDirectories(ctx, tx, rows)
}

func (s *ingestService) insertExports(ctx context.Context, tx *gorm.DB, sampleID int64, entries []types.ExportEntry) error {
	rows := make([]*types.ExportSymbol, 0, len(entries))
	for _, entry := range entries {
		row := &types.ExportSymbol{
			SampleID: sampleID,
			Address:  entry.Address,
			Ordinal:  entry.Ordinal,
		}
		if entry.Name != nil {
			nameID, err := s.dimensionRepo.Ensure(ctx, tx, types.DimensionExportSymbolName, *entry.Name)
			if err != nil {
				return err
			}
			row.NameID = &nameID
		}
		rows = append(rows, row)
	}
	return s.sampleRepo.CreateExports(ctx, tx, rows)
}

func (s *ingestService) insertImports(ctx context.Context, tx *gorm.DB, sampleID int64, entries []types.ImportEntry) error {
	rows := make([]*types.Import, 0, len(entries))
	for _, entry := range entries {
		row := &types.Import{
			SampleID: sampleID,
			Address:  entry.Address,
		}
		if entry.DLLName != nil {
			dllNameID, err := s.dimensionRepo.Ensure(ctx, tx, types.DimensionDLLName, *entry.DLLName)
			if err != nil {
				return err
			}
			row.DLLNameID = &dllNameID
		}
		if entry.Name != nil {
			nameID, err := s.dimensionRepo.Ensure(ctx, tx, types.DimensionImportName, *entry.Name)
			if err != nil {
				return err
			}
			row.NameID = &nameID
		}
		rows = append(rows, row)
	}
	return s.sampleRepo.CreateImports(ctx, tx, rows)
}

// insertSections stamps sort_order with the submission index: read-back
// must reproduce submission order exactly.
func (s *ingestService) insertSections(ctx context.Context, tx *gorm.DB, sampleID int64, entries []types.SectionEntry) error {
	rows := make([]*types.Section, 0, len(entries))
	for i, entry := range entries {
		row := &types.Section{
			SampleID:       sampleID,
			HashSHA256:     entry.HashSHA256,
			VirtualAddress: entry.VirtualAddress,
			VirtualSize:    entry.VirtualSize,
			RawSize:        entry.RawSize,
			Entropy:        entry.Entropy,
			SSDeep:         entry.SSDeep,
			SortOrder:      i,
		}
		if entry.Name != nil {
			nameID, err := s.dimensionRepo.Ensure(ctx, tx, types.DimensionSectionName, *entry.Name)
			if err != nil {
				return err
			}
			row.NameID = &nameID
		}
		rows = append(rows, row)
	}
	return s.sampleRepo.CreateSections(ctx, tx, rows)
}

func (s *ingestService) insertResources(ctx context.Context, tx *gorm.DB, sampleID int64, entries []types.ResourceEntry) error {
	rows := make([]*types.Resource, 0, len(entries))
	for i, entry := range entries {
		row := &types.Resource{
			SampleID:   sampleID,
			HashSHA256: entry.HashSHA256,
			Offset:     entry.Offset,
			Size:       entry.Size,
			ActualSize: entry.ActualSize,
			Entropy:    entry.Entropy,
			SSDeep:     entry.SSDeep,
			SortOrder:  i,
		}
		typePairID, err := s.ensurePair(ctx, tx, types.PairDimensionResourceType, entry.TypeID, entry.TypeStr)
		if err != nil {
			return err
		}
		row.TypePairID = typePairID
		namePairID, err := s.ensurePair(ctx, tx, types.PairDimensionResourceName, entry.NameID, entry.NameStr)
		if err != nil {
			return err
		}
		row.NamePairID = namePairID
		languagePairID, err := s.ensurePair(ctx, tx, types.PairDimensionResourceLanguage, entry.LanguageID, entry.LanguageStr)
		if err != nil {
			return err
		}
		row.LanguagePairID = languagePairID
		rows = append(rows, row)
	}
	return s.sampleRepo.CreateResources(ctx, tx, rows)
}

// ensurePair interns a (numeric, string) dimension pair; a fully absent
// pair is stored as no reference at all.
func (s *ingestService) ensurePair(ctx context.Context, tx *gorm.DB, table string, contentID *int64, contentStr *string) (*int64, error) {
	if contentID == nil && contentStr == nil {
		return nil, nil
	}
	id, err := s.dimensionRepo.EnsurePair(ctx, tx, table, contentID, contentStr)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (s *ingestService) insertFunctions(ctx context.Context, tx *gorm.DB, sampleID int64, entries []types.FunctionEntry) error {
	rows := make([]*types.SampleFunction, 0, len(entries))
	for _, entry := range entries {
		row := &types.SampleFunction{
			SampleID:             sampleID,
			Offset:               entry.Offset,
			Size:                 entry.Size,
			RealSize:             entry.RealSize,
			Name:                 entry.Name,
			Calltype:             entry.Calltype,
			CC:                   entry.CC,
			Cost:                 entry.Cost,
			EBBs:                 entry.EBBs,
			Edges:                entry.Edges,
			Indegree:             entry.Indegree,
			Nargs:                entry.Nargs,
			NBBs:                 entry.NBBs,
			Nlocals:              entry.Nlocals,
			Outdegree:            entry.Outdegree,
			Type:                 entry.Type,
			OpcodesSHA256:        entry.OpcodesSHA256,
			OpcodesCRC32:         entry.OpcodesCRC32,
			CleanedOpcodesSHA256: entry.CleanedOpcodesSHA256,
			CleanedOpcodesCRC32:  entry.CleanedOpcodesCRC32,
		}
		if len(entry.Opcodes) > 0 {
			row.Opcodes = datatypes.JSON(entry.Opcodes)
		}
		rows = append(rows, row)
	}
	return s.sampleRepo.CreateFunctions(ctx, tx, rows)
}
