package types

// Dimension tables map a recurring value to a stable integer id so the same
// string is never stored twice across the corpus. Rows are append-only: a
// value is never updated or deleted once it has an id.
//
// Table names end up interpolated into SQL, so only the names listed here
// are ever accepted.
const (
	DimensionMagic            = "magic"
	DimensionExportName       = "export_name"
	DimensionPath             = "path"
	DimensionSectionName      = "section_name"
	DimensionDLLName          = "dll_name"
	DimensionImportName       = "import_name"
	DimensionExportSymbolName = "export_symbol_name"
	DimensionIOC              = "ioc"
	DimensionTag              = "tag"
	DimensionFileName         = "file_name"
	DimensionPeyd             = "peyd"
)

// Pair dimensions key on (content_id, content_str) jointly; either half may
// be absent.
const (
	PairDimensionResourceType     = "resource_type_pair"
	PairDimensionResourceName     = "resource_name_pair"
	PairDimensionResourceLanguage = "resource_language_pair"
)

var dimensionTables = map[string]bool{
	DimensionMagic:            true,
	DimensionExportName:       true,
	DimensionPath:             true,
	DimensionSectionName:      true,
	DimensionDLLName:          true,
	DimensionImportName:       true,
	DimensionExportSymbolName: true,
	DimensionIOC:              true,
	DimensionTag:              true,
	DimensionFileName:         true,
	DimensionPeyd:             true,
}

var pairDimensionTables = map[string]bool{
	PairDimensionResourceType:     true,
	PairDimensionResourceName:     true,
	PairDimensionResourceLanguage: true,
}

func IsDimensionTable(name string) bool { return dimensionTables[name] }

func IsPairDimensionTable(name string) bool { return pairDimensionTables[name] }

func DimensionTables() []string {
	return []string{
		DimensionMagic,
		DimensionExportName,
		DimensionPath,
		DimensionSectionName,
		DimensionDLLName,
		DimensionImportName,
		DimensionExportSymbolName,
		DimensionIOC,
		DimensionTag,
		DimensionFileName,
		DimensionPeyd,
	}
}

func PairDimensionTables() []string {
	return []string{
		PairDimensionResourceType,
		PairDimensionResourceName,
		PairDimensionResourceLanguage,
	}
}
