package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/kurasuta/kurasuta-backend/internal/logger"
	"github.com/kurasuta/kurasuta-backend/internal/types"
	"github.com/kurasuta/kurasuta-backend/internal/utils"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
	postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
	postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
	postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
	postgresName := utils.GetEnv("POSTGRES_NAME", "kurasuta", log)

	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		postgresUser, postgresPassword, postgresHost, postgresPort, postgresName,
	)

	serviceLog.Info("Connecting to Postgres...", "host", postgresHost, "database", postgresName)
	gormDB, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		serviceLog.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	return &PostgresService{db: gormDB, log: serviceLog}, nil
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}

// MigrateAll creates the entity tables through gorm and the dimension/pair
// lookup tables through DDL. Dimension tables share one shape, so they are
// not modelled as individual structs.
func (s *PostgresService) MigrateAll() error {
	s.log.Info("Migrating entity tables...")
	err := s.db.AutoMigrate(
		&types.Sample{},
		&types.ByteHistogram{},
		&types.Section{},
		&types.Resource{},
		&types.ExportSymbol{},
		&types.Import{},
		&types.DebugDirectory{},
		&types.SampleFunction{},
		&types.SampleHasTag{},
		&types.SampleHasFileName{},
		&types.SampleHasPeyd{},
		&types.SampleHasHeuristicIOC{},
		&types.SampleSource{},
		&types.Task{},
		&types.TaskConsumer{},
		&types.APIKey{},
	)
	if err != nil {
		s.log.Error("Entity table migration failed", "error", err)
		return err
	}

	s.log.Info("Migrating dimension tables...")
	for _, table := range types.DimensionTables() {
		ddl := fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %q (id BIGSERIAL PRIMARY KEY, content TEXT NOT NULL UNIQUE)`,
			table,
		)
		if err := s.db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("failed to create dimension table %s: %w", table, err)
		}
	}
	for _, table := range types.PairDimensionTables() {
		ddl := fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %q (id BIGSERIAL PRIMARY KEY, content_id BIGINT, content_str TEXT)`,
			table,
		)
		if err := s.db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("failed to create pair table %s: %w", table, err)
		}
		// Both halves participate in identity and either may be null, so
		// uniqueness has to go through COALESCE.
		idx := fmt.Sprintf(
			`CREATE UNIQUE INDEX IF NOT EXISTS %s_content_uidx ON %q ((COALESCE(content_id, -1)), (COALESCE(content_str, '')))`,
			table, table,
		)
		if err := s.db.Exec(idx).Error; err != nil {
			return fmt.Errorf("failed to create unique index on %s: %w", table, err)
		}
	}

	s.log.Info("Configuring foreign key relationships...")
	foreignKeys := []struct {
		table, constraint, column, refTable string
		cascade                             bool
	}{
		{"section", "fk_section_sample_id", "sample_id", "sample", true},
		{"resource", "fk_resource_sample_id", "sample_id", "sample", true},
		{"export_symbol", "fk_export_symbol_sample_id", "sample_id", "sample", true},
		{"import", "fk_import_sample_id", "sample_id", "sample", true},
		{"debug_directory", "fk_debug_directory_sample_id", "sample_id", "sample", true},
		{"sample_function", "fk_sample_function_sample_id", "sample_id", "sample", true},
		{"sample_has_tag", "fk_sample_has_tag_sample_id", "sample_id", "sample", true},
		{"sample_has_file_name", "fk_sample_has_file_name_sample_id", "sample_id", "sample", true},
		{"sample_has_peyd", "fk_sample_has_peyd_sample_id", "sample_id", "sample", true},
		{"sample_has_heuristic_ioc", "fk_sample_has_heuristic_ioc_sample_id", "sample_id", "sample", true},
		{"sample", "fk_sample_byte_histogram_id", "byte_histogram_id", "byte_histogram", false},
		{"sample", "fk_sample_source_id", "source_id", "sample_source", false},
		{"task", "fk_task_consumer_id", "consumer_id", "task_consumer", false},
	}
	for _, fk := range foreignKeys {
		onDelete := ""
		if fk.cascade {
			onDelete = " ON DELETE CASCADE"
		}
		ddl := fmt.Sprintf(`
			DO $$ BEGIN
				ALTER TABLE %q
				ADD CONSTRAINT %q
				FOREIGN KEY (%q) REFERENCES %q("id")%s;
			EXCEPTION WHEN duplicate_object THEN NULL;
			END $$;
		`, fk.table, fk.constraint, fk.column, fk.refTable, onDelete)
		if err := s.db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("failed to add %s: %w", fk.constraint, err)
		}
	}
	return nil
}
