package main

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kurasuta/kurasuta-backend/internal/db"
	"github.com/kurasuta/kurasuta-backend/internal/logger"
	"github.com/kurasuta/kurasuta-backend/internal/repos"
	"github.com/kurasuta/kurasuta-backend/internal/services"
	"github.com/kurasuta/kurasuta-backend/internal/types"
	"github.com/kurasuta/kurasuta-backend/internal/utils"
)

// intake walks a list of sample files, places each into the content
// addressed store and enqueues a metadata task for it. Entries are read
// from the file given as the first argument, or from stdin.
func main() {
	taskType := flag.String("type", types.TaskTypeMetadata, "task type to enqueue")
	source := flag.String("source", "", "sample source identifier recorded on each task")
	fileName := flag.String("file-name", "", "original file name recorded on each task (single-file runs)")
	hashesOnly := flag.Bool("hashes", false, "entries are sha256 hashes of already stored samples, not paths")
	keepSource := flag.Bool("keep", false, "copy files into the store instead of moving them")
	workers := flag.Int("workers", 4, "concurrent placements")
	flag.Parse()

	log, err := logger.New("production")
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if !types.IsSupportedTaskType(*taskType) {
		log.Fatal("Unsupported task type", "type", *taskType)
	}

	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	thePG := postgresService.DB()

	store, err := services.NewSampleStore(os.Getenv("KURASUTA_STORAGE"), log)
	if err != nil {
		log.Fatal("Storage init failed", "error", err)
	}

	taskRepo := repos.NewTaskRepo(thePG, log)
	consumerRepo := repos.NewTaskConsumerRepo(thePG, log)
	sourceRepo := repos.NewSampleSourceRepo(thePG, log)
	leaseTTL := time.Duration(utils.GetEnvAsInt("TASK_LEASE_TTL", 3600, log)) * time.Second
	taskService := services.NewTaskService(thePG, log, taskRepo, consumerRepo, leaseTTL)

	ctx := context.Background()

	var sourceID *int64
	if *source != "" {
		rec, err := sourceRepo.ByIdentifier(ctx, nil, *source)
		if err != nil {
			log.Fatal("Source lookup failed", "error", err)
		}
		if rec == nil {
			log.Fatal("Unknown sample source identifier", "identifier", *source)
		}
		sourceID = &rec.ID
	}

	entries, err := readEntries(flag.Arg(0))
	if err != nil {
		log.Fatal("Reading entry list failed", "error", err)
	}
	if len(entries) == 0 {
		log.Info("No entries, nothing to do")
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*workers)
	for _, entry := range entries {
		g.Go(func() error {
			hash := entry
			var names []string
			if !*hashesOnly {
				var err error
				hash, err = placeFile(store, entry, !*keepSource)
				if err != nil {
					return fmt.Errorf("placing %q: %w", entry, err)
				}
				if *fileName != "" {
					names = []string{*fileName}
				}
			}
			meta := &types.TaskMeta{FileNames: names, SourceID: sourceID}
			task, err := taskService.Create(gctx, *taskType, hash, meta)
			if err != nil {
				return fmt.Errorf("enqueueing %s: %w", hash, err)
			}
			log.Info("Task enqueued", "id", task.ID, "hash_sha256", hash)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatal("Intake failed", "error", err)
	}
	log.Info("Intake complete", "count", len(entries))
}

func readEntries(path string) ([]string, error) {
	in := os.Stdin
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		in = f
	}
	var entries []string
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		entries = append(entries, line)
	}
	return entries, scanner.Err()
}

// placeFile hashes the file and moves it to its canonical store path.
func placeFile(store *services.SampleStore, path string, move bool) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		f.Close()
		return "", err
	}
	f.Close()
	hash := hex.EncodeToString(h.Sum(nil))

	if move {
		if err := store.PlaceFile(hash, path, true); err != nil {
			return "", err
		}
		return hash, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if err := store.EnsurePlaced(hash, content, true); err != nil {
		return "", err
	}
	return hash, nil
}
