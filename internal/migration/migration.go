package migration

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/campusfin/clubsite/internal/media"
	"github.com/campusfin/clubsite/internal/models"
)

// Store is the entity repository as the migration sees it: read the full
// current row set of a type, or replace it wholesale.
type Store interface {
	LoadEntities(ctx context.Context, entityType models.EntityType) ([]models.ImageEntity, error)
	ReplaceEntities(ctx context.Context, entityType models.EntityType, entities []models.ImageEntity) error
}

// Uploader moves one decoded image into managed storage and returns its
// permanent public URL.
type Uploader interface {
	Upload(ctx context.Context, payload []byte, contentType, pathHint string) (string, error)
}

// Orchestrator relocates every inline-encoded image across the migratable
// collections into managed storage, rewriting references in place. Re-runs
// are no-ops for rows already rewritten: the detection predicate is the
// data-URI prefix, which managed and external URLs never match.
type Orchestrator struct {
	store    Store
	uploader Uploader
	types    []models.EntityType

	// Progress, when set, is called after each type's pass with the number
	// of completed types and the total.
	Progress func(completed, total int)
}

func New(store Store, uploader Uploader) *Orchestrator {
	return &Orchestrator{
		store:    store,
		uploader: uploader,
		types:    models.MigratableTypes,
	}
}

type uploadResult struct {
	index int
	url   string
	err   error
}

// Run executes one full migration pass. Types are processed sequentially in
// fixed order; uploads within a type are issued concurrently and awaited
// together before the type's single bulk write. Failures never cross a
// boundary: a bad entity is recorded and skipped, a failed type pass is
// recorded and the next type still runs.
func (o *Orchestrator) Run(ctx context.Context) *models.MigrationSummary {
	summary := &models.MigrationSummary{
		Moved:     make(map[models.EntityType]int),
		StartedAt: time.Now(),
	}

	for i, entityType := range o.types {
		o.runType(ctx, entityType, summary)
		if o.Progress != nil {
			o.Progress(i+1, len(o.types))
		}
	}

	summary.FinishedAt = time.Now()
	return summary
}

func (o *Orchestrator) runType(ctx context.Context, entityType models.EntityType, summary *models.MigrationSummary) {
	summary.Moved[entityType] = 0

	entities, err := o.store.LoadEntities(ctx, entityType)
	if err != nil {
		summary.Errors = append(summary.Errors, models.MigrationError{
			EntityType: entityType,
			Message:    fmt.Sprintf("loading entities: %v", err),
		})
		return
	}

	var migratable []int
	for i, entity := range entities {
		if media.IsInline(entity.ImageValue()) {
			migratable = append(migratable, i)
		}
	}
	if len(migratable) == 0 {
		return
	}

	results := make(chan uploadResult, len(migratable))
	var wg sync.WaitGroup
	for _, index := range migratable {
		wg.Add(1)
		go func(index int, entity models.ImageEntity) {
			defer wg.Done()
			url, err := o.migrateOne(ctx, entityType, entity)
			results <- uploadResult{index: index, url: url, err: err}
		}(index, entities[index])
	}
	wg.Wait()
	close(results)

	// All uploads have settled; only now may the bulk write happen.
	moved := 0
	var entityErrors []models.MigrationError
	for result := range results {
		entity := entities[result.index]
		if result.err != nil {
			// Field stays at its original inline value so a re-run
			// picks the entity up again.
			entityErrors = append(entityErrors, models.MigrationError{
				EntityType: entityType,
				EntityID:   entity.EntityID(),
				Message:    result.err.Error(),
			})
			continue
		}
		entity.SetImageValue(result.url)
		moved++
	}
	summary.Errors = append(summary.Errors, entityErrors...)

	if moved == 0 {
		return
	}

	// The write must carry the entire set, untouched rows included, or the
	// bulk-replace contract drops them.
	if err := o.store.ReplaceEntities(ctx, entityType, entities); err != nil {
		summary.Errors = append(summary.Errors, models.MigrationError{
			EntityType: entityType,
			Message:    fmt.Sprintf("persisting %d migrated entities: %v", moved, err),
		})
		return
	}

	summary.Moved[entityType] = moved
	log.Printf("Migrated %d %s image(s) to managed storage", moved, entityType)
}

func (o *Orchestrator) migrateOne(ctx context.Context, entityType models.EntityType, entity models.ImageEntity) (string, error) {
	payload, contentType, err := media.DecodeDataURI(entity.ImageValue())
	if err != nil {
		return "", err
	}

	ext := media.ExtensionForContentType(contentType)
	pathHint := fmt.Sprintf("%s-%s%s", entityType, entity.EntityID(), ext)

	url, err := o.uploader.Upload(ctx, payload, contentType, pathHint)
	if err != nil {
		return "", err
	}
	return url, nil
}

// Describe renders the operator-facing summary line.
func Describe(summary *models.MigrationSummary) string {
	if len(summary.Errors) == 0 {
		return fmt.Sprintf("Moved %d image(s) to managed storage.", summary.TotalMoved())
	}
	return fmt.Sprintf(
		"Moved %d image(s) to managed storage; %d item(s) were skipped due to errors. Re-running is safe.",
		summary.TotalMoved(), len(summary.Errors),
	)
}
