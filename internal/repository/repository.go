package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/campusfin/clubsite/internal/models"
)

// Repository persists the content collections. Writes follow the admin
// panel's bulk-replace contract: each save substitutes the full row set of
// one type inside a single transaction, so readers never observe a
// partially-written or empty table. Rows are written with the timestamps
// they carry (zero times are stamped with now); bumping updated_at is the
// caller's decision, so a pass that rewrites only some rows leaves the rest
// byte-for-byte as it loaded them.
type Repository struct {
	conn *sql.DB
}

func New(conn *sql.DB) *Repository {
	return &Repository{conn: conn}
}

const timeFormat = time.RFC3339

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return t.UTC().Format(timeFormat)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(timeFormat, value)
	if err != nil {
		// Rows written by sqlite defaults use its own datetime format.
		parsed, err = time.Parse("2006-01-02 15:04:05", value)
		if err != nil {
			return time.Time{}, fmt.Errorf("parsing time %q: %w", value, err)
		}
	}
	return parsed, nil
}

func (r *Repository) HeroSlides(ctx context.Context) ([]*models.HeroSlide, error) {
	rows, err := r.conn.QueryContext(ctx, `
		SELECT id, title, subtitle, cta_label, cta_url, sort_order,
		       image_url, media_key, storage_provider, created_at, updated_at
		FROM hero_slides
		ORDER BY sort_order, id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying hero slides: %w", err)
	}
	defer rows.Close()

	var slides []*models.HeroSlide
	for rows.Next() {
		var slide models.HeroSlide
		var createdAt, updatedAt string
		if err := rows.Scan(
			&slide.ID, &slide.Title, &slide.Subtitle, &slide.CTALabel, &slide.CTAURL,
			&slide.SortOrder, &slide.ImageURL, &slide.MediaKey, &slide.StorageProvider,
			&createdAt, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning hero slide: %w", err)
		}
		if slide.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if slide.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		slides = append(slides, &slide)
	}
	return slides, rows.Err()
}

func (r *Repository) ReplaceHeroSlides(ctx context.Context, slides []*models.HeroSlide) error {
	return r.replace(ctx, "hero_slides", func(tx *sql.Tx) error {
		for _, slide := range slides {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO hero_slides
				(id, title, subtitle, cta_label, cta_url, sort_order,
				 image_url, media_key, storage_provider, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`,
				slide.ID, slide.Title, slide.Subtitle, slide.CTALabel, slide.CTAURL,
				slide.SortOrder, slide.ImageURL, slide.MediaKey, slide.StorageProvider,
				formatTime(slide.CreatedAt), formatTime(slide.UpdatedAt),
			); err != nil {
				return fmt.Errorf("inserting hero slide %s: %w", slide.ID, err)
			}
		}
		return nil
	})
}

func (r *Repository) TeamMembers(ctx context.Context) ([]*models.TeamMember, error) {
	rows, err := r.conn.QueryContext(ctx, `
		SELECT id, name, position, linkedin_url, sort_order,
		       image_url, media_key, storage_provider, created_at, updated_at
		FROM team_members
		ORDER BY sort_order, id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying team members: %w", err)
	}
	defer rows.Close()

	var members []*models.TeamMember
	for rows.Next() {
		var member models.TeamMember
		var createdAt, updatedAt string
		if err := rows.Scan(
			&member.ID, &member.Name, &member.Position, &member.LinkedInURL,
			&member.SortOrder, &member.ImageURL, &member.MediaKey, &member.StorageProvider,
			&createdAt, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning team member: %w", err)
		}
		if member.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if member.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		members = append(members, &member)
	}
	return members, rows.Err()
}

func (r *Repository) ReplaceTeamMembers(ctx context.Context, members []*models.TeamMember) error {
	return r.replace(ctx, "team_members", func(tx *sql.Tx) error {
		for _, member := range members {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO team_members
				(id, name, position, linkedin_url, sort_order,
				 image_url, media_key, storage_provider, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`,
				member.ID, member.Name, member.Position, member.LinkedInURL,
				member.SortOrder, member.ImageURL, member.MediaKey, member.StorageProvider,
				formatTime(member.CreatedAt), formatTime(member.UpdatedAt),
			); err != nil {
				return fmt.Errorf("inserting team member %s: %w", member.ID, err)
			}
		}
		return nil
	})
}

func (r *Repository) Events(ctx context.Context) ([]*models.Event, error) {
	rows, err := r.conn.QueryContext(ctx, `
		SELECT id, title, description, venue, starts_at, registration_url,
		       image_url, media_key, storage_provider, created_at, updated_at
		FROM events
		ORDER BY starts_at DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		var event models.Event
		var startsAt, createdAt, updatedAt string
		if err := rows.Scan(
			&event.ID, &event.Title, &event.Description, &event.Venue, &startsAt,
			&event.RegistrationURL, &event.ImageURL, &event.MediaKey, &event.StorageProvider,
			&createdAt, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		if event.StartsAt, err = parseTime(startsAt); err != nil {
			return nil, err
		}
		if event.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if event.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		events = append(events, &event)
	}
	return events, rows.Err()
}

func (r *Repository) ReplaceEvents(ctx context.Context, events []*models.Event) error {
	return r.replace(ctx, "events", func(tx *sql.Tx) error {
		for _, event := range events {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO events
				(id, title, description, venue, starts_at, registration_url,
				 image_url, media_key, storage_provider, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`,
				event.ID, event.Title, event.Description, event.Venue,
				formatTime(event.StartsAt), event.RegistrationURL,
				event.ImageURL, event.MediaKey, event.StorageProvider,
				formatTime(event.CreatedAt), formatTime(event.UpdatedAt),
			); err != nil {
				return fmt.Errorf("inserting event %s: %w", event.ID, err)
			}
		}
		return nil
	})
}

func (r *Repository) Notices(ctx context.Context) ([]*models.Notice, error) {
	rows, err := r.conn.QueryContext(ctx, `
		SELECT id, title, body, pinned, published_at,
		       image_url, media_key, storage_provider, created_at, updated_at
		FROM notices
		ORDER BY pinned DESC, published_at DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying notices: %w", err)
	}
	defer rows.Close()

	var notices []*models.Notice
	for rows.Next() {
		var notice models.Notice
		var publishedAt, createdAt, updatedAt string
		if err := rows.Scan(
			&notice.ID, &notice.Title, &notice.Body, &notice.Pinned, &publishedAt,
			&notice.ImageURL, &notice.MediaKey, &notice.StorageProvider,
			&createdAt, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning notice: %w", err)
		}
		if notice.PublishedAt, err = parseTime(publishedAt); err != nil {
			return nil, err
		}
		if notice.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if notice.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		notices = append(notices, &notice)
	}
	return notices, rows.Err()
}

func (r *Repository) ReplaceNotices(ctx context.Context, notices []*models.Notice) error {
	return r.replace(ctx, "notices", func(tx *sql.Tx) error {
		for _, notice := range notices {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO notices
				(id, title, body, pinned, published_at,
				 image_url, media_key, storage_provider, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`,
				notice.ID, notice.Title, notice.Body, notice.Pinned,
				formatTime(notice.PublishedAt),
				notice.ImageURL, notice.MediaKey, notice.StorageProvider,
				formatTime(notice.CreatedAt), formatTime(notice.UpdatedAt),
			); err != nil {
				return fmt.Errorf("inserting notice %s: %w", notice.ID, err)
			}
		}
		return nil
	})
}

func (r *Repository) Magazines(ctx context.Context) ([]*models.Magazine, error) {
	rows, err := r.conn.QueryContext(ctx, `
		SELECT id, title, issue_date, pdf_url, cover_url, created_at, updated_at
		FROM magazines
		ORDER BY issue_date DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying magazines: %w", err)
	}
	defer rows.Close()

	var magazines []*models.Magazine
	for rows.Next() {
		var magazine models.Magazine
		var issueDate, createdAt, updatedAt string
		if err := rows.Scan(
			&magazine.ID, &magazine.Title, &issueDate, &magazine.PDFURL,
			&magazine.CoverURL, &createdAt, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning magazine: %w", err)
		}
		if magazine.IssueDate, err = parseTime(issueDate); err != nil {
			return nil, err
		}
		if magazine.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if magazine.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		magazines = append(magazines, &magazine)
	}
	return magazines, rows.Err()
}

func (r *Repository) ReplaceMagazines(ctx context.Context, magazines []*models.Magazine) error {
	return r.replace(ctx, "magazines", func(tx *sql.Tx) error {
		for _, magazine := range magazines {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO magazines
				(id, title, issue_date, pdf_url, cover_url, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`,
				magazine.ID, magazine.Title, formatTime(magazine.IssueDate),
				magazine.PDFURL, magazine.CoverURL,
				formatTime(magazine.CreatedAt), formatTime(magazine.UpdatedAt),
			); err != nil {
				return fmt.Errorf("inserting magazine %s: %w", magazine.ID, err)
			}
		}
		return nil
	})
}

// replace runs delete-all-then-insert-all for one table in a single
// transaction.
func (r *Repository) replace(ctx context.Context, table string, insert func(tx *sql.Tx) error) error {
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting %s replace: %w", table, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil { // #nosec G202 -- table names are compile-time constants.
		return fmt.Errorf("clearing %s: %w", table, err)
	}

	if err := insert(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing %s replace: %w", table, err)
	}
	return nil
}

// LoadEntities returns one migratable collection as the migration's
// normalized view.
func (r *Repository) LoadEntities(ctx context.Context, entityType models.EntityType) ([]models.ImageEntity, error) {
	switch entityType {
	case models.EntityHeroSlides:
		slides, err := r.HeroSlides(ctx)
		if err != nil {
			return nil, err
		}
		entities := make([]models.ImageEntity, len(slides))
		for i, slide := range slides {
			entities[i] = slide
		}
		return entities, nil
	case models.EntityTeamMembers:
		members, err := r.TeamMembers(ctx)
		if err != nil {
			return nil, err
		}
		entities := make([]models.ImageEntity, len(members))
		for i, member := range members {
			entities[i] = member
		}
		return entities, nil
	case models.EntityEvents:
		events, err := r.Events(ctx)
		if err != nil {
			return nil, err
		}
		entities := make([]models.ImageEntity, len(events))
		for i, event := range events {
			entities[i] = event
		}
		return entities, nil
	case models.EntityNotices:
		notices, err := r.Notices(ctx)
		if err != nil {
			return nil, err
		}
		entities := make([]models.ImageEntity, len(notices))
		for i, notice := range notices {
			entities[i] = notice
		}
		return entities, nil
	default:
		return nil, fmt.Errorf("entity type %s is not migratable", entityType)
	}
}

// ReplaceEntities writes back a full migratable collection. The slice must
// contain every row of the type, modified or not; anything missing is lost
// by the bulk-replace contract.
func (r *Repository) ReplaceEntities(ctx context.Context, entityType models.EntityType, entities []models.ImageEntity) error {
	switch entityType {
	case models.EntityHeroSlides:
		slides := make([]*models.HeroSlide, 0, len(entities))
		for _, entity := range entities {
			slide, ok := entity.(*models.HeroSlide)
			if !ok {
				return fmt.Errorf("expected *models.HeroSlide, got %T", entity)
			}
			slides = append(slides, slide)
		}
		return r.ReplaceHeroSlides(ctx, slides)
	case models.EntityTeamMembers:
		members := make([]*models.TeamMember, 0, len(entities))
		for _, entity := range entities {
			member, ok := entity.(*models.TeamMember)
			if !ok {
				return fmt.Errorf("expected *models.TeamMember, got %T", entity)
			}
			members = append(members, member)
		}
		return r.ReplaceTeamMembers(ctx, members)
	case models.EntityEvents:
		events := make([]*models.Event, 0, len(entities))
		for _, entity := range entities {
			event, ok := entity.(*models.Event)
			if !ok {
				return fmt.Errorf("expected *models.Event, got %T", entity)
			}
			events = append(events, event)
		}
		return r.ReplaceEvents(ctx, events)
	case models.EntityNotices:
		notices := make([]*models.Notice, 0, len(entities))
		for _, entity := range entities {
			notice, ok := entity.(*models.Notice)
			if !ok {
				return fmt.Errorf("expected *models.Notice, got %T", entity)
			}
			notices = append(notices, notice)
		}
		return r.ReplaceNotices(ctx, notices)
	default:
		return fmt.Errorf("entity type %s is not migratable", entityType)
	}
}
