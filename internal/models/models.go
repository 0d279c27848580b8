package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// EntityType identifies a content collection managed by the admin panel.
type EntityType string

const (
	EntityHeroSlides  EntityType = "hero"
	EntityTeamMembers EntityType = "team"
	EntityEvents      EntityType = "events"
	EntityNotices     EntityType = "notices"
	EntityMagazines   EntityType = "magazines"
)

// MigratableTypes lists the collections whose image fields may still hold
// inline-encoded data, in the fixed order the migration processes them.
var MigratableTypes = []EntityType{
	EntityHeroSlides,
	EntityTeamMembers,
	EntityEvents,
	EntityNotices,
}

// StorageProviderR2 marks an image field whose bytes live in managed storage
// under media_key. Absent or any other value means the raw image_url string
// is authoritative (inline data URI or third-party URL).
const StorageProviderR2 = "r2"

// UserRole defines the access level for a user.
type UserRole string

const (
	RoleAdmin  UserRole = "admin"
	RoleEditor UserRole = "editor"
	RoleViewer UserRole = "viewer"
)

func (e EntityType) Valid() bool {
	switch e {
	case EntityHeroSlides, EntityTeamMembers, EntityEvents, EntityNotices, EntityMagazines:
		return true
	}
	return false
}

func (e EntityType) String() string {
	return string(e)
}

// Migratable reports whether the type participates in the media migration.
func (e EntityType) Migratable() bool {
	for _, t := range MigratableTypes {
		if t == e {
			return true
		}
	}
	return false
}

// Valid reports whether the role is recognized.
func (r UserRole) Valid() bool {
	return r == RoleAdmin || r == RoleEditor || r == RoleViewer
}

// String returns the string value for the role.
func (r UserRole) String() string {
	return string(r)
}

func (e EntityType) Value() (driver.Value, error) {
	if !e.Valid() {
		return nil, fmt.Errorf("invalid entity type: %s", e)
	}
	return e.String(), nil
}

func (e *EntityType) Scan(value interface{}) error {
	if value == nil {
		return fmt.Errorf("cannot scan NULL into EntityType")
	}

	str, ok := value.(string)
	if !ok {
		return fmt.Errorf("cannot scan %T into EntityType", value)
	}

	entityType := EntityType(str)
	if !entityType.Valid() {
		return fmt.Errorf("invalid entity type: %s", str)
	}

	*e = entityType
	return nil
}

// ImageEntity is the view of a content row the media migration needs: a
// stable identifier plus read/write access to the raw image field.
type ImageEntity interface {
	EntityID() string
	ImageValue() string
	SetImageValue(value string)
}

type HeroSlide struct {
	ID        string    `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	Subtitle  *string   `json:"subtitle,omitempty" db:"subtitle"`
	CTALabel  *string   `json:"cta_label,omitempty" db:"cta_label"`
	CTAURL    *string   `json:"cta_url,omitempty" db:"cta_url"`
	SortOrder int       `json:"sort_order" db:"sort_order"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	ImageField
}

type TeamMember struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Position    string    `json:"position" db:"position"`
	LinkedInURL *string   `json:"linkedin_url,omitempty" db:"linkedin_url"`
	SortOrder   int       `json:"sort_order" db:"sort_order"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`

	ImageField
}

type Event struct {
	ID              string    `json:"id" db:"id"`
	Title           string    `json:"title" db:"title"`
	Description     *string   `json:"description,omitempty" db:"description"`
	Venue           *string   `json:"venue,omitempty" db:"venue"`
	StartsAt        time.Time `json:"starts_at" db:"starts_at"`
	RegistrationURL *string   `json:"registration_url,omitempty" db:"registration_url"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`

	ImageField
}

type Notice struct {
	ID          string    `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Body        *string   `json:"body,omitempty" db:"body"`
	Pinned      bool      `json:"pinned" db:"pinned"`
	PublishedAt time.Time `json:"published_at" db:"published_at"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`

	ImageField
}

// Magazine issues link to externally hosted PDFs and covers; they are not a
// migratable type.
type Magazine struct {
	ID        string    `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	IssueDate time.Time `json:"issue_date" db:"issue_date"`
	PDFURL    string    `json:"pdf_url" db:"pdf_url"`
	CoverURL  *string   `json:"cover_url,omitempty" db:"cover_url"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ImageField is the persisted image triple shared by migratable entities.
// Exactly one representation is active: media_key under storage_provider
// "r2", otherwise the raw image_url string (data URI or external URL).
type ImageField struct {
	ImageURL        string  `json:"image_url" db:"image_url"`
	MediaKey        *string `json:"media_key,omitempty" db:"media_key"`
	StorageProvider *string `json:"storage_provider,omitempty" db:"storage_provider"`
}

func (f *ImageField) ImageValue() string {
	return f.ImageURL
}

// SetImageValue replaces the raw image field and clears any managed-storage
// tag, making the new value authoritative.
func (f *ImageField) SetImageValue(value string) {
	f.ImageURL = value
	f.MediaKey = nil
	f.StorageProvider = nil
}

func (h *HeroSlide) EntityID() string  { return h.ID }
func (t *TeamMember) EntityID() string { return t.ID }
func (e *Event) EntityID() string      { return e.ID }
func (n *Notice) EntityID() string     { return n.ID }

type User struct {
	ID           int64      `json:"id" db:"id"`
	Username     string     `json:"username" db:"username"`
	PasswordHash string     `json:"-" db:"password_hash"`
	Role         UserRole   `json:"role" db:"role"`
	DisabledAt   *time.Time `json:"disabled_at,omitempty" db:"disabled_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

// MigrationSummary is the operator-facing result of one media migration run.
type MigrationSummary struct {
	Moved      map[EntityType]int `json:"moved"`
	Errors     []MigrationError   `json:"errors,omitempty"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
}

// MigrationError records one skipped entity or one failed type pass.
type MigrationError struct {
	EntityType EntityType `json:"entity_type"`
	EntityID   string     `json:"entity_id,omitempty"`
	Message    string     `json:"message"`
}

// TotalMoved sums the per-type moved counts.
func (s *MigrationSummary) TotalMoved() int {
	total := 0
	for _, count := range s.Moved {
		total += count
	}
	return total
}
