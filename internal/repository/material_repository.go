package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/qbank-api/internal/models"
)

const materialColumns = `id, course_id, kind, unit, title, storage_path, is_processed, markdown_content, sections, created_at, updated_at`

// MaterialRepository persists course materials and their processed sections.
type MaterialRepository struct {
	db *sqlx.DB
}

// NewMaterialRepository constructs the repository.
func NewMaterialRepository(db *sqlx.DB) *MaterialRepository {
	return &MaterialRepository{db: db}
}

// Create inserts an unprocessed material row.
func (r *MaterialRepository) Create(ctx context.Context, material *models.CourseMaterial) error {
	if material.ID == "" {
		material.ID = uuid.NewString()
	}
	if material.Kind == "" {
		material.Kind = models.MaterialKindUnit
	}
	now := time.Now().UTC()
	if material.CreatedAt.IsZero() {
		material.CreatedAt = now
	}
	material.UpdatedAt = material.CreatedAt
	material.IsProcessed = false
	material.MarkdownContent = nil
	material.Sections = nil

	const query = `INSERT INTO course_materials (id, course_id, kind, unit, title, storage_path, is_processed, markdown_content, sections, created_at, updated_at)
VALUES (:id, :course_id, :kind, :unit, :title, :storage_path, :is_processed, :markdown_content, :sections, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, material); err != nil {
		return fmt.Errorf("create course material: %w", err)
	}
	return nil
}

// GetByID returns a material by id. sql.ErrNoRows is returned unwrapped when absent.
func (r *MaterialRepository) GetByID(ctx context.Context, id string) (*models.CourseMaterial, error) {
	query := `SELECT ` + materialColumns + ` FROM course_materials WHERE id = $1`
	var material models.CourseMaterial
	if err := r.db.GetContext(ctx, &material, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get course material: %w", err)
	}
	return &material, nil
}

// MarkProcessed stores the processed representation in a single statement. The
// first writer wins; the returned bool is false when the row was already processed.
func (r *MaterialRepository) MarkProcessed(ctx context.Context, id string, markdown string, sections models.SectionList) (bool, error) {
	if sections == nil {
		sections = models.SectionList{}
	}
	const query = `UPDATE course_materials SET is_processed = TRUE, markdown_content = $1, sections = $2, updated_at = $3
WHERE id = $4 AND is_processed = FALSE`
	res, err := r.db.ExecContext(ctx, query, markdown, sections, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("mark course material processed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark course material processed: %w", err)
	}
	return affected == 1, nil
}

// ListByCourse returns the materials of a course, newest first.
func (r *MaterialRepository) ListByCourse(ctx context.Context, courseID string) ([]models.CourseMaterial, error) {
	query := `SELECT ` + materialColumns + ` FROM course_materials WHERE course_id = $1 ORDER BY created_at DESC`
	var materials []models.CourseMaterial
	if err := r.db.SelectContext(ctx, &materials, query, courseID); err != nil {
		return nil, fmt.Errorf("list course materials: %w", err)
	}
	return materials, nil
}
