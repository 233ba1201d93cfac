package repository

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/capigrid/capigrid/internal/models"
)

type CategoryRepository struct {
	db *sql.DB
}

func NewCategoryRepository(db *sql.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// Create creates a new category
func (r *CategoryRepository) Create(c *models.Category) error {
	c.ID = uuid.New().String()
	_, err := r.db.Exec("INSERT INTO categories (id, name, slug, icon) VALUES (?, ?, ?, ?)",
		c.ID, c.Name, c.Slug, c.Icon)
	if err != nil {
		return fmt.Errorf("failed to create category: %w", err)
	}
	return nil
}

// List returns all categories
func (r *CategoryRepository) List() ([]models.Category, error) {
	rows, err := r.db.Query("SELECT id, name, slug, icon FROM categories ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := []models.Category{}
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.Icon); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}

	return categories, rows.Err()
}

// GetByID returns a category by ID
func (r *CategoryRepository) GetByID(id string) (*models.Category, error) {
	return r.getWhere("id", id)
}

// GetBySlug returns a category by slug
func (r *CategoryRepository) GetBySlug(slug string) (*models.Category, error) {
	return r.getWhere("slug", slug)
}

func (r *CategoryRepository) getWhere(column, value string) (*models.Category, error) {
	c := &models.Category{}
	err := r.db.QueryRow("SELECT id, name, slug, icon FROM categories WHERE "+column+" = ?", value).
		Scan(&c.ID, &c.Name, &c.Slug, &c.Icon)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}
