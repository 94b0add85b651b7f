package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"noteflow/internal/common"
	"noteflow/internal/domain/model"
	"noteflow/internal/domain/repository"
)

type NoteService struct {
	notes      repository.NoteRepository
	categories repository.CategoryRepository
}

func NewNoteService(notes repository.NoteRepository, categories repository.CategoryRepository) *NoteService {
	return &NoteService{notes: notes, categories: categories}
}

type CategoryRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=1000"`
	Color       string `json:"color" validate:"omitempty,hexcolor"`
}

type NoteRequest struct {
	Title      string  `json:"title" validate:"required,max=200"`
	Content    string  `json:"content"`
	CategoryID *string `json:"category_id"`
}

func (s *NoteService) CreateCategory(ctx context.Context, ownerID string, req CategoryRequest) (*model.Category, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	c := &model.Category{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Name:        req.Name,
		Slug:        slug.Make(req.Name),
		Description: req.Description,
		Color:       req.Color,
	}
	if c.Color == "" {
		c.Color = model.DefaultCategoryColor
	}
	if err := s.categories.Create(ctx, c); err != nil {
		return nil, categoryWriteError(err)
	}
	return c, nil
}

func (s *NoteService) GetCategory(ctx context.Context, ownerID, id string) (*model.Category, error) {
	return s.categories.Get(ctx, id, ownerID)
}

func (s *NoteService) ListCategories(ctx context.Context, ownerID, search string) ([]*model.Category, error) {
	list, err := s.categories.List(ctx, ownerID, strings.TrimSpace(search))
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	if list == nil {
		list = []*model.Category{}
	}
	return list, nil
}

func (s *NoteService) UpdateCategory(ctx context.Context, ownerID, id string, req CategoryRequest) (*model.Category, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	c, err := s.categories.Get(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	c.Name = req.Name
	c.Slug = slug.Make(req.Name)
	c.Description = req.Description
	if req.Color != "" {
		c.Color = req.Color
	}
	if err := s.categories.Update(ctx, c); err != nil {
		return nil, categoryWriteError(err)
	}
	return c, nil
}

// DeleteCategory detaches its notes rather than deleting them.
func (s *NoteService) DeleteCategory(ctx context.Context, ownerID, id string) error {
	return s.categories.Delete(ctx, id, ownerID)
}

func categoryWriteError(err error) error {
	if errors.Is(err, common.ErrConflict) {
		return common.NewError(common.ErrConflict, "Category with this name already exists")
	}
	return fmt.Errorf("failed to save category: %w", err)
}

func (s *NoteService) CreateNote(ctx context.Context, ownerID string, req NoteRequest) (*model.Note, error) {
	if err := s.checkNote(ctx, ownerID, &req); err != nil {
		return nil, err
	}
	n := &model.Note{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		Title:      req.Title,
		Content:    req.Content,
		CategoryID: req.CategoryID,
	}
	if err := s.notes.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to create note: %w", err)
	}
	return n, nil
}

func (s *NoteService) GetNote(ctx context.Context, ownerID, id string) (*model.Note, error) {
	return s.notes.Get(ctx, id, ownerID)
}

func (s *NoteService) ListNotes(ctx context.Context, ownerID, search, categoryID string, page Page) (*ListResponse[*model.Note], error) {
	page = page.Normalize()
	list, total, err := s.notes.List(ctx, repository.NoteFilter{
		OwnerID:    ownerID,
		Search:     strings.TrimSpace(search),
		CategoryID: categoryID,
		Limit:      page.PageSize,
		Offset:     page.Offset(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	if list == nil {
		list = []*model.Note{}
	}
	return &ListResponse[*model.Note]{Count: total, Page: page.Page, PageSize: page.PageSize, Results: list}, nil
}

func (s *NoteService) UpdateNote(ctx context.Context, ownerID, id string, req NoteRequest) (*model.Note, error) {
	if err := s.checkNote(ctx, ownerID, &req); err != nil {
		return nil, err
	}
	n, err := s.notes.Get(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	n.Title = req.Title
	n.Content = req.Content
	n.CategoryID = req.CategoryID
	if err := s.notes.Update(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to update note: %w", err)
	}
	return n, nil
}

func (s *NoteService) DeleteNote(ctx context.Context, ownerID, id string) error {
	return s.notes.Delete(ctx, id, ownerID)
}

// checkNote validates the request and that its category belongs to the owner.
func (s *NoteService) checkNote(ctx context.Context, ownerID string, req *NoteRequest) error {
	req.Title = strings.TrimSpace(req.Title)
	if err := validateRequest(*req); err != nil {
		return err
	}
	if req.CategoryID == nil || *req.CategoryID == "" {
		req.CategoryID = nil
		return nil
	}
	if _, err := s.categories.Get(ctx, *req.CategoryID, ownerID); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.NewError(common.ErrValidation, "Category not found or doesn't belong to you")
		}
		return fmt.Errorf("failed to load category: %w", err)
	}
	return nil
}
