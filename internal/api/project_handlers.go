package api

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	kberrors "github.com/kbserver/kbserver/internal/errors"
	"github.com/kbserver/kbserver/internal/kbstore"
)

// createProjectRequest is POST /api/projects' body.
type createProjectRequest struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

// createProject creates a Project and its five role KBs (spec.md §6:
// "auto-creates 5 role KBs"), binding each under its ProjectRole.
func (s *Server) createProject(c echo.Context) error {
	var req createProjectRequest
	if err := c.Bind(&req); err != nil {
		return kberrors.ValidationError("invalid request body", err)
	}
	if req.Name == "" || req.Path == "" {
		return kberrors.ValidationError("name and path are required", nil)
	}

	ctx := c.Request().Context()
	project := &kbstore.Project{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Path:        req.Path,
		Description: req.Description,
	}
	if err := s.metadata.CreateProject(ctx, project); err != nil {
		return err
	}

	for _, role := range kbstore.AllProjectRoles {
		kb := &kbstore.KnowledgeBase{
			ID:   uuid.NewString(),
			Name: fmt.Sprintf("%s-%s", req.Name, role),
			Slug: kbstore.Slugify(fmt.Sprintf("%s-%s", req.Name, role)),
			Type: roleKBType(role),
		}
		if err := s.metadata.CreateKB(ctx, kb); err != nil {
			return err
		}
		if err := s.metadata.BindProjectKB(ctx, project.ID, role, kb.ID); err != nil {
			return err
		}
	}

	return c.JSON(http.StatusCreated, project)
}

func roleKBType(role kbstore.ProjectRole) kbstore.KBType {
	if role == kbstore.RoleStructure {
		return kbstore.KBTypeStructure
	}
	return kbstore.KBTypeGeneric
}

// enableHookRequest is POST /api/projects/{id}/hooks/{role}/enable's body.
type enableHookRequest struct {
	FolderPath string `json:"folder_path"`
}

func (s *Server) enableHook(c echo.Context) error {
	projectID := c.Param("id")
	role := kbstore.ProjectRole(c.Param("role"))

	var req enableHookRequest
	if err := c.Bind(&req); err != nil {
		return kberrors.ValidationError("invalid request body", err)
	}
	if req.FolderPath == "" {
		return kberrors.ValidationError("folder_path is required", nil)
	}

	ctx := c.Request().Context()
	hook := &kbstore.Hook{
		ProjectID:  projectID,
		Role:       role,
		Enabled:    true,
		FolderPath: req.FolderPath,
	}
	if err := s.metadata.SaveHook(ctx, hook); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, hook)
}
