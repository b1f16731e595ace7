package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	kberrors "github.com/kbserver/kbserver/internal/errors"
	"github.com/kbserver/kbserver/internal/kbstore"
)

func (s *Server) listJobs(c echo.Context) error {
	kind := kbstore.JobKind(c.QueryParam("kind"))
	jobs, err := s.metadata.ListJobs(c.Request().Context(), kind)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, jobs)
}

func (s *Server) getJob(c echo.Context) error {
	job, err := s.metadata.GetJob(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	if job == nil {
		return kberrors.NotFoundError(kberrors.ErrCodeJobNotFound, "job not found: "+c.Param("id"), nil)
	}
	return c.JSON(http.StatusOK, job)
}
