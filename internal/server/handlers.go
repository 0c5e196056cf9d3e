package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/bull/gitglean/internal/github"
	"github.com/bull/gitglean/internal/indexer"
	"github.com/bull/gitglean/internal/retriever"
)

// IsClientError reports whether err was caused by invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, indexer.ErrInvalidRequest) ||
		errors.Is(err, retriever.ErrInvalidQuery) ||
		errors.Is(err, github.ErrInvalidRepositoryURL)
}

func statusFor(err error) int {
	if IsClientError(err) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// handleIngest replaces the stored records of one repository.
func (s *Server) handleIngest(c echo.Context) error {
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid ingest request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, IngestResponse{Error: "invalid request body"})
	}
	if strings.TrimSpace(req.RepositoryURL) == "" {
		return c.JSON(http.StatusBadRequest, IngestResponse{Error: "repositoryUrl is required"})
	}

	result, err := s.config.Ingester.Ingest(c.Request().Context(), indexer.Request{
		RepositoryURL: req.RepositoryURL,
		Credentials: github.Credentials{
			Token:   req.GitHubAccessToken,
			BaseURL: req.GitHubBaseURL,
			APIURL:  req.GitHubAPIURL,
		},
	})
	if err != nil {
		s.logger.Error("ingestion failed",
			zap.String("repository", req.RepositoryURL),
			zap.Error(err),
		)
		return c.JSON(statusFor(err), IngestResponse{Error: err.Error()})
	}

	return c.JSON(http.StatusOK, IngestResponse{Success: true, Result: result})
}

// handleSearch returns the files of a repository most relevant to the input.
func (s *Server) handleSearch(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid search request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}
	if strings.TrimSpace(req.Input) == "" || strings.TrimSpace(req.RepositoryURL) == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "input and repositoryUrl are required"})
	}

	results, err := s.config.Searcher.Search(c.Request().Context(), req.Input, req.RepositoryURL)
	if err != nil {
		s.logger.Error("search failed",
			zap.String("repository", req.RepositoryURL),
			zap.Error(err),
		)
		return c.JSON(statusFor(err), ErrorResponse{Error: err.Error()})
	}
	if results == nil {
		results = []retriever.Result{}
	}
	return c.JSON(http.StatusOK, results)
}

// handleHealth checks vector store connectivity.
func (s *Server) handleHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), s.config.HealthTimeout)
	defer cancel()

	response := HealthResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if err := s.config.Health.Health(ctx); err != nil {
		response.Status = "unhealthy"
		response.Store = "disconnected"
		response.Error = err.Error()
		return c.JSON(http.StatusServiceUnavailable, response)
	}

	response.Status = "healthy"
	response.Store = "connected"
	return c.JSON(http.StatusOK, response)
}
