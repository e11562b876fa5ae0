package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/coi-compliance-server/internal/domain"
	"github.com/coi-compliance-server/internal/middleware"
)

// ExtractRequest carries raw certificate text.
type ExtractRequest struct {
	Text string `json:"text" binding:"required"`
}

// AnalyzeTextRequest analyzes certificate text against a stored or inline template.
type AnalyzeTextRequest struct {
	Text       string                      `json:"text" binding:"required"`
	TemplateID string                      `json:"template_id"`
	Template   *domain.RequirementTemplate `json:"template"`
}

// CreateDocumentRequest is the JSON form of a document upload. Content is base64 in JSON.
type CreateDocumentRequest struct {
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	Text     string `json:"text"`
	Content  []byte `json:"content"`
}

// AnalyzeDocumentRequest selects the template for a stored document.
type AnalyzeDocumentRequest struct {
	TemplateID string `json:"template_id" binding:"required"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	status := http.StatusOK
	checks := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check.Ping(c.Request.Context()); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{
		"status":    state,
		"checks":    checks,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleExtract(c *gin.Context) {
	var req ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, domain.NewValidationError("text", "certificate text is required", nil))
		return
	}
	c.JSON(http.StatusOK, s.documents.ExtractText(req.Text))
}

func (s *Server) handleAnalyzeText(c *gin.Context) {
	var req AnalyzeTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, domain.NewValidationError("text", "certificate text is required", nil))
		return
	}

	template := req.Template
	if template == nil {
		if req.TemplateID == "" {
			s.respondError(c, domain.NewValidationError("template_id", "template or template_id is required", nil))
			return
		}
		var err error
		template, err = s.compliance.GetTemplate(c.Request.Context(), req.TemplateID)
		if err != nil {
			s.respondError(c, err)
			return
		}
	}

	analysis, err := s.compliance.AnalyzeExtraction(s.documents.ExtractText(req.Text), template)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, analysis)
}

func (s *Server) handleListTemplates(c *gin.Context) {
	templates, err := s.compliance.ListTemplates(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	if templates == nil {
		templates = []*domain.RequirementTemplate{}
	}
	c.JSON(http.StatusOK, gin.H{"templates": templates})
}

func (s *Server) handleGetTemplate(c *gin.Context) {
	template, err := s.compliance.GetTemplate(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, template)
}

// handleCreateDocument accepts either a multipart upload (field "file", optional "text")
// or a JSON body.
func (s *Server) handleCreateDocument(c *gin.Context) {
	var req CreateDocumentRequest

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		file, header, err := c.Request.FormFile("file")
		if err != nil && !errors.Is(err, http.ErrMissingFile) {
			s.respondError(c, uploadError(err))
			return
		}
		if file != nil {
			defer file.Close()
			content, err := io.ReadAll(file)
			if err != nil {
				s.respondError(c, uploadError(err))
				return
			}
			req.Content = content
			req.FileName = header.Filename
			req.MimeType = header.Header.Get("Content-Type")
		}
		req.Text = c.PostForm("text")
	} else if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, domain.NewValidationError("body", "invalid document payload", nil))
		return
	}

	if len(req.Content) > 0 && (req.MimeType == "" || req.MimeType == "application/octet-stream") {
		req.MimeType = http.DetectContentType(req.Content)
	}

	doc, err := s.documents.CreateDocument(c.Request.Context(), req.FileName, req.MimeType, req.Text, req.Content)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

func (s *Server) handleGetDocument(c *gin.Context) {
	doc, err := s.documents.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) handleProcessDocument(c *gin.Context) {
	extraction, err := s.documents.ProcessDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, extraction)
}

func (s *Server) handleAnalyzeDocument(c *gin.Context) {
	var req AnalyzeDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, domain.NewValidationError("template_id", "template_id is required", nil))
		return
	}

	analysis, err := s.compliance.Analyze(c.Request.Context(), c.Param("id"), req.TemplateID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, analysis)
}

func (s *Server) handleListAnalyses(c *gin.Context) {
	analyses, err := s.compliance.ListAnalyses(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"analyses": analyses})
}

func (s *Server) handleGetAnalysis(c *gin.Context) {
	analysis, err := s.compliance.GetAnalysis(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, analysis)
}

// uploadError keeps size-limit errors and reports anything else as a bad upload.
func uploadError(err error) error {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return err
	}
	return domain.NewValidationError("file", err.Error(), nil)
}

// respondError writes a ServiceError with the status matching the error kind.
func (s *Server) respondError(c *gin.Context, err error) {
	code := domain.ErrorCode(err)
	status := httpStatus(code)

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		code, status = domain.CodeInvalidInput, http.StatusRequestEntityTooLarge
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"path":           c.FullPath(),
			"correlation_id": c.GetString(middleware.CorrelationIDKey),
		}).Error("Request failed")
		message = "internal server error"
	}

	c.AbortWithStatusJSON(status, domain.NewServiceError(code, message, "", c.GetString(middleware.CorrelationIDKey)))
}

func httpStatus(code string) int {
	switch code {
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeNotProcessed:
		return http.StatusConflict
	case domain.CodeInvalidTemplate:
		return http.StatusUnprocessableEntity
	case domain.CodeInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
