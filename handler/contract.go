package handler

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/CaseMark/contract-clause-comparator/middleware"
	"github.com/CaseMark/contract-clause-comparator/model"
	"github.com/CaseMark/contract-clause-comparator/pkg/logger"
	"github.com/CaseMark/contract-clause-comparator/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const maxContractTextBytes = 4 << 20 // 4 MiB of extracted text

type ContractHandler struct {
	store     *service.Store
	documents *service.DocumentService
}

func NewContractHandler(store *service.Store, documents *service.DocumentService) *ContractHandler {
	return &ContractHandler{
		store:     store,
		documents: documents,
	}
}

type createContractRequest struct {
	Name       string `json:"name" binding:"required"`
	Text       string `json:"text" binding:"required"`
	IsTemplate bool   `json:"is_template"`
}

// Create registers a new contract version. Clients either POST JSON with the
// extracted contract text, or a multipart form with a text file. Document
// parsing (PDF/OCR) happens upstream; this service receives text.
func (h *ContractHandler) Create(c *gin.Context) {
	organization := middleware.GetOrganization(c)

	contentType := c.GetHeader("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		h.createFromUpload(c, organization)
		return
	}

	var req createContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name and text are required"})
		return
	}

	contract := &model.Contract{
		ID:           uuid.New().String(),
		Organization: organization,
		Name:         req.Name,
		IsTemplate:   req.IsTemplate,
		RawText:      service.NormalizeText(req.Text),
		Status:       model.StatusCompleted,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	if err := h.store.SaveContract(contract); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save contract"})
		return
	}

	c.JSON(http.StatusCreated, contract)
}

func (h *ContractHandler) createFromUpload(c *gin.Context, organization string) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext != ".txt" && ext != ".md" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only plain-text files are accepted; convert documents upstream"})
		return
	}

	text, err := io.ReadAll(io.LimitReader(file, maxContractTextBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		return
	}
	if len(text) > maxContractTextBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File too large"})
		return
	}

	name := c.PostForm("name")
	if name == "" {
		name = strings.TrimSuffix(header.Filename, ext)
	}
	isTemplate := c.PostForm("is_template") == "true"

	contractID := uuid.New().String()
	objectName := fmt.Sprintf("%s/%s/%s", organization, contractID, header.Filename)

	// Keep the original upload in object storage for download and audit.
	if h.documents != nil {
		if _, err := file.Seek(0, io.SeekStart); err == nil {
			if err := h.documents.Upload(c.Request.Context(), objectName, file, header.Size, "text/plain"); err != nil {
				logger.Warn(c.Request.Context(), "document upload failed", "error", err)
				objectName = ""
			}
		}
	} else {
		objectName = ""
	}

	contract := &model.Contract{
		ID:           contractID,
		Organization: organization,
		Name:         name,
		Filename:     header.Filename,
		ObjectName:   objectName,
		IsTemplate:   isTemplate,
		RawText:      service.NormalizeText(string(text)),
		Status:       model.StatusCompleted,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	if err := h.store.SaveContract(contract); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save contract"})
		return
	}

	c.JSON(http.StatusCreated, contract)
}

// List returns all contracts for the current organization
func (h *ContractHandler) List(c *gin.Context) {
	organization := middleware.GetOrganization(c)

	contracts, err := h.store.GetContractsByOrganization(organization)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list contracts"})
		return
	}

	result := make([]gin.H, len(contracts))
	for i, contract := range contracts {
		result[i] = gin.H{
			"id":          contract.ID,
			"name":        contract.Name,
			"filename":    contract.Filename,
			"is_template": contract.IsTemplate,
			"status":      contract.Status,
			"created_at":  contract.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			"updated_at":  contract.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
	}

	c.JSON(http.StatusOK, gin.H{"contracts": result})
}

// Get returns a single contract with its clauses and, when the original
// document is stored, a presigned download URL.
func (h *ContractHandler) Get(c *gin.Context) {
	contract, ok := h.ownedContract(c)
	if !ok {
		return
	}

	clauses, err := h.store.GetClauses(contract.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load clauses"})
		return
	}

	response := gin.H{
		"contract": contract,
		"clauses":  clauses,
	}

	if contract.ObjectName != "" && h.documents != nil {
		if url, err := h.documents.PresignedURL(c.Request.Context(), contract.ObjectName); err == nil {
			response["document_url"] = url
		}
	}

	c.JSON(http.StatusOK, response)
}

// GetStatus returns the ingestion status of a contract
func (h *ContractHandler) GetStatus(c *gin.Context) {
	contract, ok := h.ownedContract(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":        contract.ID,
		"status":    contract.Status,
		"error_msg": contract.ErrorMsg,
	})
}

type updateContractRequest struct {
	Name       string `json:"name"`
	IsTemplate *bool  `json:"is_template"`
}

// Update renames a contract or toggles its template flag. Completed contract
// text is immutable.
func (h *ContractHandler) Update(c *gin.Context) {
	contract, ok := h.ownedContract(c)
	if !ok {
		return
	}

	var req updateContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if req.Name == "" && req.IsTemplate == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Nothing to update"})
		return
	}

	if err := h.store.UpdateContractMeta(contract.ID, req.Name, req.IsTemplate); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update contract"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Contract updated"})
}

// Delete deletes a contract and its stored document
func (h *ContractHandler) Delete(c *gin.Context) {
	contract, ok := h.ownedContract(c)
	if !ok {
		return
	}

	if contract.ObjectName != "" && h.documents != nil {
		if err := h.documents.Delete(c.Request.Context(), contract.ObjectName); err != nil {
			logger.Warn(c.Request.Context(), "document delete failed", "error", err)
		}
	}

	if err := h.store.DeleteContract(contract.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete contract"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Contract deleted"})
}

// ownedContract loads the path contract and enforces organization scoping.
func (h *ContractHandler) ownedContract(c *gin.Context) (*model.Contract, bool) {
	organization := middleware.GetOrganization(c)
	id := c.Param("id")

	contract, err := h.store.GetContract(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load contract"})
		return nil, false
	}
	if contract == nil || contract.Organization != organization {
		c.JSON(http.StatusNotFound, gin.H{"error": "Contract not found"})
		return nil, false
	}
	return contract, true
}
