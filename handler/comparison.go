package handler

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/CaseMark/contract-clause-comparator/middleware"
	"github.com/CaseMark/contract-clause-comparator/model"
	"github.com/CaseMark/contract-clause-comparator/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ComparisonHandler struct {
	store       *service.Store
	comparisons *service.ComparisonService
	broadcaster *service.StatusBroadcaster
}

func NewComparisonHandler(store *service.Store, comparisons *service.ComparisonService, broadcaster *service.StatusBroadcaster) *ComparisonHandler {
	return &ComparisonHandler{
		store:       store,
		comparisons: comparisons,
		broadcaster: broadcaster,
	}
}

type createComparisonRequest struct {
	SourceContractID string `json:"source_contract_id" binding:"required"`
	TargetContractID string `json:"target_contract_id" binding:"required"`
}

// Create validates the request synchronously, persists a processing
// comparison and launches the detached pipeline run. Input errors never
// create a row; the response returns immediately with 202.
func (h *ComparisonHandler) Create(c *gin.Context) {
	organization := middleware.GetOrganization(c)

	var req createComparisonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "source_contract_id and target_contract_id are required"})
		return
	}
	if req.SourceContractID == req.TargetContractID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot compare a contract with itself"})
		return
	}

	source, ok := h.ingestedContract(c, organization, req.SourceContractID)
	if !ok {
		return
	}
	target, ok := h.ingestedContract(c, organization, req.TargetContractID)
	if !ok {
		return
	}

	comparison := &model.Comparison{
		ID:               uuid.New().String(),
		Organization:     organization,
		SourceContractID: source.ID,
		TargetContractID: target.ID,
		Status:           model.StatusProcessing,
		CreatedAt:        time.Now(),
	}

	if err := h.store.CreateComparison(comparison); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create comparison"})
		return
	}

	// Single entry point: one creation call starts exactly one run.
	h.comparisons.Start(comparison)

	c.JSON(http.StatusAccepted, comparison)
}

func (h *ComparisonHandler) ingestedContract(c *gin.Context, organization, id string) (*model.Contract, bool) {
	contract, err := h.store.GetContract(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load contract"})
		return nil, false
	}
	if contract == nil || contract.Organization != organization {
		c.JSON(http.StatusNotFound, gin.H{"error": "Contract not found: " + id})
		return nil, false
	}
	if contract.Status != model.StatusCompleted {
		c.JSON(http.StatusConflict, gin.H{"error": "Contract not ingested yet: " + id})
		return nil, false
	}
	return contract, true
}

// List returns all comparisons for the current organization
func (h *ComparisonHandler) List(c *gin.Context) {
	organization := middleware.GetOrganization(c)

	comparisons, err := h.store.GetComparisonsByOrganization(organization)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list comparisons"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"comparisons": comparisons})
}

// Get returns a comparison. Clause-level results are included only once the
// comparison has left processing; a running comparison exposes no partial
// results.
func (h *ComparisonHandler) Get(c *gin.Context) {
	comparison, ok := h.ownedComparison(c)
	if !ok {
		return
	}

	response := gin.H{"comparison": comparison}

	if comparison.Status == model.StatusCompleted {
		rows, err := h.store.GetClauseComparisons(comparison.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load clause comparisons"})
			return
		}
		response["clause_comparisons"] = rows
	}

	c.JSON(http.StatusOK, response)
}

// GetStatus is the point query for one comparison's lifecycle state.
func (h *ComparisonHandler) GetStatus(c *gin.Context) {
	comparison, ok := h.ownedComparison(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":                 comparison.ID,
		"status":             comparison.Status,
		"error_msg":          comparison.ErrorMsg,
		"overall_risk_score": comparison.OverallRiskScore,
		"created_at":         comparison.CreatedAt,
		"completed_at":       comparison.CompletedAt,
	})
}

// Stream pushes comparison status changes to the client as server-sent
// events, optionally narrowed by ?ids=a,b. The stream ends with a "done"
// event once nothing watched remains in processing; client disconnect stops
// the underlying poll loop.
func (h *ComparisonHandler) Stream(c *gin.Context) {
	organization := middleware.GetOrganization(c)

	var ids []string
	if raw := c.Query("ids"); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	events := h.broadcaster.Watch(c.Request.Context(), organization, ids)

	c.Stream(func(w io.Writer) bool {
		event, open := <-events
		if !open {
			return false
		}
		if event.Done {
			c.SSEvent("done", gin.H{"done": true})
			return false
		}
		c.SSEvent("status", event)
		return true
	})
}

// ownedComparison loads the path comparison and enforces organization scoping.
func (h *ComparisonHandler) ownedComparison(c *gin.Context) (*model.Comparison, bool) {
	organization := middleware.GetOrganization(c)
	id := c.Param("id")

	comparison, err := h.store.GetComparison(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load comparison"})
		return nil, false
	}
	if comparison == nil || comparison.Organization != organization {
		c.JSON(http.StatusNotFound, gin.H{"error": "Comparison not found"})
		return nil, false
	}
	return comparison, true
}
