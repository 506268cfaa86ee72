package handler

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/CaseMark/contract-clause-comparator/config"
	"github.com/CaseMark/contract-clause-comparator/model"
	"github.com/CaseMark/contract-clause-comparator/service"
	"github.com/gin-gonic/gin"
)

func setupTestStore(t *testing.T) *service.Store {
	t.Helper()
	store, err := service.NewStore(&config.StoreConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("Failed to open test store: %v", err)
	}
	return store
}

func saveContract(t *testing.T, store *service.Store, id, org, status string) {
	t.Helper()
	if err := store.SaveContract(&model.Contract{
		ID:           id,
		Organization: org,
		Name:         "Contract " + id,
		RawText:      "contract text",
		Status:       status,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}); err != nil {
		t.Fatalf("SaveContract failed: %v", err)
	}
}

// asOrganization wraps a handler so it runs with the auth context a real
// request would carry.
func asOrganization(org string, h gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("username", "testuser")
		c.Set("organization", org)
		h(c)
	}
}

func TestContractHandlerCreateJSON(t *testing.T) {
	store := setupTestStore(t)
	handler := NewContractHandler(store, nil)

	router := gin.New()
	router.POST("/contracts", asOrganization("acme", handler.Create))

	body, _ := json.Marshal(map[string]interface{}{
		"name":        "Master Services Agreement",
		"text":        "Section 1.\r\n\r\n\r\nThe  parties agree.",
		"is_template": true,
	})
	req := httptest.NewRequest("POST", "/contracts", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var created model.Contract
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if created.Organization != "acme" {
		t.Errorf("Expected organization 'acme', got '%s'", created.Organization)
	}
	if !created.IsTemplate {
		t.Error("Expected template flag set")
	}
	if created.Status != model.StatusCompleted {
		t.Errorf("Expected completed status for text ingestion, got %s", created.Status)
	}

	// Stored text is normalized. RawText never leaves the API.
	stored, _ := store.GetContract(created.ID)
	if stored.RawText != "Section 1.\n\nThe parties agree." {
		t.Errorf("Expected normalized text, got %q", stored.RawText)
	}
}

func TestContractHandlerCreateMissingFields(t *testing.T) {
	store := setupTestStore(t)
	handler := NewContractHandler(store, nil)

	router := gin.New()
	router.POST("/contracts", asOrganization("acme", handler.Create))

	body, _ := json.Marshal(map[string]string{"name": "No text"})
	req := httptest.NewRequest("POST", "/contracts", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestContractHandlerCreateUpload(t *testing.T) {
	store := setupTestStore(t)
	handler := NewContractHandler(store, nil)

	router := gin.New()
	router.POST("/contracts", asOrganization("acme", handler.Create))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", "nda.txt")
	part.Write([]byte("The parties agree to keep everything confidential."))
	mw.WriteField("is_template", "true")
	mw.Close()

	req := httptest.NewRequest("POST", "/contracts", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var created model.Contract
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if created.Name != "nda" {
		t.Errorf("Expected name derived from filename, got '%s'", created.Name)
	}
	if created.Filename != "nda.txt" {
		t.Errorf("Expected filename recorded, got '%s'", created.Filename)
	}
	if !created.IsTemplate {
		t.Error("Expected template flag from form field")
	}
}

func TestContractHandlerCreateUploadRejectsBinary(t *testing.T) {
	store := setupTestStore(t)
	handler := NewContractHandler(store, nil)

	router := gin.New()
	router.POST("/contracts", asOrganization("acme", handler.Create))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", "contract.pdf")
	part.Write([]byte("%PDF-1.4"))
	mw.Close()

	req := httptest.NewRequest("POST", "/contracts", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for non-text upload, got %d", w.Code)
	}
}

func TestContractHandlerList(t *testing.T) {
	store := setupTestStore(t)
	saveContract(t, store, "c1", "acme", model.StatusCompleted)
	saveContract(t, store, "c2", "acme", model.StatusCompleted)
	saveContract(t, store, "c3", "globex", model.StatusCompleted)

	handler := NewContractHandler(store, nil)

	router := gin.New()
	router.GET("/contracts", asOrganization("acme", handler.List))

	req := httptest.NewRequest("GET", "/contracts", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string][]map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if len(response["contracts"]) != 2 {
		t.Errorf("Expected 2 contracts for acme, got %d", len(response["contracts"]))
	}
}

func TestContractHandlerGet(t *testing.T) {
	store := setupTestStore(t)
	saveContract(t, store, "c1", "acme", model.StatusCompleted)
	if err := store.ReplaceClauses("c1", []model.Clause{
		{ID: "cl1", ContractID: "c1", Type: "termination", Content: "termination text"},
	}); err != nil {
		t.Fatalf("ReplaceClauses failed: %v", err)
	}

	handler := NewContractHandler(store, nil)

	tests := []struct {
		name           string
		id             string
		organization   string
		expectedStatus int
	}{
		{"valid get", "c1", "acme", http.StatusOK},
		{"wrong organization", "c1", "globex", http.StatusNotFound},
		{"non-existent", "nope", "acme", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.GET("/contracts/:id", asOrganization(tt.organization, handler.Get))

			req := httptest.NewRequest("GET", "/contracts/"+tt.id, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}

			if tt.expectedStatus == http.StatusOK {
				var response map[string]json.RawMessage
				if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
					t.Fatalf("Failed to parse response: %v", err)
				}
				var clauses []model.Clause
				if err := json.Unmarshal(response["clauses"], &clauses); err != nil {
					t.Fatalf("Failed to parse clauses: %v", err)
				}
				if len(clauses) != 1 {
					t.Errorf("Expected 1 clause, got %d", len(clauses))
				}
			}
		})
	}
}

func TestContractHandlerGetStatus(t *testing.T) {
	store := setupTestStore(t)
	saveContract(t, store, "c1", "acme", model.StatusFailed)
	if err := store.UpdateContractStatus("c1", model.StatusFailed, "extraction failed"); err != nil {
		t.Fatalf("UpdateContractStatus failed: %v", err)
	}

	handler := NewContractHandler(store, nil)

	router := gin.New()
	router.GET("/contracts/:id/status", asOrganization("acme", handler.GetStatus))

	req := httptest.NewRequest("GET", "/contracts/c1/status", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var response map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if response["status"] != model.StatusFailed {
		t.Errorf("Expected failed status, got '%s'", response["status"])
	}
	if response["error_msg"] != "extraction failed" {
		t.Errorf("Expected error message, got '%s'", response["error_msg"])
	}
}

func TestContractHandlerUpdate(t *testing.T) {
	store := setupTestStore(t)
	saveContract(t, store, "c1", "acme", model.StatusCompleted)

	handler := NewContractHandler(store, nil)

	router := gin.New()
	router.PATCH("/contracts/:id", asOrganization("acme", handler.Update))

	body, _ := json.Marshal(map[string]string{"name": "Renamed"})
	req := httptest.NewRequest("PATCH", "/contracts/c1", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	updated, _ := store.GetContract("c1")
	if updated.Name != "Renamed" {
		t.Errorf("Expected renamed contract, got '%s'", updated.Name)
	}

	// Empty update is rejected.
	req = httptest.NewRequest("PATCH", "/contracts/c1", bytes.NewBufferString("{}"))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for empty update, got %d", w.Code)
	}
}

func TestContractHandlerDelete(t *testing.T) {
	store := setupTestStore(t)
	saveContract(t, store, "c1", "acme", model.StatusCompleted)

	handler := NewContractHandler(store, nil)

	router := gin.New()
	router.DELETE("/contracts/:id", asOrganization("acme", handler.Delete))

	req := httptest.NewRequest("DELETE", "/contracts/c1", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	if got, _ := store.GetContract("c1"); got != nil {
		t.Error("Expected contract deleted")
	}
}

func TestContractHandlerDeleteWrongOrganization(t *testing.T) {
	store := setupTestStore(t)
	saveContract(t, store, "c1", "acme", model.StatusCompleted)

	handler := NewContractHandler(store, nil)

	router := gin.New()
	router.DELETE("/contracts/:id", asOrganization("globex", handler.Delete))

	req := httptest.NewRequest("DELETE", "/contracts/c1", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
	if got, _ := store.GetContract("c1"); got == nil {
		t.Error("Contract must survive a cross-organization delete attempt")
	}
}
