package service

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/CaseMark/contract-clause-comparator/config"
	"github.com/CaseMark/contract-clause-comparator/model"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Store persists contracts, clauses and comparisons in sqlite via gorm.
type Store struct {
	db *gorm.DB
}

func NewStore(cfg *config.StoreConfig) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	if err := db.AutoMigrate(
		&model.Contract{},
		&model.Clause{},
		&model.Comparison{},
		&model.ClauseComparison{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate store: %w", err)
	}

	slog.Info("store initialized", "path", cfg.Path)
	return &Store{db: db}, nil
}

// --- contracts ---

func (s *Store) SaveContract(contract *model.Contract) error {
	contract.UpdatedAt = time.Now()
	return s.db.Save(contract).Error
}

// GetContract returns nil when the id is unknown.
func (s *Store) GetContract(id string) (*model.Contract, error) {
	var contract model.Contract
	err := s.db.First(&contract, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &contract, nil
}

func (s *Store) GetContractsByOrganization(org string) ([]model.Contract, error) {
	var contracts []model.Contract
	err := s.db.Where("organization = ?", org).Order("created_at desc").Find(&contracts).Error
	return contracts, err
}

func (s *Store) UpdateContractStatus(id, status, errMsg string) error {
	return s.db.Model(&model.Contract{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     status,
		"error_msg":  errMsg,
		"updated_at": time.Now(),
	}).Error
}

func (s *Store) UpdateContractMeta(id, name string, isTemplate *bool) error {
	updates := map[string]interface{}{"updated_at": time.Now()}
	if name != "" {
		updates["name"] = name
	}
	if isTemplate != nil {
		updates["is_template"] = *isTemplate
	}
	return s.db.Model(&model.Contract{}).Where("id = ?", id).Updates(updates).Error
}

// DeleteContract removes a contract and its clauses.
func (s *Store) DeleteContract(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("contract_id = ?", id).Delete(&model.Clause{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Contract{}, "id = ?", id).Error
	})
}

// --- clauses ---

// ReplaceClauses swaps the whole clause set of a contract in one transaction.
// Extraction is idempotent by replacement, never additive.
func (s *Store) ReplaceClauses(contractID string, clauses []model.Clause) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("contract_id = ?", contractID).Delete(&model.Clause{}).Error; err != nil {
			return err
		}
		if len(clauses) == 0 {
			return nil
		}
		return tx.Create(&clauses).Error
	})
}

func (s *Store) GetClauses(contractID string) ([]model.Clause, error) {
	var clauses []model.Clause
	err := s.db.Where("contract_id = ?", contractID).Order("type, id").Find(&clauses).Error
	return clauses, err
}

// --- comparisons ---

func (s *Store) CreateComparison(comparison *model.Comparison) error {
	return s.db.Create(comparison).Error
}

// GetComparison returns nil when the id is unknown.
func (s *Store) GetComparison(id string) (*model.Comparison, error) {
	var comparison model.Comparison
	err := s.db.First(&comparison, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &comparison, nil
}

func (s *Store) GetComparisonsByOrganization(org string) ([]model.Comparison, error) {
	var comparisons []model.Comparison
	err := s.db.Where("organization = ?", org).Order("created_at desc").Find(&comparisons).Error
	return comparisons, err
}

// GetComparisonsForWatch returns the comparisons a status subscriber follows:
// all of the organization's, or only the given ids.
func (s *Store) GetComparisonsForWatch(org string, ids []string) ([]model.Comparison, error) {
	q := s.db.Where("organization = ?", org)
	if len(ids) > 0 {
		q = q.Where("id IN ?", ids)
	}
	var comparisons []model.Comparison
	err := q.Find(&comparisons).Error
	return comparisons, err
}

func (s *Store) GetClauseComparisons(comparisonID string) ([]model.ClauseComparison, error) {
	var rows []model.ClauseComparison
	err := s.db.Where("comparison_id = ?", comparisonID).Order("clause_type, id").Find(&rows).Error
	return rows, err
}

// CompleteComparison finalizes a successful run in a single transaction: the
// comparison row is updated and all clause-comparison rows are batch
// inserted. This is the only write path for clause_comparisons, so readers
// never observe a half-populated result.
func (s *Store) CompleteComparison(comparison *model.Comparison, rows []model.ClauseComparison) error {
	now := time.Now()
	comparison.Status = model.StatusCompleted
	comparison.CompletedAt = &now

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(comparison).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}

// FailComparison records a terminal failure with its error message.
func (s *Store) FailComparison(id, errMsg string) error {
	now := time.Now()
	return s.db.Model(&model.Comparison{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":       model.StatusFailed,
		"error_msg":    errMsg,
		"completed_at": now,
	}).Error
}
