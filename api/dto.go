/*
dto.go - Request and response bodies for the HTTP API

PURPOSE:
  Request types decouple the wire format from the domain structs: optional
  fields are pointers so an update can tell "absent" from "zero", and the
  server owns ids, balances and timestamps. Domain types already carry JSON
  tags and are returned as-is unless a response needs extra fields.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *DTO:     Response types that differ from the domain struct

SEE ALSO:
  - handlers.go: Uses these types
  - finance/types.go: Domain structs returned in responses
*/
package api

import (
	"github.com/shopspring/decimal"
	"github.com/warp/finance-tracker/finance"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// ACCOUNTS
// =============================================================================

type AccountRequest struct {
	Name           string              `json:"name"`
	Type           finance.AccountType `json:"type"`
	InitialBalance decimal.Decimal     `json:"initial_balance"`
	CreditLimit    *decimal.Decimal    `json:"credit_limit,omitempty"`
	Currency       string              `json:"currency"`
	Color          string              `json:"color"`
	Icon           string              `json:"icon"`
	IsActive       *bool               `json:"is_active,omitempty"`
}

func (req AccountRequest) toAccount() finance.Account {
	return finance.Account{
		Name:           req.Name,
		Type:           req.Type,
		InitialBalance: req.InitialBalance,
		CreditLimit:    req.CreditLimit,
		Currency:       req.Currency,
		Color:          req.Color,
		Icon:           req.Icon,
		IsActive:       req.IsActive == nil || *req.IsActive,
	}
}

type AdjustBalanceRequest struct {
	NewBalance decimal.Decimal `json:"new_balance"`
	Date       *finance.Date   `json:"date,omitempty"`
	Notes      string          `json:"notes"`
}

type AdjustBalanceResponse struct {
	Account     finance.Account      `json:"account"`
	Transaction *finance.Transaction `json:"transaction,omitempty"`
}

// DeleteResponse tells the client whether a row was removed or only
// deactivated because history still references it.
type DeleteResponse struct {
	Deleted     bool `json:"deleted"`
	Deactivated bool `json:"deactivated"`
}

// =============================================================================
// CATALOG
// =============================================================================

type CategoryRequest struct {
	Name     string                  `json:"name"`
	ParentID *finance.CategoryID     `json:"parent_id,omitempty"`
	Type     finance.TransactionType `json:"type"`
	Icon     string                  `json:"icon"`
	Color    string                  `json:"color"`
	IsActive *bool                   `json:"is_active,omitempty"`
}

func (req CategoryRequest) toCategory() finance.Category {
	return finance.Category{
		Name:     req.Name,
		ParentID: req.ParentID,
		Type:     req.Type,
		Icon:     req.Icon,
		Color:    req.Color,
		IsActive: req.IsActive == nil || *req.IsActive,
	}
}

type TagRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

type BudgetRequest struct {
	Name       string             `json:"name"`
	CategoryID finance.CategoryID `json:"category_id"`
	Amount     decimal.Decimal    `json:"amount"`
	Period     finance.Frequency  `json:"period"`
	StartDate  finance.Date       `json:"start_date"`
	EndDate    *finance.Date      `json:"end_date,omitempty"`
	IsActive   *bool              `json:"is_active,omitempty"`
}

func (req BudgetRequest) toBudget() finance.Budget {
	period := req.Period
	if period == "" {
		period = finance.FrequencyMonthly
	}
	return finance.Budget{
		Name:       req.Name,
		CategoryID: req.CategoryID,
		Amount:     req.Amount,
		Period:     period,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		IsActive:   req.IsActive == nil || *req.IsActive,
	}
}

type GoalRequest struct {
	Name          string             `json:"name"`
	TargetAmount  decimal.Decimal    `json:"target_amount"`
	CurrentAmount decimal.Decimal    `json:"current_amount"`
	TargetDate    *finance.Date      `json:"target_date,omitempty"`
	AccountID     *finance.AccountID `json:"account_id,omitempty"`
	Notes         string             `json:"notes"`
}

func (req GoalRequest) toGoal() finance.SavingsGoal {
	return finance.SavingsGoal{
		Name:          req.Name,
		TargetAmount:  req.TargetAmount,
		CurrentAmount: req.CurrentAmount,
		TargetDate:    req.TargetDate,
		AccountID:     req.AccountID,
		Notes:         req.Notes,
	}
}

type DepositRequest struct {
	Amount        decimal.Decimal        `json:"amount"`
	Date          *finance.Date          `json:"date,omitempty"`
	TransactionID *finance.TransactionID `json:"transaction_id,omitempty"`
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

type TransactionRequest struct {
	Date        finance.Date            `json:"date"`
	Type        finance.TransactionType `json:"type"`
	Amount      decimal.Decimal         `json:"amount"`
	From        *finance.AccountID      `json:"account_from_id,omitempty"`
	To          *finance.AccountID      `json:"account_to_id,omitempty"`
	CategoryID  *finance.CategoryID     `json:"category_id,omitempty"`
	Description string                  `json:"description"`
	Notes       string                  `json:"notes"`
	TagIDs      []finance.TagID         `json:"tag_ids"`
}

func (req TransactionRequest) toTransaction() finance.Transaction {
	return finance.Transaction{
		Date:        req.Date,
		Type:        req.Type,
		Amount:      req.Amount,
		From:        req.From,
		To:          req.To,
		CategoryID:  req.CategoryID,
		Description: req.Description,
		Notes:       req.Notes,
		TagIDs:      req.TagIDs,
	}
}

// =============================================================================
// RECURRING RULES
// =============================================================================

type RecurringRuleRequest struct {
	Name        string                  `json:"name"`
	Type        finance.TransactionType `json:"type"`
	Amount      decimal.Decimal         `json:"amount"`
	From        *finance.AccountID      `json:"account_from_id,omitempty"`
	To          *finance.AccountID      `json:"account_to_id,omitempty"`
	CategoryID  *finance.CategoryID     `json:"category_id,omitempty"`
	Description string                  `json:"description"`
	Frequency   finance.Frequency       `json:"frequency"`
	StartDate   finance.Date            `json:"start_date"`
	EndDate     *finance.Date           `json:"end_date,omitempty"`
	IsActive    *bool                   `json:"is_active,omitempty"`
}

func (req RecurringRuleRequest) toRule() finance.RecurringRule {
	return finance.RecurringRule{
		Name:        req.Name,
		Type:        req.Type,
		Amount:      req.Amount,
		From:        req.From,
		To:          req.To,
		CategoryID:  req.CategoryID,
		Description: req.Description,
		Frequency:   req.Frequency,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		IsActive:    req.IsActive == nil || *req.IsActive,
	}
}

// RuleOutcomeDTO is one rule's line in a batch response. The error is
// flattened to text.
type RuleOutcomeDTO struct {
	finance.MaterializeResult
	Status string `json:"status"` // ok or failed
	Error  string `json:"error,omitempty"`
}

type BatchResultDTO struct {
	RunID        string           `json:"run_id"`
	AsOf         finance.Date     `json:"as_of"`
	TotalCreated int              `json:"total_created"`
	Processed    int              `json:"processed_count"`
	Failed       int              `json:"failed_count"`
	Rules        []RuleOutcomeDTO `json:"per_rule_results"`
}

func toBatchDTO(runID string, asOf finance.Date, batch finance.BatchResult) BatchResultDTO {
	dto := BatchResultDTO{
		RunID:        runID,
		AsOf:         asOf,
		TotalCreated: batch.TotalCreated,
		Processed:    batch.Processed,
		Failed:       batch.Failed,
		Rules:        make([]RuleOutcomeDTO, 0, len(batch.Rules)),
	}
	for _, o := range batch.Rules {
		line := RuleOutcomeDTO{MaterializeResult: o.MaterializeResult, Status: "ok"}
		if o.Err != nil {
			line.Status = "failed"
			line.Error = o.Err.Error()
		}
		dto.Rules = append(dto.Rules, line)
	}
	return dto
}

type StatusResponse struct {
	Status        string `json:"status"`
	SchemaVersion uint   `json:"schema_version"`
}
