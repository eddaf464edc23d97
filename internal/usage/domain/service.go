package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/gatehouse/internal/scope"
)

type ConsumeRequest struct {
	Scope      scope.Scope
	FeatureKey string
	Quantity   int64
	ActionKey  string
}

type TopUpRequest struct {
	AgencyID   snowflake.ID
	FeatureKey string
	Amount     decimal.Decimal
	Reason     string
}

type Service interface {
	// Consume records consumed units for a metered feature. Callers invoke it
	// after an allowed decision; it never re-checks the cap.
	Consume(ctx context.Context, req ConsumeRequest) (*UsageRecord, error)

	// TopUp appends a positive credit grant to the agency's ledger.
	TopUp(ctx context.Context, req TopUpRequest) (*CreditLedgerEntry, error)

	// Balance returns the agency's current credit balance for a feature.
	Balance(ctx context.Context, agencyID snowflake.ID, featureKey string) (decimal.Decimal, error)
}

var (
	ErrInvalidConsume = errors.New("invalid_usage_record")
	ErrInvalidTopUp   = errors.New("invalid_credit_topup")
)
