package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByAgencyID(ctx context.Context, db *gorm.DB, agencyID snowflake.ID) (*Subscription, error)
	ListAddOns(ctx context.Context, db *gorm.DB, agencyID snowflake.ID) ([]AddOn, error)
}
