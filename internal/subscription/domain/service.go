package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// State is the coarse subscription state the policy engine reasons about.
type State string

const (
	StateActive State = "ACTIVE"
	StateTrial  State = "TRIAL"
	StateNone   State = "NONE"
)

type Service interface {
	// ActivePlanIDs returns the de-duplicated billing plan identifiers
	// currently granting features: the base subscription's price id when
	// entitled plus every current add-on, in discovery order. An agency
	// with no entitled plans yields an empty slice, not an error.
	ActivePlanIDs(ctx context.Context, agencyID snowflake.ID) ([]string, error)

	// State reports the agency's coarse subscription state.
	State(ctx context.Context, agencyID snowflake.ID) (State, error)
}
