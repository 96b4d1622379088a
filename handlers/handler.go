package handlers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/padraicbc/votesettle/models"
	"github.com/padraicbc/votesettle/settlement"
)

// Store is the persistence the handlers read and write directly.
type Store interface {
	UserByUsername(ctx context.Context, username string) (*models.User, error)
	ReplaceResults(ctx context.Context, raceID uuid.UUID, results []*models.RaceResult, payouts []*models.Payout) error
	Rankings(ctx context.Context, period string, limit int) ([]*models.Profile, error)
}

// Settler runs settlement. *settlement.Engine implements it.
type Settler interface {
	SettleRace(ctx context.Context, raceID uuid.UUID, actor string) (*settlement.Result, error)
	ResettleRace(ctx context.Context, raceID uuid.UUID, actor string) (*settlement.Result, error)
	ResettleDate(ctx context.Context, raceDate time.Time, actor string) (*settlement.BatchResult, error)
	RecomputeAll(ctx context.Context) error
}

// Handler holds shared dependencies used by all route handlers.
type Handler struct {
	store   Store
	settler Settler
	logger  *zap.Logger
	JWTKey  []byte
}

// New creates a Handler.
func New(store Store, settler Settler, jwtKey []byte, logger *zap.Logger) *Handler {
	return &Handler{store: store, settler: settler, JWTKey: jwtKey, logger: logger}
}
