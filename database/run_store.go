package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"

	"promptopt/optimize"
)

const runCollection = "optimization_runs"

// RunRecord is one persisted optimization run: which optimizer ran, the
// trials it evaluated and the serialized compiled program that won.
type RunRecord struct {
	RunID     string           `bson:"run_id"`
	Optimizer string           `bson:"optimizer"`
	BestScore float64          `bson:"best_score"`
	Trials    []optimize.Trial `bson:"trials,omitempty"`
	Compiled  string           `bson:"compiled"`
	CreatedAt time.Time        `bson:"created_at"`
}

// NewRunRecord assembles a record with a fresh run id.
func NewRunRecord(optimizer string, trials []optimize.Trial, compiledState []byte) RunRecord {
	rec := RunRecord{
		RunID:     uuid.NewString(),
		Optimizer: optimizer,
		Trials:    trials,
		Compiled:  string(compiledState),
		CreatedAt: time.Now().UTC(),
	}
	if best, ok := optimize.BestTrial(trials); ok {
		rec.BestScore = best.Score
	}
	return rec
}

// SaveRun inserts the record.
func SaveRun(ctx context.Context, db *mongo.Database, rec RunRecord) error {
	if _, err := db.Collection(runCollection).InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("save run %s: %w", rec.RunID, err)
	}
	return nil
}

// LoadRun fetches a record by run id.
func LoadRun(ctx context.Context, db *mongo.Database, runID string) (RunRecord, error) {
	filter := NewFilterKV("run_id", runID)
	var rec RunRecord
	if err := db.Collection(runCollection).FindOne(ctx, filter.Build()).Decode(&rec); err != nil {
		return RunRecord{}, fmt.Errorf("load run %s: %w", runID, err)
	}
	return rec, nil
}
