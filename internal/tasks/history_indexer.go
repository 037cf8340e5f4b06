package tasks

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/RahulBansal123/audius-protocol/internal/cache"
	"github.com/RahulBansal123/audius-protocol/internal/eventbus"
	"github.com/RahulBansal123/audius-protocol/internal/models"
)

const (
	historyCheckpoint = "user_listening_history"
	defaultPlayBatch  = 5000
)

// HistoryStore is the slice of the repository the history fold needs.
type HistoryStore interface {
	GetCheckpoint(ctx context.Context, tablename string) (int64, error)
	SaveCheckpoint(ctx context.Context, tablename string, lastRowID int64) error
	GetPlaysAfter(ctx context.Context, afterID int64, limit int) ([]models.Play, error)
	GetListeningHistories(ctx context.Context, userIDs []int64) (map[int64][]models.ListenRecord, error)
	UpsertListeningHistory(ctx context.Context, userID int64, history []models.ListenRecord) error
}

// CompletionRecorder records when a job last finished.
type CompletionRecorder interface {
	SetLastCompletion(ctx context.Context, key string, t time.Time) error
}

// HistoryIndexer folds newly indexed plays into each user's denormalized
// listening-history log. Repeat plays are appended like any other play;
// the log stays in chronological order.
type HistoryIndexer struct {
	store     HistoryStore
	completed CompletionRecorder
	bus       *eventbus.Bus
	logger    *zap.Logger
	batchSize int
}

func NewHistoryIndexer(store HistoryStore, completed CompletionRecorder, bus *eventbus.Bus, logger *zap.Logger) *HistoryIndexer {
	return &HistoryIndexer{
		store:     store,
		completed: completed,
		bus:       bus,
		logger:    logger.Named("history_indexer"),
		batchSize: defaultPlayBatch,
	}
}

// Run processes one batch of plays past the persisted checkpoint.
func (hi *HistoryIndexer) Run(ctx context.Context) error {
	checkpoint, err := hi.store.GetCheckpoint(ctx, historyCheckpoint)
	if err != nil {
		return err
	}
	plays, err := hi.store.GetPlaysAfter(ctx, checkpoint, hi.batchSize)
	if err != nil {
		return err
	}
	if len(plays) == 0 {
		return hi.recordCompletion(ctx)
	}

	byUser, userIDs, maxID := groupPlays(plays)
	histories, err := hi.store.GetListeningHistories(ctx, userIDs)
	if err != nil {
		return err
	}

	for _, userID := range userIDs {
		history := histories[userID]
		for _, play := range byUser[userID] {
			history = append(history, models.ListenRecord{
				TrackID:   play.PlayItemID,
				Timestamp: play.CreatedAt,
			})
		}
		if err := hi.store.UpsertListeningHistory(ctx, userID, history); err != nil {
			return err
		}
		if hi.bus != nil {
			for _, play := range byUser[userID] {
				hi.bus.Publish(eventbus.Event{
					Type:      eventbus.TypePlayRecorded,
					Timestamp: time.Now(),
					Data: map[string]interface{}{
						"user_id":   userID,
						"track_id":  play.PlayItemID,
						"played_at": play.CreatedAt,
					},
				})
			}
		}
	}

	if err := hi.store.SaveCheckpoint(ctx, historyCheckpoint, maxID); err != nil {
		return err
	}
	hi.logger.Info("indexed plays into listening history",
		zap.Int("plays", len(plays)),
		zap.Int("users", len(userIDs)),
		zap.Int64("checkpoint", maxID))
	return hi.recordCompletion(ctx)
}

func (hi *HistoryIndexer) recordCompletion(ctx context.Context) error {
	if hi.completed == nil {
		return nil
	}
	return hi.completed.SetLastCompletion(ctx, cache.HistoryIndexCompletionKey, time.Now())
}

// groupPlays buckets plays by user in chronological order, dropping
// anonymous plays. userIDs preserves first-seen order for deterministic
// processing; maxID is the high-water mark for the checkpoint.
func groupPlays(plays []models.Play) (map[int64][]models.Play, []int64, int64) {
	byUser := make(map[int64][]models.Play)
	var userIDs []int64
	var maxID int64
	for _, play := range plays {
		if play.ID > maxID {
			maxID = play.ID
		}
		if play.UserID == nil {
			continue
		}
		id := *play.UserID
		if _, ok := byUser[id]; !ok {
			userIDs = append(userIDs, id)
		}
		byUser[id] = append(byUser[id], play)
	}
	for _, id := range userIDs {
		bucket := byUser[id]
		sort.SliceStable(bucket, func(i, j int) bool {
			if !bucket[i].CreatedAt.Equal(bucket[j].CreatedAt) {
				return bucket[i].CreatedAt.Before(bucket[j].CreatedAt)
			}
			return bucket[i].ID < bucket[j].ID
		})
	}
	return byUser, userIDs, maxID
}
