package artifact

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/YuminosukeSato/replenish/forecast"
	"github.com/YuminosukeSato/replenish/pkg/errors"
	"github.com/YuminosukeSato/replenish/pkg/log"
)

// DefaultChannel is the Redis channel new model versions are announced on.
const DefaultChannel = "replenish:model-updated"

// Update is the message published after a new artifact is saved.
type Update struct {
	ModelVersion string    `json:"model_version"`
	TrainingDate time.Time `json:"training_date"`
	PublishedAt  time.Time `json:"published_at"`
}

// Publisher is the subset of *redis.Client used to announce updates.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// NotifyingStore wraps an ArtifactStore and publishes an Update after every
// successful Save.
type NotifyingStore struct {
	forecast.ArtifactStore
	pub     Publisher
	channel string
	logger  log.Logger
}

// NewNotifyingStore wraps store. An empty channel uses DefaultChannel.
func NewNotifyingStore(store forecast.ArtifactStore, pub Publisher, channel string, logger log.Logger) *NotifyingStore {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = log.GetLoggerWithName("artifact.notify")
	}
	return &NotifyingStore{ArtifactStore: store, pub: pub, channel: channel, logger: logger}
}

// Save stores a and announces it. The artifact stays saved when publishing
// fails; the failure is only logged.
func (s *NotifyingStore) Save(ctx context.Context, a *forecast.Artifact) error {
	if err := s.ArtifactStore.Save(ctx, a); err != nil {
		return err
	}
	payload, err := json.Marshal(Update{
		ModelVersion: a.ModelVersion,
		TrainingDate: a.TrainingDate,
		PublishedAt:  time.Now().UTC(),
	})
	if err != nil {
		return errors.Wrap(err, "failed to encode model update")
	}
	if err := s.pub.Publish(ctx, s.channel, payload).Err(); err != nil {
		s.logger.Warn("Failed to publish model update",
			log.ErrAttrKey, err,
			log.ModelVersionKey, a.ModelVersion,
			"channel", s.channel)
		return nil
	}
	s.logger.Info("Published model update",
		log.ModelVersionKey, a.ModelVersion,
		"channel", s.channel)
	return nil
}

// Subscribe listens on channel and calls onUpdate for every valid Update
// until ctx is done. It returns once the subscription is confirmed.
func Subscribe(ctx context.Context, rdb *redis.Client, channel string, logger log.Logger, onUpdate func(Update)) error {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = log.GetLoggerWithName("artifact.notify")
	}

	sub := rdb.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return errors.NewStorageError("artifact.Subscribe", "redis", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				handleMessage(m.Payload, logger, onUpdate)
			}
		}
	}()
	return nil
}

func handleMessage(payload string, logger log.Logger, onUpdate func(Update)) {
	var u Update
	if err := json.Unmarshal([]byte(payload), &u); err != nil || u.ModelVersion == "" {
		logger.Warn("Ignoring malformed model update", "payload", payload)
		return
	}
	logger.Info("Received model update", log.ModelVersionKey, u.ModelVersion)
	// a panicking handler must not end the subscription
	err := errors.SafeExecute("artifact.onUpdate", func() error {
		onUpdate(u)
		return nil
	})
	if err != nil {
		logger.Error("Model update handler failed", log.ModelVersionKey, u.ModelVersion, log.ErrAttrKey, err)
	}
}
