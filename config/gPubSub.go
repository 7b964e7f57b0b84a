package config

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// NewPubSubClient initializes a Pub/Sub client with retries.
// It uses Application Default Credentials unless CredentialsJSON is provided.
func NewPubSubClient(ctx context.Context, cfg PubSubSettings, attempts int) (*pubsub.Client, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")
	}

	var attempt int
	for {
		attempt++

		var (
			c   *pubsub.Client
			err error
		)
		if cfg.CredentialsJSON != "" {
			c, err = pubsub.NewClient(ctx, cfg.ProjectID, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
		} else {
			c, err = pubsub.NewClient(ctx, cfg.ProjectID)
		}
		if err == nil {
			log.Printf("pubsub client ready (project_id=%s attempt=%d)", cfg.ProjectID, attempt)
			return c, nil
		}

		if attempts > 0 && attempt >= attempts {
			return nil, fmt.Errorf("init pubsub client after %d attempts: %w", attempt, err)
		}
		sleep := backoff(attempt)
		log.Printf("failed to init pubsub client (project_id=%s attempt=%d): %v; retrying in %s", cfg.ProjectID, attempt, err, sleep)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
}

func CreateTopicIfNotExists(ctx context.Context, c *pubsub.Client, topic string) (*pubsub.Topic, error) {
	if c == nil {
		return nil, errors.New("pubsub client is nil")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}

	t := c.Topic(topic)
	ok, err := t.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		return t, nil
	}
	t, err = c.CreateTopic(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("create topic %q: %w", topic, err)
	}
	return t, nil
}
