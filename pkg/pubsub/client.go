// Package pubsub owns the Pub/Sub connection the outbox publisher sends
// complaint lifecycle events through. PUBSUB_EMULATOR_HOST is honoured by the
// underlying client for local runs.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/supportdesk-backend/pkg/config"
	"github.com/angelmondragon/supportdesk-backend/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errTopicRequired     = errors.New("pubsub support topic is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

type Client struct {
	ps       *pubsub.Client
	project  string
	topic    string
	sub      string
	settings pubsub.PublishSettings
}

// NewClient connects and fails fast when the support topic, or the optional
// audit subscription, is missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errProjectIDRequired
	}
	topic := strings.TrimSpace(cfg.SupportTopic)
	if topic == "" {
		return nil, errTopicRequired
	}

	ps, err := pubsub.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{
		ps:       ps,
		project:  project,
		topic:    topic,
		sub:      strings.TrimSpace(cfg.SupportSubscription),
		settings: publishSettings(cfg),
	}
	if err := c.Ping(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"project": project,
			"topic":   topic,
		}), "pubsub client initialized")
	}
	return c, nil
}

// publishSettings starts from the library defaults and applies any
// configured batching overrides.
func publishSettings(cfg config.PubSubConfig) pubsub.PublishSettings {
	s := pubsub.DefaultPublishSettings
	if cfg.PublishDelay > 0 {
		s.DelayThreshold = cfg.PublishDelay
	}
	if cfg.PublishCountThreshold > 0 {
		s.CountThreshold = cfg.PublishCountThreshold
	}
	if cfg.PublishTimeout > 0 {
		s.Timeout = cfg.PublishTimeout
	}
	return s
}

// Publisher returns an ordering-enabled publisher for topic, a short id or a
// full resource name. Callers own it and must Stop it.
func (c *Client) Publisher(topic string) *pubsub.Publisher {
	if c == nil || c.ps == nil {
		return nil
	}
	name := qualify(c.project, "topics", topic)
	if name == "" {
		return nil
	}
	p := c.ps.Publisher(name)
	p.PublishSettings = c.settings
	p.EnableMessageOrdering = true
	return p
}

// Ping re-reads the configured topic and subscription.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.ps == nil {
		return errNotInitialized
	}
	_, err := c.ps.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{
		Topic: qualify(c.project, "topics", c.topic),
	})
	if err := describe("topic", c.topic, err); err != nil {
		return err
	}
	if c.sub == "" {
		return nil
	}
	_, err = c.ps.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{
		Subscription: qualify(c.project, "subscriptions", c.sub),
	})
	return describe("subscription", c.sub, err)
}

func describe(kind, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s %q does not exist", kind, name)
	default:
		return fmt.Errorf("checking %s %q: %w", kind, name, err)
	}
}

func (c *Client) Close() error {
	if c == nil || c.ps == nil {
		return nil
	}
	return c.ps.Close()
}

// qualify expands a short id to projects/<project>/<kind>/<id>. Full
// resource names of the same kind pass through.
func qualify(project, kind, name string) string {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return ""
	case strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+kind+"/"):
		return name
	case strings.TrimSpace(project) == "":
		return ""
	}
	return "projects/" + strings.TrimSpace(project) + "/" + kind + "/" + name
}
