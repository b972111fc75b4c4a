package main

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

const (
	maxBackoff   = 10 * time.Second
	jitterWindow = 250 * time.Millisecond
)

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// orderingResumer unpauses an ordering key after a failed publish.
type orderingResumer interface {
	ResumePublish(orderingKey string)
}

type stopper interface {
	Stop()
}

type publisherFactory func(topic string) publisher

// publisherCache keeps one publisher per topic for the life of the process.
type publisherCache struct {
	mu      sync.Mutex
	factory publisherFactory
	byTopic map[string]publisher
}

func newPublisherCache(factory publisherFactory) *publisherCache {
	return &publisherCache{factory: factory, byTopic: map[string]publisher{}}
}

func (c *publisherCache) get(topic string) publisher {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.byTopic[topic]; ok {
		return p
	}
	p := c.factory(topic)
	if p != nil {
		c.byTopic[topic] = p
	}
	return p
}

// stop flushes and stops every cached publisher.
func (c *publisherCache) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for topic, p := range c.byTopic {
		if s, ok := p.(stopper); ok {
			s.Stop()
		}
		delete(c.byTopic, topic)
	}
}

func pubSubPublisherFactory(client pubSubClient) publisherFactory {
	return func(topic string) publisher {
		p := client.Publisher(topic)
		if p == nil {
			return nil
		}
		return &gcpPublisher{Publisher: p}
	}
}

// gcpPublisher adapts *pubsub.Publisher; ResumePublish and Stop are promoted.
type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	res := p.Publisher.Publish(ctx, msg)
	if res == nil {
		return nil
	}
	return gcpResult{res}
}

type gcpResult struct {
	r *gcppubsub.PublishResult
}

func (g gcpResult) Get(ctx context.Context) (string, error) {
	if g.r == nil {
		return "", errors.New("publish result is nil")
	}
	return g.r.Get(ctx)
}

// backoff doubles from base up to maxBackoff, with jitter on every step.
type backoff struct {
	base, current time.Duration
}

func newBackoff(base time.Duration) *backoff {
	return &backoff{base: base, current: base}
}

func (b *backoff) next() time.Duration {
	b.current *= 2
	if b.current <= 0 || b.current > maxBackoff {
		b.current = maxBackoff
	}
	return withJitter(b.current)
}

func (b *backoff) reset() {
	b.current = b.base
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}
