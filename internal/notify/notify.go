// Package notify delivers like notifications to post authors.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pders01/synfeed/internal/debuglog"
)

// LikeNotification tells AuthorID that ActorID liked PostID.
type LikeNotification struct {
	PostID    string `json:"post_id"`
	AuthorID  string `json:"author_id"`
	ActorID   string `json:"actor_id"`
	ActorName string `json:"actor_name"`
	SentAt    int64  `json:"sent_at"`
}

type Notifier interface {
	SendLikeNotification(ctx context.Context, n LikeNotification) error
}

// Log writes notifications to the debug log. It is the default when no
// broker is configured.
type Log struct{}

func (Log) SendLikeNotification(_ context.Context, n LikeNotification) error {
	debuglog.WithFields(map[string]any{
		"post":   n.PostID,
		"author": n.AuthorID,
		"actor":  n.ActorID,
	}).Infof("like notification for %s", n.AuthorID)
	return nil
}

// Publisher is the subset of *amqp.Channel used by AMQP.
type Publisher interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQP publishes notifications as JSON to a topic exchange. The exchange is
// declared on first use.
type AMQP struct {
	ch         Publisher
	exchange   string
	routingKey string

	declareOnce sync.Once
	declareErr  error
}

func NewAMQP(ch Publisher, exchange, routingKey string) *AMQP {
	return &AMQP{ch: ch, exchange: exchange, routingKey: routingKey}
}

// Dial opens a connection and channel to the broker at url.
func Dial(url string) (*amqp.Channel, *amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("opening rabbitmq channel: %w", err)
	}
	return ch, conn, nil
}

func (a *AMQP) SendLikeNotification(ctx context.Context, n LikeNotification) error {
	a.declareOnce.Do(func() {
		a.declareErr = a.ch.ExchangeDeclare(a.exchange, "topic", true, false, false, false, nil)
	})
	if a.declareErr != nil {
		return fmt.Errorf("declaring exchange %s: %w", a.exchange, a.declareErr)
	}

	if n.SentAt == 0 {
		n.SentAt = time.Now().UnixMilli()
	}
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}

	trace.SpanFromContext(ctx).AddEvent("publishing like notification",
		trace.WithAttributes(
			attribute.String("post.id", n.PostID),
			attribute.String("author.id", n.AuthorID),
		))

	msg := amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.UnixMilli(n.SentAt),
		Body:        body,
	}
	if err := a.ch.PublishWithContext(ctx, a.exchange, a.routingKey, false, false, msg); err != nil {
		return fmt.Errorf("publishing to %s: %w", a.exchange, err)
	}
	return nil
}
