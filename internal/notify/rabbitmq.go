// README: RabbitMQ fanout publisher so downstream consumers can react to alarm events.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	alarmExchange = "arrivo.alarms"
	alarmQueue    = "alarm_events"
)

// Publisher is the subset of *amqp.Channel used for publishing.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// RabbitPublisher publishes notifications as JSON to a durable fanout exchange.
type RabbitPublisher struct {
	ch Publisher
}

// topology is the subset of *amqp.Channel used to declare the alarm routing.
type topology interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Close() error
}

// NewRabbitPublisher opens a channel and declares the exchange, queue and binding.
func NewRabbitPublisher(conn *amqp.Connection) (*RabbitPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if err := declareTopology(ch); err != nil {
		return nil, err
	}
	return &RabbitPublisher{ch: ch}, nil
}

// declareTopology closes ch when any declaration fails.
func declareTopology(ch topology) error {
	err := func() error {
		if err := ch.ExchangeDeclare(alarmExchange, "fanout", true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange: %w", err)
		}
		if _, err := ch.QueueDeclare(alarmQueue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue: %w", err)
		}
		if err := ch.QueueBind(alarmQueue, "", alarmExchange, false, nil); err != nil {
			return fmt.Errorf("bind queue: %w", err)
		}
		return nil
	}()
	if err != nil {
		_ = ch.Close()
	}
	return err
}

func newRabbitPublisher(ch Publisher) *RabbitPublisher {
	return &RabbitPublisher{ch: ch}
}

// Close closes the underlying channel when it is closable.
func (p *RabbitPublisher) Close() error {
	if c, ok := p.ch.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

type alarmMessage struct {
	SessionID   string     `json:"session_id"`
	Event       string     `json:"event"`
	Destination alarmPlace `json:"destination"`
	DistanceKm  float64    `json:"distance_km"`
	EtaMinutes  float64    `json:"eta_minutes"`
	Timestamp   int64      `json:"timestamp"`
}

type alarmPlace struct {
	Name      string  `json:"name"`
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (p *RabbitPublisher) Notify(ctx context.Context, n Notification) error {
	msg := alarmMessage{
		SessionID: string(n.SessionID),
		Event:     string(n.Kind),
		Destination: alarmPlace{
			Name:      n.Destination.Name,
			Address:   n.Destination.Address,
			Latitude:  n.Destination.Coordinate.Lat,
			Longitude: n.Destination.Coordinate.Lng,
		},
		DistanceKm: n.DistanceKm,
		EtaMinutes: n.EtaMinutes,
		Timestamp:  n.At.Unix(),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal alarm: %w", err)
	}
	return p.ch.PublishWithContext(ctx, alarmExchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}
