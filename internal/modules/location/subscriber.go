// README: MQTT position source; devices publish fixes and source errors per session topic.
package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"arrivo/internal/types"
)

const (
	positionTopic = "arrivo/sessions/+/position"
	errorTopic    = "arrivo/sessions/+/error"
	handleTimeout = 5 * time.Second
)

type positionMessage struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Timestamp int64    `json:"timestamp"`
}

type errorMessage struct {
	Reason string `json:"reason"`
}

type ingester interface {
	Update(ctx context.Context, u Update) error
	ReportError(ctx context.Context, id types.ID, reason string) error
}

// Subscriber consumes MQTT position topics and feeds the location service.
type Subscriber struct {
	client mqtt.Client
	svc    ingester
	log    *logrus.Entry
}

func NewSubscriber(client mqtt.Client, svc ingester, log *logrus.Entry) *Subscriber {
	return &Subscriber{client: client, svc: svc, log: log}
}

func (s *Subscriber) Start() error {
	filters := map[string]byte{positionTopic: 1, errorTopic: 1}
	token := s.client.SubscribeMultiple(filters, s.route)
	token.Wait()
	return token.Error()
}

func (s *Subscriber) Stop() error {
	token := s.client.Unsubscribe(positionTopic, errorTopic)
	token.Wait()
	return token.Error()
}

func (s *Subscriber) route(_ mqtt.Client, msg mqtt.Message) {
	id, kind, err := parseTopic(msg.Topic())
	if err != nil {
		s.log.WithField("topic", msg.Topic()).Warn("unexpected topic")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	log := s.log.WithField("session_id", id)
	switch kind {
	case "position":
		u, err := decodePosition(id, msg.Payload())
		if err != nil {
			log.WithError(err).Warn("invalid position message")
			return
		}
		if err := s.svc.Update(ctx, u); err != nil {
			log.WithError(err).Warn("position update rejected")
		}
	case "error":
		var raw errorMessage
		if err := json.Unmarshal(msg.Payload(), &raw); err != nil || raw.Reason == "" {
			log.Warn("invalid source error message")
			return
		}
		if err := s.svc.ReportError(ctx, id, raw.Reason); err != nil {
			log.WithError(err).Warn("source error rejected")
		}
	}
}

func parseTopic(topic string) (types.ID, string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != "arrivo" || parts[1] != "sessions" || parts[2] == "" {
		return "", "", fmt.Errorf("topic %q", topic)
	}
	switch parts[3] {
	case "position", "error":
		return types.ID(parts[2]), parts[3], nil
	}
	return "", "", fmt.Errorf("topic %q", topic)
}

func decodePosition(id types.ID, payload []byte) (Update, error) {
	var raw positionMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Update{}, err
	}
	if raw.Latitude == nil || raw.Longitude == nil {
		return Update{}, errors.New("latitude and longitude are required")
	}
	u := Update{
		SessionID: id,
		Position:  types.Point{Lat: *raw.Latitude, Lng: *raw.Longitude},
	}
	if raw.Timestamp > 0 {
		u.RecordedAt = time.UnixMilli(raw.Timestamp)
	}
	return u, nil
}
