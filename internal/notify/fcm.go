// README: Firebase Cloud Messaging sink for early-warning and arrival pushes.
package notify

import (
	"context"
	"fmt"
	"strconv"

	"firebase.google.com/go/v4/messaging"
	"github.com/sirupsen/logrus"

	"arrivo/internal/modules/proximity"
)

// MessageSender is the subset of *messaging.Client the sink needs.
type MessageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMNotifier sends a high-priority notification message to the session's device.
type FCMNotifier struct {
	client MessageSender
	log    *logrus.Entry
}

func NewFCMNotifier(client MessageSender, log *logrus.Entry) *FCMNotifier {
	return &FCMNotifier{client: client, log: log}
}

// Notify skips sessions that registered no device token; the other sinks
// still deliver to them.
func (f *FCMNotifier) Notify(ctx context.Context, n Notification) error {
	if n.DeviceToken == "" {
		f.log.WithField("session_id", n.SessionID).Debug("fcm skipped, no device token")
		return nil
	}
	messageID, err := f.client.Send(ctx, buildMessage(n))
	if err != nil {
		return fmt.Errorf("sending FCM for session %s: %w", string(n.SessionID), err)
	}
	f.log.WithFields(logrus.Fields{
		"session_id": n.SessionID,
		"kind":       n.Kind,
		"message_id": messageID,
	}).Debug("fcm sent")
	return nil
}

func buildMessage(n Notification) *messaging.Message {
	tag := "location-approach"
	if n.Kind == proximity.EventArrived {
		tag = "location-arrival"
	}
	return &messaging.Message{
		Token: n.DeviceToken,
		Data: map[string]string{
			"type":        string(n.Kind),
			"session_id":  string(n.SessionID),
			"destination": n.Destination.Name,
			"dest_lat":    strconv.FormatFloat(n.Destination.Coordinate.Lat, 'f', 6, 64),
			"dest_lng":    strconv.FormatFloat(n.Destination.Coordinate.Lng, 'f', 6, 64),
			"distance_km": strconv.FormatFloat(n.DistanceKm, 'f', 3, 64),
			"eta_minutes": strconv.FormatFloat(n.EtaMinutes, 'f', 1, 64),
		},
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Tag:                   tag,
				DefaultVibrateTimings: true,
				DefaultSound:          true,
			},
		},
	}
}
