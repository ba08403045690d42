// Package fleetsync keeps car operational statuses in step with the fleet
// management system, which publishes them over MQTT.
package fleetsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/hlabsdev/car-reservation-system/internal/db"
	"github.com/hlabsdev/car-reservation-system/internal/models"
	log "github.com/sirupsen/logrus"
)

// DefaultTopic matches fleet/cars/{id}/status.
const DefaultTopic = "fleet/cars/+/status"

const (
	connectTimeout = 10 * time.Second
	handleTimeout  = 5 * time.Second
)

var (
	errBadTopic = errors.New("topic does not name a car")
	errTimeout  = errors.New("timed out waiting for broker")
)

type statusMessage struct {
	Status models.CarStatus `json:"status"`
}

// Subscriber applies car status updates received from the broker.
type Subscriber struct {
	cars   db.CarCollection
	logger log.FieldLogger
	topic  string
	client mqtt.Client
}

// NewSubscriber creates a subscriber for topic; an empty topic means DefaultTopic.
func NewSubscriber(cars db.CarCollection, topic string, logger log.FieldLogger) *Subscriber {
	if topic == "" {
		topic = DefaultTopic
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Subscriber{cars: cars, topic: topic, logger: logger}
}

// Start connects to broker and subscribes with QoS 1. The subscription is
// restored after every reconnect.
func (s *Subscriber) Start(broker, clientID string) error {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout).
		SetOnConnectHandler(func(c mqtt.Client) {
			token := c.Subscribe(s.topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
				if err := s.handleMessage(msg.Topic(), msg.Payload()); err != nil {
					s.logger.WithError(err).WithField("topic", msg.Topic()).Warn("Dropped fleet status message")
				}
			})
			s.subscribed(token, connectTimeout)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			s.logger.WithError(err).Warn("Lost connection to MQTT broker")
		})

	s.client = mqtt.NewClient(opts)
	if err := waitToken(s.client.Connect(), connectTimeout); err != nil {
		return fmt.Errorf("connecting to %s: %w", broker, err)
	}
	return nil
}

// subscribed logs the outcome of a subscribe request and reports whether it succeeded.
func (s *Subscriber) subscribed(token mqtt.Token, timeout time.Duration) bool {
	if err := waitToken(token, timeout); err != nil {
		s.logger.WithError(err).WithField("topic", s.topic).Error("Failed to subscribe")
		return false
	}
	s.logger.WithField("topic", s.topic).Info("Subscribed to fleet status updates")
	return true
}

// waitToken treats a token that does not complete within timeout as failed.
func waitToken(token mqtt.Token, timeout time.Duration) error {
	if !token.WaitTimeout(timeout) {
		return errTimeout
	}
	return token.Error()
}

// Stop unsubscribes and disconnects.
func (s *Subscriber) Stop() {
	if s.client == nil {
		return
	}
	s.client.Unsubscribe(s.topic).WaitTimeout(time.Second)
	s.client.Disconnect(250)
}

func (s *Subscriber) handleMessage(topic string, payload []byte) error {
	carID, err := carIDFromTopic(s.topic, topic)
	if err != nil {
		return err
	}

	var msg statusMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}
	msg.Status = models.CarStatus(strings.ToUpper(string(msg.Status)))
	if !models.IsValidCarStatus(msg.Status) {
		return fmt.Errorf("unknown car status %q", msg.Status)
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()
	if err := s.cars.UpdateCarStatus(ctx, carID, msg.Status); err != nil {
		return fmt.Errorf("updating car %s: %w", carID, err)
	}

	s.logger.WithFields(log.Fields{
		"car_id": carID,
		"status": msg.Status,
	}).Info("Car status updated from fleet")
	return nil
}

// carIDFromTopic returns the level of topic matched by the single "+"
// wildcard of pattern, e.g. {id} in fleet/cars/{id}/status.
func carIDFromTopic(pattern, topic string) (string, error) {
	want := strings.Split(pattern, "/")
	got := strings.Split(topic, "/")
	if len(want) != len(got) {
		return "", fmt.Errorf("%w: %s", errBadTopic, topic)
	}
	carID := ""
	for i := range want {
		switch {
		case want[i] == "+":
			carID = got[i]
		case want[i] != got[i]:
			return "", fmt.Errorf("%w: %s", errBadTopic, topic)
		}
	}
	if carID == "" {
		return "", fmt.Errorf("%w: %s", errBadTopic, topic)
	}
	return carID, nil
}
