package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/posturepulse/dashboard/internal/models"
	"github.com/posturepulse/dashboard/internal/posture"
)

const (
	topicSuffix       = "records"
	minReconnectDelay = time.Second
	maxReconnectDelay = 30 * time.Second
)

// RecordStore accepts a batch of records for a subject
type RecordStore interface {
	StoreRecords(ctx context.Context, subjectID string, batch *models.BatchRecords) ([]posture.Sample, error)
}

// Subscriber stores posture records published by sensors on
// <prefix>/<subject>/records. A payload is either one record or
// {"records": [...]}.
type Subscriber struct {
	address  string
	prefix   string
	clientID string
	store    RecordStore
	logger   *zap.Logger
	messages *prometheus.CounterVec

	ready     chan struct{}
	readyOnce sync.Once
}

func NewSubscriber(
	brokerURL, prefix, clientID string,
	store RecordStore,
	reg prometheus.Registerer,
	logger *zap.Logger,
) (*Subscriber, error) {
	u, err := url.Parse(brokerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse broker URL: %w", err)
	}
	switch u.Scheme {
	case "mqtt", "tcp":
	default:
		return nil, fmt.Errorf("unsupported broker scheme %q", u.Scheme)
	}
	address := u.Host
	if u.Port() == "" {
		address = net.JoinHostPort(u.Hostname(), "1883")
	}

	return &Subscriber{
		address:  address,
		prefix:   strings.TrimSuffix(prefix, "/"),
		clientID: clientID,
		store:    store,
		logger:   logger.With(zap.String("component", "mqtt-ingest"), zap.String("broker", address)),
		messages: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "posture_mqtt_messages_total",
				Help: "Sensor messages received over MQTT, by outcome",
			},
			[]string{"outcome"},
		),
		ready: make(chan struct{}),
	}, nil
}

// Ready is closed after the first successful subscription
func (s *Subscriber) Ready() <-chan struct{} {
	return s.ready
}

// Run keeps a broker session alive until ctx is cancelled, reconnecting with
// exponential backoff.
func (s *Subscriber) Run(ctx context.Context) error {
	delay := minReconnectDelay

	for {
		subscribed, err := s.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if subscribed {
			delay = minReconnectDelay
		}

		s.logger.Warn("MQTT session ended, reconnecting", zap.Duration("delay", delay), zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, maxReconnectDelay)
	}
}

// session connects, subscribes and blocks until the connection drops
func (s *Subscriber) session(ctx context.Context) (bool, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", s.address)
	if err != nil {
		return false, fmt.Errorf("dial broker: %w", err)
	}

	lost := make(chan error, 1)
	signal := func(err error) {
		select {
		case lost <- err:
		default:
		}
	}

	client := paho.NewClient(paho.ClientConfig{
		ClientID: s.clientID,
		Conn:     conn,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			func(pr paho.PublishReceived) (bool, error) {
				s.handle(ctx, pr.Packet.Topic, pr.Packet.Payload)
				return true, nil
			},
		},
		OnClientError: func(err error) {
			signal(err)
		},
		OnServerDisconnect: func(disconnect *paho.Disconnect) {
			signal(fmt.Errorf("server disconnected with reason %d", disconnect.ReasonCode))
		},
	})

	if _, err := client.Connect(ctx, &paho.Connect{
		ClientID:   s.clientID,
		KeepAlive:  30,
		CleanStart: true,
	}); err != nil {
		_ = conn.Close()
		return false, fmt.Errorf("connect: %w", err)
	}
	defer client.Disconnect(&paho.Disconnect{ReasonCode: 0})

	topic := s.prefix + "/+/" + topicSuffix
	if _, err := client.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: topic, QoS: 1}},
	}); err != nil {
		return false, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	s.logger.Info("Subscribed to sensor topic", zap.String("topic", topic))
	s.readyOnce.Do(func() { close(s.ready) })

	select {
	case <-ctx.Done():
		return true, nil
	case err := <-lost:
		return true, err
	}
}

func (s *Subscriber) handle(ctx context.Context, topic string, payload []byte) {
	subjectID, ok := s.subjectFromTopic(topic)
	if !ok {
		s.messages.WithLabelValues("bad_topic").Inc()
		s.logger.Warn("Ignoring message on unexpected topic", zap.String("topic", topic))
		return
	}

	batch, err := decodePayload(payload)
	if err != nil {
		s.messages.WithLabelValues("bad_payload").Inc()
		s.logger.Warn("Ignoring malformed sensor payload",
			zap.String("subject_id", subjectID),
			zap.Error(err))
		return
	}

	if _, err := s.store.StoreRecords(ctx, subjectID, batch); err != nil {
		s.messages.WithLabelValues("rejected").Inc()
		s.logger.Error("Failed to store sensor records",
			zap.String("subject_id", subjectID),
			zap.Error(err))
		return
	}
	s.messages.WithLabelValues("stored").Inc()
}

func (s *Subscriber) subjectFromTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, s.prefix+"/")
	if !ok {
		return "", false
	}
	subjectID, ok := strings.CutSuffix(rest, "/"+topicSuffix)
	if !ok || subjectID == "" || strings.Contains(subjectID, "/") {
		return "", false
	}
	return subjectID, true
}

func decodePayload(payload []byte) (*models.BatchRecords, error) {
	var batch models.BatchRecords
	if err := json.Unmarshal(payload, &batch); err == nil && len(batch.Records) > 0 {
		return &batch, nil
	}

	var record models.PostureRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, err
	}
	if record.Sitting == nil {
		return nil, errors.New("payload has neither records nor a sitting state")
	}
	return &models.BatchRecords{Records: []models.PostureRecord{record}}, nil
}
