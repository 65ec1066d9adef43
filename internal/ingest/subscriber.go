package ingest

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/OptimCE/crm-backend-sub001/domain"
	"github.com/OptimCE/crm-backend-sub001/internal/config"
	"github.com/OptimCE/crm-backend-sub001/internal/metrics"
	"github.com/OptimCE/crm-backend-sub001/usecase/consumption"
)

// Sink writes a decoded batch, parking it when storage is unavailable.
// *consumption.Upserter satisfies it.
type Sink interface {
	IngestOrBuffer(ctx context.Context, tenantID domain.TenantID, owner domain.ConsumptionOwner, samples []domain.ConsumptionSample) (consumption.Result, bool, error)
}

// TenantLookup maps an external community id to its internal key.
type TenantLookup interface {
	TenantByExternalID(ctx context.Context, externalID string) (domain.TenantID, error)
}

// Subscriber feeds consumption messages from an MQTT broker into the
// upserter. Each message is one batch for one owner.
type Subscriber struct {
	cfg     config.MQTTConfig
	sink    Sink
	tenants TenantLookup
	metrics *metrics.Metrics
	logger  *zap.Logger
	timeout time.Duration
}

func NewSubscriber(cfg config.MQTTConfig, sink Sink, tenants TenantLookup, m *metrics.Metrics, timeout time.Duration, logger *zap.Logger) *Subscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Subscriber{
		cfg:     cfg,
		sink:    sink,
		tenants: tenants,
		metrics: m,
		logger:  logger.Named("mqtt"),
		timeout: timeout,
	}
}

// Run connects, subscribes and blocks until ctx is done.
func (s *Subscriber) Run(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.cfg.Broker)
	opts.SetClientID(s.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetCleanSession(false)
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
	}
	if s.cfg.Password != "" {
		opts.SetPassword(s.cfg.Password)
	}
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		s.logger.Info("connected to broker", zap.String("broker", s.cfg.Broker))
		token := c.Subscribe(s.cfg.Topic, byte(s.cfg.QoS), s.onMessage(ctx))
		if token.Wait() && token.Error() != nil {
			s.logger.Error("subscribe failed", zap.String("topic", s.cfg.Topic), zap.Error(token.Error()))
			return
		}
		s.logger.Info("subscribed", zap.String("topic", s.cfg.Topic), zap.Int("qos", s.cfg.QoS))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.logger.Warn("connection to broker lost", zap.Error(err))
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connecting to MQTT broker: %w", token.Error())
	}

	<-ctx.Done()
	client.Unsubscribe(s.cfg.Topic).WaitTimeout(time.Second)
	client.Disconnect(250)
	s.logger.Info("disconnected from broker")
	return nil
}

func (s *Subscriber) onMessage(parent context.Context) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.timeout)
		defer cancel()
		_ = s.Handle(ctx, msg.Topic(), msg.Payload())
	}
}

// Handle decodes and writes one message. Malformed messages and unknown
// communities are dropped since redelivery cannot fix them.
func (s *Subscriber) Handle(ctx context.Context, topic string, payload []byte) error {
	log := s.logger.With(zap.String("topic", topic))

	msg, err := Decode(topic, payload)
	if err != nil {
		s.metrics.IngestMessage("rejected")
		log.Warn("dropping malformed message", zap.Error(err))
		return err
	}

	tenantID, err := s.tenants.TenantByExternalID(ctx, msg.Community)
	if err != nil {
		s.metrics.IngestMessage("rejected")
		log.Warn("dropping message for unknown community", zap.String("community", msg.Community), zap.Error(err))
		return err
	}

	res, buffered, err := s.sink.IngestOrBuffer(ctx, tenantID, msg.Owner, msg.Samples)
	switch {
	case err != nil:
		s.metrics.IngestMessage("failed")
		log.Error("ingesting message failed", zap.String("owner", msg.Owner.String()), zap.Error(err))
		return err
	case buffered:
		s.metrics.IngestMessage("buffered")
	default:
		s.metrics.IngestMessage("written")
		log.Debug("message ingested", zap.String("owner", msg.Owner.String()), zap.Int("rows", res.Rows()))
	}
	return nil
}
