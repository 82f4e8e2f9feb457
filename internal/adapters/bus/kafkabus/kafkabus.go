// Package kafkabus relays channel events between server instances through a Kafka topic.
// Every instance joins its own consumer group so each one sees every event.
package kafkabus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/0Azuree/Ledeqth-sub000/internal/core"
)

type Config struct {
	Brokers  []string
	Topic    string
	GroupID  string
	ClientID string
	Username string
	Password string
}

type Bus struct {
	producer sarama.SyncProducer
	group    sarama.ConsumerGroup
	topic    string
	sink     core.Deliverer
}

var _ core.Publisher = (*Bus)(nil)

func saramaConfig(cfg Config) *sarama.Config {
	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForLocal
	sc.Producer.Timeout = 5 * time.Second
	sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	sc.Consumer.Return.Errors = true
	if cfg.Username != "" {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		sc.Net.SASL.User = cfg.Username
		sc.Net.SASL.Password = cfg.Password
	}
	return sc
}

func New(cfg Config, sink core.Deliverer) (*Bus, error) {
	sc := saramaConfig(cfg)
	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	groupID := cfg.GroupID + "-" + uuid.NewString()
	group, err := sarama.NewConsumerGroup(cfg.Brokers, groupID, sc)
	if err != nil {
		_ = producer.Close()
		return nil, fmt.Errorf("kafka consumer group: %w", err)
	}
	log.Info().Str("module", "bus.kafka").Str("topic", cfg.Topic).Str("group", groupID).Msg("connected")
	return &Bus{producer: producer, group: group, topic: cfg.Topic, sink: sink}, nil
}

// Publish keys messages by channel so one room's events stay ordered within a partition.
func (b *Bus) Publish(ctx context.Context, ev core.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	partition, offset, err := b.producer.SendMessage(&sarama.ProducerMessage{
		Topic: b.topic,
		Key:   sarama.StringEncoder(ev.Channel),
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		return fmt.Errorf("kafka publish %s: %w", ev.Channel, err)
	}
	log.Debug().Str("module", "bus.kafka").Str("channel", ev.Channel).Int32("partition", partition).Int64("offset", offset).Msg("published")
	return nil
}

// Run consumes until ctx is done or the group is closed.
func (b *Bus) Run(ctx context.Context) error {
	go func() {
		for err := range b.group.Errors() {
			log.Warn().Err(err).Str("module", "bus.kafka").Msg("consumer error")
		}
	}()
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := b.group.Consume(ctx, []string{b.topic}, b); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			log.Error().Err(err).Str("module", "bus.kafka").Msg("consume")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	}
}

func (b *Bus) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (b *Bus) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (b *Bus) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		b.deliver(msg)
		session.MarkMessage(msg, "")
	}
	return nil
}

func (b *Bus) deliver(msg *sarama.ConsumerMessage) {
	var ev core.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		log.Warn().Err(err).Str("module", "bus.kafka").Int64("offset", msg.Offset).Msg("bad event payload")
		return
	}
	if ev.Channel == "" {
		ev.Channel = string(msg.Key)
	}
	b.sink.Deliver(ev)
}

func (b *Bus) Close() error {
	return errors.Join(b.group.Close(), b.producer.Close())
}
