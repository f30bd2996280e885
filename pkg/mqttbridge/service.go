// Package mqttbridge mirrors state changes to an MQTT broker and turns
// messages on .../set topics into operator writes.
package mqttbridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/ammawel/cul_bridge/pkg/statebus"
)

const (
	connectTimeout    = 10 * time.Second
	disconnectQuiesce = 250
)

type Config struct {
	Broker      string
	User        string
	Pass        string
	TopicPrefix string
}

// StateWriter receives operator writes from command topics.
type StateWriter interface {
	SetState(id string, val any) error
}

type Bridge struct {
	cfg    Config
	bus    *statebus.Bus
	writer StateWriter
	log    *log.Entry
}

func New(cfg Config, bus *statebus.Bus, writer StateWriter) *Bridge {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "cul"
	}
	return &Bridge{
		cfg:    cfg,
		bus:    bus,
		writer: writer,
		log:    log.WithField("component", "mqtt"),
	}
}

func (b *Bridge) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(b.cfg.Broker)
	if b.cfg.User != "" {
		opts.SetUsername(b.cfg.User)
		opts.SetPassword(b.cfg.Pass)
	}
	opts.SetClientID("cul_bridge_" + uuid.NewString()[:8])
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		b.log.Info("Connected to MQTT broker")
		topic := SubscribeTopic(b.cfg.TopicPrefix)
		if token := c.Subscribe(topic, 0, b.handleSet); token.Wait() && token.Error() != nil {
			b.log.Errorf("Subscribe %s: %v", topic, token.Error())
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		b.log.Warnf("MQTT connection lost: %v", err)
	})
	return opts
}

// Run publishes every state change until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	client := mqtt.NewClient(b.clientOptions())
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		b.log.Warn("Could not connect to MQTT initially, will retry in background")
	} else if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", b.cfg.Broker, err)
	}
	defer client.Disconnect(disconnectQuiesce)

	changes, unsubscribe := b.bus.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-changes:
			if !ok {
				return errors.New("state bus closed")
			}
			b.publish(client, c)
		}
	}
}

func (b *Bridge) publish(client mqtt.Client, c statebus.Change) {
	if !client.IsConnectionOpen() {
		return
	}
	topic := StateTopic(b.cfg.TopicPrefix, c.ID)
	token := client.Publish(topic, 0, true, EncodePayload(c.Val))
	go func() {
		if token.WaitTimeout(connectTimeout) && token.Error() != nil {
			b.log.Warnf("Publish %s: %v", topic, token.Error())
		}
	}()
}

func (b *Bridge) handleSet(_ mqtt.Client, msg mqtt.Message) {
	id, ok := StateIDFromSetTopic(b.cfg.TopicPrefix, msg.Topic())
	if !ok {
		b.log.Debugf("Ignoring topic %s", msg.Topic())
		return
	}
	val := DecodePayload(msg.Payload())
	b.log.Infof("Received command for %s: %v", id, val)
	if err := b.writer.SetState(id, val); err != nil {
		b.log.Warnf("Command for %s: %v", id, err)
	}
}
