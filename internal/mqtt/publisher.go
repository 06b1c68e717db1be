package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"deconzctl/internal/deconz"
)

// Publisher republishes gateway events to an MQTT broker. Light state
// events go to <prefix>/lights/<id>/state, group events to
// <prefix>/groups/<id>/state.
type Publisher struct {
	client      mqtt.Client
	topicPrefix string
	broker      string
}

type Options struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

func NewPublisher(opts Options) *Publisher {
	clientOpts := mqtt.NewClientOptions()
	clientOpts.AddBroker(opts.Broker)
	clientOpts.SetClientID(opts.ClientID)

	if strings.HasPrefix(opts.Broker, "ssl://") || strings.HasPrefix(opts.Broker, "wss://") {
		clientOpts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
		clientOpts.SetPassword(opts.Password)
	}

	clientOpts.SetAutoReconnect(true)
	clientOpts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Printf("[mqtt] Connection lost: %v", err)
	})
	clientOpts.SetReconnectingHandler(func(client mqtt.Client, opts *mqtt.ClientOptions) {
		log.Printf("[mqtt] Reconnecting to broker...")
	})

	prefix := strings.TrimSuffix(opts.TopicPrefix, "/")
	if prefix == "" {
		prefix = "deconz"
	}

	return &Publisher{
		client:      mqtt.NewClient(clientOpts),
		topicPrefix: prefix,
		broker:      opts.Broker,
	}
}

func (p *Publisher) Connect() error {
	token := p.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("connecting to MQTT broker: %w", token.Error())
	}
	log.Printf("[mqtt] Connected to broker %s", p.broker)
	return nil
}

func (p *Publisher) Disconnect() {
	p.client.Disconnect(250)
}

// Publish sends one gateway event. Events without state (attribute
// changes, scene calls) are dropped.
func (p *Publisher) Publish(ev deconz.Event) error {
	if ev.State == nil {
		return nil
	}
	if ev.Resource != deconz.ResourceLights && ev.Resource != deconz.ResourceGroups {
		return nil
	}

	payload, err := json.Marshal(ev.State)
	if err != nil {
		return fmt.Errorf("marshaling event payload: %w", err)
	}

	topic := fmt.Sprintf("%s/%s/%s/state", p.topicPrefix, ev.Resource, ev.ID)
	token := p.client.Publish(topic, 0, false, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}
