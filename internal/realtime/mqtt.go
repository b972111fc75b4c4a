package realtime

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/angelmondragon/supportdesk-backend/internal/notify"
	"github.com/angelmondragon/supportdesk-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/supportdesk-backend/pkg/errors"
	"github.com/angelmondragon/supportdesk-backend/pkg/instance"
	"github.com/angelmondragon/supportdesk-backend/pkg/logger"
)

const publishTimeout = 2 * time.Second

// Publisher is the subset of mqtt.Client the bridge uses.
type Publisher interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// ConnectMQTT dials the broker with auto-reconnect enabled.
func ConnectMQTT(ctx context.Context, cfg config.MQTTConfig, logg *logger.Logger) (mqtt.Client, error) {
	if !cfg.Enabled() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "mqtt broker url is empty")
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = instance.ClientID("supportdesk-api")
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(clientID).
		SetConnectTimeout(5 * time.Second).
		SetKeepAlive(30 * time.Second).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second)

	if logg != nil {
		logCtx := logg.WithFields(ctx, map[string]any{"broker": cfg.BrokerURL, "client_id": clientID})
		opts.OnConnectionLost = func(_ mqtt.Client, err error) {
			logg.Warn(logCtx, "mqtt connection lost: "+err.Error())
		}
		opts.OnConnect = func(_ mqtt.Client) {
			logg.Info(logCtx, "mqtt connected")
		}
	}

	c := mqtt.NewClient(opts)
	tok := c.Connect()
	if !tok.WaitTimeout(10 * time.Second) {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "mqtt connect timed out")
	}
	if err := tok.Error(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "connect mqtt")
	}
	return c, nil
}

// MQTTBridge mirrors service-room and admin-room events to broker topics.
type MQTTBridge struct {
	client Publisher
	prefix string
}

var _ notify.Sink = (*MQTTBridge)(nil)

func NewMQTTBridge(client Publisher, prefix string) (*MQTTBridge, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "mqtt client is required")
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = "supportdesk"
	}
	return &MQTTBridge{client: client, prefix: prefix}, nil
}

// Topic returns <prefix>/<audience>/<event>.
func (b *MQTTBridge) Topic(event notify.Event) string {
	return b.prefix + "/" + event.Audience.Room() + "/" + event.Name
}

// Deliver publishes shared-room events at QoS 0. Anything addressed to a party
// or a complaint room is skipped, so chat content never reaches the broker.
func (b *MQTTBridge) Deliver(_ context.Context, event notify.Event) error {
	if !event.Audience.Shared() {
		return nil
	}
	if !b.client.IsConnected() {
		return nil
	}
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode mqtt payload")
	}
	tok := b.client.Publish(b.Topic(event), 0, false, payload)
	if !tok.WaitTimeout(publishTimeout) {
		return pkgerrors.New(pkgerrors.CodeDependency, "mqtt publish timed out")
	}
	if err := tok.Error(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "publish mqtt")
	}
	return nil
}
