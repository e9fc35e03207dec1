package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/chaz8081/switchbot-go/internal/config"
)

// Availability payloads published on the will topic.
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second

	// milliseconds
	defaultDisconnectQuiesce = 1000

	defaultKeepAlive    = 60 * time.Second
	defaultMaxReconnect = 60 * time.Second
	maxQoS              = 2
	maxPayloadSize      = 1 << 20
	tlsMinVersion       = tls.VersionTLS12
)

// buildClientOptions maps the broker config onto paho options. willTopic,
// if non-empty, receives a retained "offline" when the broker loses us.
func buildClientOptions(cfg config.MQTTConfig, willTopic string) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port))
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(defaultMaxReconnect)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	// Handlers block on BLE round trips; run them off the router goroutine.
	opts.SetOrderMatters(false)

	if cfg.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	if willTopic != "" {
		opts.SetWill(willTopic, PayloadOffline, byte(cfg.QoS), true)
	}

	return opts
}
