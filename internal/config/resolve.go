package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"

	"github.com/coatyio/coaty-go/internal/binding"
	"github.com/coatyio/coaty-go/internal/coatyobj"
	"github.com/coatyio/coaty-go/internal/comm"
)

// Resolve turns this configuration into a fully-formed
// [comm.Options]: it creates a fresh agent Identity, builds the
// IoNodes, and constructs the Binding (mqtt, nats, or ws) named by
// Binding.Type. agentName is used when Common.AgentIdentity.Name is
// unset. This is the "configuration plus supplied partial options"
// merge, done here in the config layer rather than in
// [comm.Manager.Start] itself.
func (c *Config) Resolve(agentName string, logger *slog.Logger) (comm.Options, error) {
	name := c.Common.AgentIdentity.Name
	if name == "" {
		name = agentName
	}
	identity := coatyobj.NewIdentity(name)

	ioNodes, err := c.BuildIoNodes()
	if err != nil {
		return comm.Options{}, err
	}

	b, err := c.buildBinding(logger)
	if err != nil {
		return comm.Options{}, err
	}

	return comm.Options{
		Binding:        b,
		Namespace:      c.Namespace,
		CrossNamespace: c.ShouldEnableCrossNamespacing,
		Identity:       identity,
		IoNodes:        ioNodes,
	}, nil
}

func (c *Config) buildBinding(logger *slog.Logger) (binding.Binding, error) {
	switch c.Binding.Type {
	case "", "mqtt":
		tlsCfg, err := c.buildTLSConfig()
		if err != nil {
			return nil, err
		}
		return binding.NewMQTTBinding(binding.MQTTOptions{
			BrokerUrl:  c.BrokerUrl,
			Username:   c.MQTTClientOptions.Username,
			Password:   c.MQTTClientOptions.Password,
			TLS:        tlsCfg,
			KeepAlive:  c.MQTTClientOptions.KeepAlive,
			PublishQoS: c.MQTTClientOptions.PublishQoS,
		}, logger), nil
	case "nats":
		url, _ := c.Binding.Options["url"].(string)
		if url == "" {
			url = c.BrokerUrl
		}
		name, _ := c.Binding.Options["name"].(string)
		username, _ := c.Binding.Options["username"].(string)
		password, _ := c.Binding.Options["password"].(string)
		token, _ := c.Binding.Options["token"].(string)
		return binding.NewNATSBinding(binding.NATSOptions{
			Url:      url,
			Name:     name,
			Username: username,
			Password: password,
			Token:    token,
		}, logger), nil
	case "ws":
		hubURL, _ := c.Binding.Options["hub_url"].(string)
		if hubURL == "" {
			hubURL = c.BrokerUrl
		}
		return binding.NewWSBinding(binding.WSOptions{HubURL: hubURL}, logger), nil
	default:
		return nil, fmt.Errorf("binding.type %q not recognized (want mqtt, nats, or ws)", c.Binding.Type)
	}
}

// buildTLSConfig reads TLSOptions' file paths into a *tls.Config, or
// returns nil when no TLS material was configured.
func (c *Config) buildTLSConfig() (*tls.Config, error) {
	t := c.TLSOptions
	if t.CAFile == "" && t.CertFile == "" && t.KeyFile == "" && !t.InsecureSkipVerify {
		return nil, nil
	}

	cfg := &tls.Config{InsecureSkipVerify: t.InsecureSkipVerify}

	if t.CAFile != "" {
		pem, err := os.ReadFile(t.CAFile)
		if err != nil {
			return nil, fmt.Errorf("tls_options.ca_file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("tls_options.ca_file: no certificates found in %s", t.CAFile)
		}
		cfg.RootCAs = pool
	}

	if t.CertFile != "" || t.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("tls_options: loading client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}
