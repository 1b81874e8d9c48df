// Package engine is warden's client of the container engine.
//
// It classifies endpoint strings, connects (eagerly for local sockets and
// pipes, lazily for http and https), and exposes the container lifecycle,
// archive upload and exec primitives the rest of warden needs. A Connector
// is safe for concurrent use once built and may be shared across sessions.
package engine

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/docker/docker/client"
	"github.com/docker/go-connections/tlsconfig"

	"github.com/majorcontext/warden/internal/fault"
	"github.com/majorcontext/warden/internal/log"
)

// HealthCheckTimeout bounds the ping in ConnectAndVerify.
const HealthCheckTimeout = 10 * time.Second

const probeTimeout = 5 * time.Second

// Options tune client construction.
type Options struct {
	// CertPath is a directory holding ca.pem, cert.pem and key.pem for
	// https endpoints. Empty uses the system roots without a client cert.
	CertPath string
}

// Connector talks to one engine endpoint.
type Connector struct {
	ep  Endpoint
	cli client.APIClient
}

// NewConnector wraps an existing API client. Callers normally use Connect.
func NewConnector(ep Endpoint, cli client.APIClient) *Connector {
	return &Connector{ep: ep, cli: cli}
}

// Connect builds a client for ep. Eager endpoints are opened and closed once
// so a missing or inaccessible socket fails here with its path. Lazy
// endpoints perform no I/O.
func Connect(ctx context.Context, ep Endpoint, opts Options) (*Connector, error) {
	fctx := faultContext(ep, fault.PhaseConnect)

	var clientOpts []client.Opt
	switch ep.Scheme {
	case SchemeUnix, SchemeNpipe:
		if err := probe(ctx, ep); err != nil {
			return nil, fault.Classify(err, fctx)
		}
		clientOpts = append(clientOpts, client.WithHost(ep.String()))
	case SchemeHTTP:
		clientOpts = append(clientOpts,
			client.WithHost("tcp://"+ep.Address),
			client.WithScheme("http"))
	case SchemeHTTPS:
		tlsCfg, err := tlsClientConfig(opts.CertPath)
		if err != nil {
			return nil, fault.Classify(err, fctx)
		}
		clientOpts = append(clientOpts,
			client.WithHTTPClient(&http.Client{Transport: &http.Transport{TLSClientConfig: tlsCfg}}),
			client.WithHost("tcp://"+ep.Address),
			client.WithScheme("https"))
	default:
		return nil, fault.Invalid("engine.host", "unsupported endpoint "+ep.Raw)
	}
	clientOpts = append(clientOpts, client.WithAPIVersionNegotiation())

	cli, err := client.NewClientWithOpts(clientOpts...)
	if err != nil {
		return nil, fault.Classify(err, fctx)
	}
	log.Debug("engine client ready", "endpoint", ep.String(), "mode", string(ep.Mode))
	return &Connector{ep: ep, cli: cli}, nil
}

// ConnectAndVerify connects and then pings the engine.
func ConnectAndVerify(ctx context.Context, ep Endpoint, opts Options) (*Connector, error) {
	c, err := Connect(ctx, ep, opts)
	if err != nil {
		return nil, err
	}
	if err := c.Ping(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// Ping performs one health-check round trip bounded by HealthCheckTimeout.
func (c *Connector) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()
	if _, err := c.cli.Ping(ctx); err != nil {
		return fault.Classify(err, faultContext(c.ep, fault.PhaseHealthCheck))
	}
	return nil
}

// Endpoint returns the endpoint this connector was built for.
func (c *Connector) Endpoint() Endpoint { return c.ep }

// Close releases the client's idle connections.
func (c *Connector) Close() error {
	return c.cli.Close()
}

func probe(ctx context.Context, ep Endpoint) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if ep.Scheme == SchemeNpipe {
		return probePipe(ctx, ep.Address)
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", ep.Address)
	if err != nil {
		return err
	}
	return conn.Close()
}

func tlsClientConfig(certPath string) (*tls.Config, error) {
	if certPath == "" {
		return tlsconfig.ClientDefault(), nil
	}
	return tlsconfig.Client(tlsconfig.Options{
		CAFile:   filepath.Join(certPath, "ca.pem"),
		CertFile: filepath.Join(certPath, "cert.pem"),
		KeyFile:  filepath.Join(certPath, "key.pem"),
	})
}

func faultContext(ep Endpoint, phase fault.Phase) fault.Context {
	fc := fault.Context{
		Endpoint: ep.String(),
		Lazy:     !ep.Eager(),
		Phase:    phase,
	}
	if ep.Eager() {
		fc.SocketPath = ep.Address
	}
	return fc
}

func (c *Connector) faultContext(phase fault.Phase, containerID string) fault.Context {
	fc := faultContext(c.ep, phase)
	fc.ContainerID = containerID
	return fc
}
