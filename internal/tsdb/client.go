// Package tsdb records media-player state history in InfluxDB.
package tsdb

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/strefethen/heos-hub-go/internal/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second
	millisecondsPerSecond = 1000
)

var (
	ErrDisabled         = errors.New("influxdb: disabled")
	ErrConnectionFailed = errors.New("influxdb: connection failed")
	ErrNotConnected     = errors.New("influxdb: not connected")
)

// Client wraps the InfluxDB v2 client and its non-blocking write API.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	logger   *log.Logger

	mu        sync.RWMutex
	connected bool
}

// Connect pings the server and opens a batching write API.
func Connect(cfg config.InfluxConfig, logger *log.Logger) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if logger == nil {
		logger = log.Default()
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	flushInterval := cfg.FlushIntervalSeconds
	if flushInterval <= 0 {
		flushInterval = 10
	}

	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushInterval)*millisecondsPerSecond),
	)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()
	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	c := &Client{
		client:    client,
		writeAPI:  client.WriteAPI(cfg.Org, cfg.Bucket),
		logger:    logger,
		connected: true,
	}
	go c.logWriteErrors(c.writeAPI.Errors())

	logger.Printf("INFLUX: connected to %s (bucket %s)", cfg.URL, cfg.Bucket)
	return c, nil
}

func (c *Client) logWriteErrors(errorsCh <-chan error) {
	for err := range errorsCh {
		c.logger.Printf("INFLUX: write failed: %v", err)
	}
}

// WritePoint queues a point. Points written after Close are dropped.
func (c *Client) WritePoint(point *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(point)
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := c.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	if !healthy {
		return errors.New("influxdb health check failed: server not healthy")
	}
	return nil
}

// Close flushes pending points and closes the client.
func (c *Client) Close() error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	c.connected = false
	c.mu.Unlock()

	c.writeAPI.Flush()
	c.client.Close()
	return nil
}
