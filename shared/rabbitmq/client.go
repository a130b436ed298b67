package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Config holds RabbitMQ connection configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	VHost    string

	// Durable work queue carrying job submissions to the worker pool.
	JobQueueName string

	// Fanout exchange carrying progress events from workers to the
	// api-service event dispatcher. Events are transient: with no bound
	// subscriber queue the broker drops them.
	EventExchangeName string

	RetryAttempts     int
	RetryInterval     time.Duration
	Heartbeat         time.Duration
	ConnectionTimeout time.Duration
	PrefetchCount     int
}

// Client represents a RabbitMQ client
type Client struct {
	config      *Config
	conn        *amqp.Connection
	channel     *amqp.Channel
	logger      *slog.Logger
	closeChan   chan *amqp.Error
	isConnected bool

	eventConsumerTag string
}

// NewClient creates a new RabbitMQ client
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	client := &Client{
		config:      config,
		logger:      logger,
		closeChan:   make(chan *amqp.Error),
		isConnected: false,
	}

	if err := client.connect(); err != nil {
		return nil, fmt.Errorf("failed to create RabbitMQ client: %w", err)
	}

	return client, nil
}

// connect establishes connection to RabbitMQ with retry logic
func (c *Client) connect() error {
	var err error

	dsn := fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		c.config.User,
		c.config.Password,
		c.config.Host,
		c.config.Port,
		c.config.VHost,
	)

	amqpConfig := amqp.Config{
		Heartbeat: c.config.Heartbeat,
		Locale:    "en_US",
	}

	for attempt := 1; attempt <= c.config.RetryAttempts; attempt++ {
		c.logger.Info("Connecting to RabbitMQ",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", c.config.RetryAttempts),
		)

		c.conn, err = amqp.DialConfig(dsn, amqpConfig)
		if err == nil {
			c.logger.Info("Successfully connected to RabbitMQ")
			break
		}

		c.logger.Error("Failed to connect to RabbitMQ",
			slog.Any("error", err),
			slog.Int("attempt", attempt),
		)

		if attempt < c.config.RetryAttempts {
			time.Sleep(c.config.RetryInterval)
		}
	}

	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", c.config.RetryAttempts, err)
	}

	// Create channel
	c.channel, err = c.conn.Channel()
	if err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}

	// Setup job queue and event exchange
	if err := c.setup(); err != nil {
		c.channel.Close()
		c.conn.Close()
		return fmt.Errorf("failed to setup queue and exchange: %w", err)
	}

	// Monitor connection
	c.closeChan = make(chan *amqp.Error)
	c.channel.NotifyClose(c.closeChan)
	c.isConnected = true

	c.logger.Info("RabbitMQ client initialized",
		slog.String("job_queue", c.config.JobQueueName),
		slog.String("event_exchange", c.config.EventExchangeName),
	)

	return nil
}

// setup declares the job queue and the event fanout exchange
func (c *Client) setup() error {
	// Durable job queue: job submissions survive a broker restart
	_, err := c.channel.QueueDeclare(
		c.config.JobQueueName, // name
		true,                  // durable
		false,                 // auto-delete
		false,                 // exclusive
		false,                 // no-wait
		nil,                   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare job queue: %w", err)
	}

	// Fanout exchange for progress events; non-durable since events are
	// advisory and never replayed
	err = c.channel.ExchangeDeclare(
		c.config.EventExchangeName, // name
		"fanout",                   // type
		false,                      // durable
		false,                      // auto-deleted
		false,                      // internal
		false,                      // no-wait
		nil,                        // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare event exchange: %w", err)
	}

	return nil
}

// PublishJob publishes a job message to the work queue
func (c *Client) PublishJob(ctx context.Context, body []byte) error {
	if !c.isConnected {
		return fmt.Errorf("not connected to RabbitMQ")
	}

	err := c.channel.PublishWithContext(
		ctx,
		"",                    // default exchange
		c.config.JobQueueName, // routing key
		false,                 // mandatory
		false,                 // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)

	if err != nil {
		c.logger.Error("Failed to publish job message",
			slog.Any("error", err),
		)
		return fmt.Errorf("failed to publish job message: %w", err)
	}

	c.logger.Debug("Job message published",
		slog.Int("body_size", len(body)),
	)

	return nil
}

// ConsumeJobs starts consuming job messages from the work queue with
// manual acknowledgment and the configured prefetch
func (c *Client) ConsumeJobs(consumerTag string) (<-chan amqp.Delivery, error) {
	if !c.isConnected {
		return nil, fmt.Errorf("not connected to RabbitMQ")
	}

	if err := c.channel.Qos(c.config.PrefetchCount, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := c.channel.Consume(
		c.config.JobQueueName, // queue
		consumerTag,           // consumer tag
		false,                 // auto-ack
		false,                 // exclusive
		false,                 // no-local
		false,                 // no-wait
		nil,                   // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to consume job messages: %w", err)
	}

	c.logger.Info("Started consuming job messages",
		slog.String("queue", c.config.JobQueueName),
		slog.String("consumer_tag", consumerTag),
		slog.Int("prefetch_count", c.config.PrefetchCount),
	)

	return deliveries, nil
}

// PublishEvent publishes a progress event to the fanout exchange.
// Delivery is at-most-once: transient message, no mandatory flag, no
// publisher confirm. If nothing is subscribed the event is dropped.
func (c *Client) PublishEvent(ctx context.Context, body []byte) error {
	if !c.isConnected {
		return fmt.Errorf("not connected to RabbitMQ")
	}

	err := c.channel.PublishWithContext(
		ctx,
		c.config.EventExchangeName, // exchange
		"",                         // routing key (ignored by fanout)
		false,                      // mandatory
		false,                      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Transient,
			Timestamp:    time.Now(),
		},
	)

	if err != nil {
		c.logger.Error("Failed to publish event",
			slog.Any("error", err),
		)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	c.logger.Debug("Event published",
		slog.Int("body_size", len(body)),
	)

	return nil
}

// SubscribeEvents binds a broker-named exclusive auto-delete queue to the
// event exchange and starts consuming it with auto-ack. The queue is
// exclusive: a second subscriber process would get its own queue and its
// own copy of every event, there are no consumer-group semantics.
func (c *Client) SubscribeEvents() (<-chan amqp.Delivery, error) {
	if !c.isConnected {
		return nil, fmt.Errorf("not connected to RabbitMQ")
	}

	queue, err := c.channel.QueueDeclare(
		"",    // broker-generated name
		false, // durable
		true,  // auto-delete
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare event queue: %w", err)
	}

	err = c.channel.QueueBind(
		queue.Name,                 // queue name
		"",                         // routing key
		c.config.EventExchangeName, // exchange
		false,                      // no-wait
		nil,                        // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to bind event queue: %w", err)
	}

	c.eventConsumerTag = "event-dispatcher-" + queue.Name
	deliveries, err := c.channel.Consume(
		queue.Name,         // queue
		c.eventConsumerTag, // consumer tag
		true,               // auto-ack: at-most-once delivery
		true,               // exclusive
		false,              // no-local
		false,              // no-wait
		nil,                // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to consume events: %w", err)
	}

	c.logger.Info("Subscribed to event exchange",
		slog.String("exchange", c.config.EventExchangeName),
		slog.String("queue", queue.Name),
	)

	return deliveries, nil
}

// Unsubscribe cancels the event consumer; the broker deletes the
// exclusive queue once its consumer is gone
func (c *Client) Unsubscribe() error {
	if c.eventConsumerTag == "" {
		return nil
	}

	if err := c.channel.Cancel(c.eventConsumerTag, false); err != nil {
		return fmt.Errorf("failed to cancel event consumer: %w", err)
	}

	c.logger.Info("Unsubscribed from event exchange",
		slog.String("consumer_tag", c.eventConsumerTag),
	)
	c.eventConsumerTag = ""

	return nil
}

// Close closes the RabbitMQ connection
func (c *Client) Close() error {
	c.logger.Info("Closing RabbitMQ connection")

	c.isConnected = false

	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			c.logger.Error("Failed to close RabbitMQ channel",
				slog.Any("error", err),
			)
		}
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Error("Failed to close RabbitMQ connection",
				slog.Any("error", err),
			)
			return err
		}
	}

	c.logger.Info("RabbitMQ connection closed successfully")
	return nil
}

// IsConnected returns the connection status
func (c *Client) IsConnected() bool {
	return c.isConnected && c.conn != nil && !c.conn.IsClosed()
}
