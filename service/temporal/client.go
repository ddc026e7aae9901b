package temporal

import (
	"context"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/client"
)

// Client wraps a Temporal SDK client for starting invocation workflows.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

// StartInvocation starts an InvokeMethodWorkflow and returns its run handle.
// The caller decides whether to wait on the handle or return immediately.
func (c *Client) StartInvocation(ctx context.Context, input InvokeMethodInput) (client.WorkflowRun, error) {
	c.logger.Debug("starting invocation workflow",
		"method", input.Method,
		"network", input.Network,
		"payer", input.Payer,
	)

	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		TaskQueue: c.taskQueue,
	}, InvokeMethodWorkflow, input)
	if err != nil {
		c.logger.Error("failed to start invocation workflow",
			"method", input.Method,
			"error", err,
		)
		return nil, fmt.Errorf("failed to start invocation workflow: %w", err)
	}

	c.logger.Info("invocation workflow started",
		"method", input.Method,
		"workflow_id", run.GetID(),
		"run_id", run.GetRunID(),
	)

	return run, nil
}

// SDKClient returns the underlying Temporal SDK client for direct workflow operations.
func (c *Client) SDKClient() client.Client {
	return c.client
}

// TaskQueue returns the configured task queue for this client.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
