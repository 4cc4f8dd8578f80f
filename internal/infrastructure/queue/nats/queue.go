package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/vehicle-insurance-pipeline/internal/core/domain"
	"github.com/kirillkom/vehicle-insurance-pipeline/internal/infrastructure/resilience"
)

const workerQueueGroup = "transformers"

type publisher interface {
	Publish(subject string, data []byte) error
}

// Queue carries pipeline stage events: validation-completed in,
// transformation-completed out.
type Queue struct {
	conn     *nats.Conn
	pub      publisher
	subjects Subjects
	executor *resilience.Executor
	logger   *slog.Logger
}

type Subjects struct {
	ValidationCompleted     string
	TransformationCompleted string
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url string, subjects Subjects) (*Queue, error) {
	return NewWithOptions(url, subjects, Options{})
}

func NewWithOptions(url string, subjects Subjects, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("vehicle-insurance-pipeline"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		pub:      conn,
		subjects: subjects,
		executor: options.ResilienceExecutor,
		logger:   logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishTransformationCompleted(ctx context.Context, event domain.TransformationCompleted) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode transformation event: %w", err)
	}
	return q.publish(ctx, q.subjects.TransformationCompleted, payload)
}

// PublishValidationCompleted is used by the validation stage and by the
// one-shot pipeline when it hands work to a worker.
func (q *Queue) PublishValidationCompleted(ctx context.Context, req domain.TransformationRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode validation event: %w", err)
	}
	return q.publish(ctx, q.subjects.ValidationCompleted, payload)
}

func (q *Queue) publish(ctx context.Context, subject string, payload []byte) error {
	call := func(_ context.Context) error {
		if err := q.pub.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish."+subject, call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(subject, err)
	}
	return nil
}

func (q *Queue) SubscribeValidationCompleted(ctx context.Context, handler func(context.Context, domain.TransformationRequest) error) error {
	sub, err := q.conn.QueueSubscribe(q.subjects.ValidationCompleted, workerQueueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		q.dispatch(ctx, msg.Data, handler)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func (q *Queue) dispatch(ctx context.Context, data []byte, handler func(context.Context, domain.TransformationRequest) error) {
	req, err := DecodeTransformationRequest(data)
	if err != nil {
		q.logger.Error("worker_invalid_message", "error", err)
		return
	}

	handlerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := handler(handlerCtx, req); err != nil {
		q.logger.Error("worker_handler_error", "run_id", req.RunID, "error", err)
	}
}

func DecodeTransformationRequest(data []byte) (domain.TransformationRequest, error) {
	var req domain.TransformationRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return domain.TransformationRequest{}, domain.WrapError(domain.ErrDataInvalid, "decode validation event", err)
	}
	if req.Ingestion.TrainFilePath == "" || req.Ingestion.TestFilePath == "" {
		return domain.TransformationRequest{}, domain.WrapError(domain.ErrDataInvalid, "decode validation event",
			errors.New("ingestion artifact paths are required"))
	}
	return req, nil
}
