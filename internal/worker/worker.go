package worker

import (
	"context"
	"encoding/json"

	"batch-service/internal/broker"
	"batch-service/internal/service"
	"batch-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const defaultTenant = "default"

// OrderWorker consumes platform order payloads from the inbound topic and
// funnels them into the allocation engine. It is the second entry point next
// to the HTTP webhook and shares its acknowledgement semantics: processing
// failures are logged and surfaced through metrics, the message is still
// committed so the platform does not redeliver forever.
type OrderWorker struct {
	consumer *broker.Consumer
	engine   *service.AllocationEngine
	logger   *zap.Logger
}

// NewOrderWorker creates a new inbound order worker
func NewOrderWorker(consumer *broker.Consumer, engine *service.AllocationEngine) *OrderWorker {
	return &OrderWorker{
		consumer: consumer,
		engine:   engine,
		logger:   util.GetLogger(),
	}
}

// Start starts the worker
func (w *OrderWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting inbound order worker")
	return w.consumer.StartConsuming(ctx, w.handleMessage)
}

// Stop stops the worker
func (w *OrderWorker) Stop() error {
	w.logger.Info("Stopping inbound order worker")
	return w.consumer.Close()
}

func (w *OrderWorker) handleMessage(ctx context.Context, msg kafka.Message) error {
	tenant := defaultTenant
	for _, header := range msg.Headers {
		if header.Key == "tenant" && len(header.Value) > 0 {
			tenant = string(header.Value)
		}
	}

	var platformOrder service.PlatformOrder
	if err := json.Unmarshal(msg.Value, &platformOrder); err != nil {
		w.logger.Error("Failed to unmarshal platform order, dropping message",
			zap.Error(err))
		util.WebhookDeliveriesTotal.WithLabelValues("malformed").Inc()
		return nil
	}

	req, err := service.MapPlatformOrder(&platformOrder)
	if err != nil {
		w.logger.Error("Failed to map platform order, dropping message",
			zap.String("platform_order_id", platformOrder.ID),
			zap.Error(err))
		util.WebhookDeliveriesTotal.WithLabelValues("invalid").Inc()
		return nil
	}

	if _, err := w.engine.ProcessOrder(ctx, tenant, req); err != nil {
		// Acknowledge anyway; duplicate deliveries are safe but endless
		// redelivery of a poisoned order is not. Operators follow up via the
		// failure log and counter.
		w.logger.Error("Failed to process inbound order",
			zap.String("tenant", tenant),
			zap.String("external_order_id", req.ExternalOrderID),
			zap.Error(err))
		util.WebhookDeliveriesTotal.WithLabelValues("failed").Inc()
		return nil
	}

	util.WebhookDeliveriesTotal.WithLabelValues("processed").Inc()
	return nil
}
