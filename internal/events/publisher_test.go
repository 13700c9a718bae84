package events

import (
	"context"
	"testing"

	"esim-service/internal/model"
	"esim-service/pkg/logger"
)

func TestMessageHeaders(t *testing.T) {
	entry := model.OperationLogEntry{ProfileID: "p-1", TenantID: "tenant-a", Operation: model.OperationDeploy}

	headers := messageHeaders(context.Background(), entry)
	if len(headers) != 2 || headers[0].Key != "operation" || string(headers[1].Value) != "tenant-a" {
		t.Fatalf("unexpected headers: %+v", headers)
	}

	headers = messageHeaders(logger.WithRequestID(context.Background(), "req-9"), entry)
	last := headers[len(headers)-1]
	if last.Key != "request_id" || string(last.Value) != "req-9" {
		t.Fatalf("expected request id header, got %+v", headers)
	}
}

func TestNewKafkaPublisherRequiresBrokers(t *testing.T) {
	if _, err := NewKafkaPublisher(nil, "esim.operation_log"); err == nil {
		t.Fatalf("expected error without brokers")
	}
}
