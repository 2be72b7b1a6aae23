package relayflow

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRegistrationExportsPropagateErrors(t *testing.T) {
	if err := RegisterMessageHandler(nil, MessageHandlerRegistration{}); !errors.Is(err, ErrServiceRequired) {
		t.Fatalf("expected service required error, got %v", err)
	}
	if _, err := NewService(nil, nil, context.Background(), ServiceDependencies{}); !errors.Is(err, ErrConfigRequired) {
		t.Fatalf("expected config required error, got %v", err)
	}
}

func TestEncodingExportAliases(t *testing.T) {
	payload := map[string]string{"hello": "world"}
	if _, err := Marshal(payload); err != nil {
		t.Fatalf("marshal alias failed: %v", err)
	}
	if err := Unmarshal([]byte(`{"hello":"world"}`), &payload); err != nil {
		t.Fatalf("unmarshal alias failed: %v", err)
	}
}

func TestMetadataExport(t *testing.T) {
	md := NewMetadata(MetadataKeyCorrelationID, "01J", MetadataKeyReplyTo, "gateway.response")
	if md.CorrelationID() != "01J" || md.ReplyTo() != "gateway.response" {
		t.Fatalf("unexpected metadata %#v", md)
	}
}

func TestCorrelationIDsIncrease(t *testing.T) {
	a, b := NewCorrelationID(), NewCorrelationID()
	if len(a) != 26 || a >= b {
		t.Fatalf("expected increasing 26 character ids, got %q then %q", a, b)
	}
}

func TestCollectExport(t *testing.T) {
	stream := make(chan string)
	_, err := Collect(context.Background(), stream, 10*time.Millisecond)
	if !errors.Is(err, ErrDeadlineExceeded) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestErrorCategoryConstants(t *testing.T) {
	if ErrorCategoryNone != "none" {
		t.Fatalf("expected ErrorCategoryNone to be 'none', got %q", ErrorCategoryNone)
	}
	if ErrorCategoryTransport != "transport" {
		t.Fatalf("expected ErrorCategoryTransport to be 'transport', got %q", ErrorCategoryTransport)
	}
}
