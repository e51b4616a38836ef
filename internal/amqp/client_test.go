package amqp

import (
	"context"
	"errors"
	"testing"

	"github.com/rabbitmq/amqp091-go"

	"fueltrack/internal/log"
)

type fakeAck struct {
	acks, nacks int
	requeued    bool
}

func (f *fakeAck) Ack(tag uint64, multiple bool) error { f.acks++; return nil }
func (f *fakeAck) Nack(tag uint64, multiple, requeue bool) error {
	f.nacks++
	f.requeued = requeue
	return nil
}
func (f *fakeAck) Reject(tag uint64, requeue bool) error { f.nacks++; return nil }

func newTestClient() *Client {
	return &Client{origin: "instance-a", logger: log.Discard().WithComponent(log.ComponentAMQP)}
}

func delivery(t *testing.T, ack *fakeAck, msg *RefreshMessage) amqp091.Delivery {
	t.Helper()
	body, err := msg.ToJSON()
	if err != nil {
		t.Fatal(err)
	}
	return amqp091.Delivery{Acknowledger: ack, Body: body}
}

func TestHandleCallsHandlerForOtherInstances(t *testing.T) {
	c := newTestClient()
	ack := &fakeAck{}
	var got *RefreshMessage
	c.handle(context.Background(), delivery(t, ack, NewRefreshMessage("instance-b", ReasonFillUpSubmitted)), func(m *RefreshMessage) error {
		got = m
		return nil
	})
	if got == nil || got.Reason != ReasonFillUpSubmitted {
		t.Fatalf("handler got %+v", got)
	}
	if ack.acks != 1 || ack.nacks != 0 {
		t.Fatalf("acks=%d nacks=%d", ack.acks, ack.nacks)
	}
}

func TestHandleSkipsOwnMessages(t *testing.T) {
	c := newTestClient()
	ack := &fakeAck{}
	called := false
	c.handle(context.Background(), delivery(t, ack, NewRefreshMessage("instance-a", ReasonManual)), func(*RefreshMessage) error {
		called = true
		return nil
	})
	if called {
		t.Fatal("own message should not trigger the handler")
	}
	if ack.acks != 1 {
		t.Fatalf("own message should be acked, acks=%d", ack.acks)
	}
}

func TestHandleRejectsBadMessages(t *testing.T) {
	c := newTestClient()

	ack := &fakeAck{}
	c.handle(context.Background(), amqp091.Delivery{Acknowledger: ack, Body: []byte("{not json")}, func(*RefreshMessage) error {
		t.Fatal("handler should not run")
		return nil
	})
	if ack.nacks != 1 || ack.requeued {
		t.Fatalf("malformed message: nacks=%d requeued=%v", ack.nacks, ack.requeued)
	}

	ack = &fakeAck{}
	c.handle(context.Background(), delivery(t, ack, NewRefreshMessage("instance-b", ReasonManual)), func(*RefreshMessage) error {
		return errors.New("view busy")
	})
	if ack.nacks != 1 || ack.requeued {
		t.Fatalf("failed handler: nacks=%d requeued=%v", ack.nacks, ack.requeued)
	}
}

func TestRefreshMessageJSON(t *testing.T) {
	msg, err := RefreshMessageFromJSON([]byte(`{"origin":"x","reason":"manual","timestamp":"2024-01-10T00:00:00Z"}`))
	if err != nil {
		t.Fatal(err)
	}
	if msg.Origin != "x" || msg.Reason != ReasonManual || msg.Timestamp.Year() != 2024 {
		t.Fatalf("decoded %+v", msg)
	}
}
