package notify

import (
	"context"
	"testing"

	"github.com/towops/impound/internal/models"
)

func TestTemplateRecord(t *testing.T) {
	rec := &models.NotificationRecord{
		CallNumber: "C-100",
		Type:       TypeSevenDayNotice,
		Recipient:  "J. Marsh",
	}
	got := templateRecord("send --type '{{.Type}}' --to '{{.Recipient}}' --case '{{.CallNumber}}'", rec)
	want := "send --type 'seven_day_notice' --to 'J. Marsh' --case 'C-100'"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCommandTransport_RequiresCommand(t *testing.T) {
	tr := &CommandTransport{}
	err := tr.Deliver(context.Background(), &models.NotificationRecord{CallNumber: "C-1"})
	if err == nil {
		t.Error("expected error for empty command")
	}
}

func TestCommandTransport_RunsCommand(t *testing.T) {
	tr := &CommandTransport{Command: "true"}
	if err := tr.Deliver(context.Background(), &models.NotificationRecord{CallNumber: "C-1"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	tr = &CommandTransport{Command: "false"}
	if err := tr.Deliver(context.Background(), &models.NotificationRecord{CallNumber: "C-1"}); err == nil {
		t.Error("expected error for non-zero exit")
	}
}

func TestLogTransport_AlwaysSucceeds(t *testing.T) {
	rec := &models.NotificationRecord{CallNumber: "C-1", Type: TypeSevenDayNotice, Recipient: "ops"}
	if err := (LogTransport{}).Deliver(context.Background(), rec); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
