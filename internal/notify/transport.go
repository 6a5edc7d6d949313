package notify

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"strings"

	"github.com/towops/impound/internal/models"
)

// Transport delivers one queued notification. Delivery mechanics (mail house,
// SMS gateway, fax bridge) live entirely behind this interface.
type Transport interface {
	Deliver(ctx context.Context, rec *models.NotificationRecord) error
}

// CommandTransport shells out to a configured command template for each
// delivery, substituting record fields into the template.
type CommandTransport struct {
	Command string // e.g. "sendnotice --type '{{.Type}}' --to '{{.Recipient}}' --case '{{.CallNumber}}'"
}

// Deliver runs the command template. A non-zero exit is a transport failure.
func (t *CommandTransport) Deliver(ctx context.Context, rec *models.NotificationRecord) error {
	if t.Command == "" {
		return fmt.Errorf("notify: no delivery command configured")
	}
	cmdStr := templateRecord(t.Command, rec)
	cmd := exec.CommandContext(ctx, "sh", "-c", cmdStr)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("notify: deliver %s/%s: %w: %s",
			rec.CallNumber, rec.Type, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// LogTransport records deliveries to the process log. Used when no command
// is configured so queued notices still drain in development.
type LogTransport struct{}

func (LogTransport) Deliver(ctx context.Context, rec *models.NotificationRecord) error {
	log.Printf("notify: [%s] %s -> %s (case %s)", rec.Status, rec.Type, rec.Recipient, rec.CallNumber)
	return nil
}

// templateRecord replaces placeholders in the command template with record values.
func templateRecord(command string, rec *models.NotificationRecord) string {
	r := strings.NewReplacer(
		"{{.Type}}", rec.Type,
		"{{.Recipient}}", rec.Recipient,
		"{{.CallNumber}}", rec.CallNumber,
	)
	return r.Replace(command)
}
