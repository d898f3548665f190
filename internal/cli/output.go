// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-devicetrust.
//
// go-devicetrust is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jeremyhahn/go-devicetrust/pkg/audit"
	"github.com/jeremyhahn/go-devicetrust/pkg/authenticator"
	"github.com/jeremyhahn/go-devicetrust/pkg/user"
)

// OutputFormat defines the output format type
type OutputFormat string

const (
	OutputFormatText  OutputFormat = "text"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatTable OutputFormat = "table"
)

// Printer handles formatted output
type Printer struct {
	format OutputFormat
	writer io.Writer
}

// NewPrinter creates a new Printer
func NewPrinter(format string, writer io.Writer) *Printer {
	return &Printer{
		format: OutputFormat(format),
		writer: writer,
	}
}

// PrintSuccess prints a success message
func (p *Printer) PrintSuccess(message string) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]any{
			"status":  "success",
			"message": message,
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintln(p.writer, message)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintError prints an error message
func (p *Printer) PrintError(err error) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]any{
			"status": "error",
			"error":  err.Error(),
		})
	default:
		fmt.Fprintf(p.writer, "Error: %v\n", err)
		return nil
	}
}

// PrintUsers prints user accounts
func (p *Printer) PrintUsers(users []*user.User) error {
	switch p.format {
	case OutputFormatJSON:
		if users == nil {
			users = []*user.User{}
		}
		return p.printJSON(map[string]any{"users": users})
	case OutputFormatTable:
		if len(users) == 0 {
			fmt.Fprintln(p.writer, "No users found")
			return nil
		}
		fmt.Fprintf(p.writer, "%-32s %-32s %-24s %-20s\n", "ID", "NAME", "DISPLAY NAME", "CREATED")
		fmt.Fprintln(p.writer, strings.Repeat("-", 111))
		for _, u := range users {
			fmt.Fprintf(p.writer, "%-32s %-32s %-24s %-20s\n",
				u.ID, u.Name, u.DisplayName, formatTime(u.CreatedAt))
		}
		return nil
	case OutputFormatText:
		if len(users) == 0 {
			fmt.Fprintln(p.writer, "No users found")
			return nil
		}
		for _, u := range users {
			fmt.Fprintf(p.writer, "%s (%s)\n", u.ID, u.Label())
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintAuthenticators prints a user's authenticators. Public keys are
// omitted.
func (p *Printer) PrintAuthenticators(auths []*authenticator.Authenticator) error {
	switch p.format {
	case OutputFormatJSON:
		list := make([]map[string]any, len(auths))
		for i, a := range auths {
			entry := map[string]any{
				"credential_id": a.ID(),
				"device_name":   a.DeviceName,
				"device_type":   a.DeviceType,
				"backed_up":     a.BackedUp,
				"sign_count":    a.SignCount,
				"created_at":    a.CreatedAt,
			}
			if a.LastUsedAt != nil {
				entry["last_used_at"] = a.LastUsedAt
			}
			list[i] = entry
		}
		return p.printJSON(map[string]any{"authenticators": list})
	case OutputFormatTable:
		if len(auths) == 0 {
			fmt.Fprintln(p.writer, "No authenticators found")
			return nil
		}
		fmt.Fprintf(p.writer, "%-44s %-24s %-14s %-10s %-20s\n", "CREDENTIAL ID", "NAME", "TYPE", "COUNT", "LAST USED")
		fmt.Fprintln(p.writer, strings.Repeat("-", 116))
		for _, a := range auths {
			fmt.Fprintf(p.writer, "%-44s %-24s %-14s %-10d %-20s\n",
				a.ID(), a.DeviceName, a.DeviceType, a.SignCount, formatTimePtr(a.LastUsedAt))
		}
		return nil
	case OutputFormatText:
		if len(auths) == 0 {
			fmt.Fprintln(p.writer, "No authenticators found")
			return nil
		}
		for _, a := range auths {
			fmt.Fprintf(p.writer, "%s  %s\n", a.ID(), a.DeviceName)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintRecoveryKey prints a freshly generated recovery key.
func (p *Printer) PrintRecoveryKey(userID, code string) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]any{
			"user_id":      userID,
			"recovery_key": code,
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintf(p.writer, "Recovery key for %s:\n\n  %s\n\n", userID, code)
		fmt.Fprintln(p.writer, "Store it somewhere safe. It is shown only once.")
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintAuditEvents prints audit events in the order given.
func (p *Printer) PrintAuditEvents(events []audit.Event) error {
	switch p.format {
	case OutputFormatJSON:
		if events == nil {
			events = []audit.Event{}
		}
		return p.printJSON(map[string]any{"events": events})
	case OutputFormatTable, OutputFormatText:
		if len(events) == 0 {
			fmt.Fprintln(p.writer, "No audit events found")
			return nil
		}
		for _, e := range events {
			line := fmt.Sprintf("%s  %-34s %s", formatTime(e.OccurredAt), e.Type, e.UserID)
			if e.CredentialID != "" {
				line += "  credential=" + e.CredentialID
			}
			if e.Detail != "" {
				line += "  " + e.Detail
			}
			fmt.Fprintln(p.writer, line)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintCleanup prints the number of records removed per record kind.
func (p *Printer) PrintCleanup(removed map[string]int) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]any{"removed": removed})
	case OutputFormatTable, OutputFormatText:
		names := make([]string, 0, len(removed))
		for name := range removed {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(p.writer, "Removed %d expired %s record(s)\n", removed[name], name)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// printJSON prints data as JSON
func (p *Printer) printJSON(data any) error {
	encoder := json.NewEncoder(p.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return formatTime(*t)
}
