// Package channels holds what the chat bots share: the commands they answer
// and the controller those commands drive.
package channels

import (
	"fmt"
	"strings"

	"github.com/gmsas95/meditime/internal/dosetime"
	"github.com/gmsas95/meditime/internal/reminder"
)

// Controller is the part of app.Service the bots use
type Controller interface {
	ActiveUser() string
	NextDose() (reminder.Dose, bool)
	Reminder() reminder.Snapshot
	Dismiss() bool
}

// Reply answers a bot command (without the leading slash). bold wraps
// emphasised text in the markup of the channel. ok is false for unknown
// commands.
func Reply(ctrl Controller, command string, bold func(string) string) (reply string, ok bool) {
	switch strings.ToLower(strings.TrimPrefix(command, "/")) {
	case "start":
		return bold("MediTime") + "\n\nI send your medication reminders here.\nUse /help to see what I can do.", true

	case "help":
		return bold("Available Commands:") + `

/next - Show the next dose today
/dismiss - Stop the ringing reminder
/status - Show reminder status
/help - Show this help`, true

	case "next":
		return nextDose(ctrl), true

	case "dismiss":
		if ctrl.Dismiss() {
			return "Reminder dismissed.", true
		}
		return "No reminder is ringing.", true

	case "status":
		return status(ctrl, bold), true
	}
	return "Unknown command. Use /help for available commands.", false
}

func nextDose(ctrl Controller) string {
	if ctrl.ActiveUser() == "" {
		return "No active user selected."
	}
	d, ok := ctrl.NextDose()
	if !ok {
		return "No more doses today."
	}
	return fmt.Sprintf("Next dose: %s for %s at %s", d.MedicineName, d.PatientName, dosetime.To12Hour(d.DoseTime))
}

func status(ctrl Controller, bold func(string) string) string {
	snap := ctrl.Reminder()

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", bold("Reminder:"), snap.State)
	if user := ctrl.ActiveUser(); user != "" {
		fmt.Fprintf(&b, "\n%s %s", bold("User:"), user)
	}
	if snap.ArmedFor != nil {
		fmt.Fprintf(&b, "\n%s %s for %s at %s", bold("Armed:"),
			snap.ArmedFor.MedicineName, snap.ArmedFor.PatientName, dosetime.To12Hour(snap.ArmedFor.DoseTime))
	}
	if snap.Alert != nil {
		fmt.Fprintf(&b, "\n%s %s", bold("Ringing:"), snap.Alert.Body())
	}
	return b.String()
}
