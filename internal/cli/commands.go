package cli

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/gmsas95/meditime/internal/channels"
	"github.com/gmsas95/meditime/internal/dosetime"
	apperrors "github.com/gmsas95/meditime/internal/errors"
	"github.com/gmsas95/meditime/internal/schedule"
)

const maxDosesPerDay = 24

func usage(msg string) error {
	return apperrors.New(apperrors.ErrBadRequest.Code, "usage: "+msg)
}

func HandleUserCommand(ctx context.Context, env *Env, args []string) error {
	if len(args) == 0 {
		args = []string{"list"}
	}

	switch args[0] {
	case "list", "ls":
		users, err := env.Service.Users(ctx)
		if err != nil {
			return err
		}
		if len(users) == 0 {
			env.println("No users yet. Create one with: meditime user add <name>")
			return nil
		}
		active := env.Service.ActiveUser()
		for _, u := range users {
			marker := "  "
			if u.Name == active {
				marker = "▶ "
			}
			env.printf("%s%s\n", marker, u.Name)
		}

	case "add", "create":
		if len(args) < 2 {
			return usage("meditime user add <name>")
		}
		u, err := env.Service.CreateUser(ctx, strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		env.printf("✓ Created user '%s' (now active)\n", u.Name)

	case "switch", "use":
		if len(args) < 2 {
			return usage("meditime user switch <name>")
		}
		name := strings.Join(args[1:], " ")
		if err := env.Service.SwitchUser(ctx, name); err != nil {
			return err
		}
		env.printf("✓ Switched to '%s'\n", name)

	case "delete", "rm":
		if len(args) < 2 {
			return usage("meditime user delete <name>")
		}
		name := strings.Join(args[1:], " ")
		if err := env.Service.DeleteUser(ctx, name); err != nil {
			return err
		}
		env.printf("✓ Deleted user '%s' with their schedules\n", name)
		if active := env.Service.ActiveUser(); active != "" {
			env.printf("Active user: %s\n", active)
		}

	default:
		PrintUserHelp(env)
	}
	return nil
}

func HandleScheduleCommand(ctx context.Context, env *Env, args []string) error {
	if len(args) == 0 {
		args = []string{"list"}
	}

	switch args[0] {
	case "list", "ls":
		printSchedules(env)

	case "add":
		d, err := parseDraft(env, args[1:])
		if err != nil {
			return err
		}
		s, err := env.Service.Submit(ctx, d)
		if err != nil {
			return err
		}
		env.printf("✓ Saved schedule %s for %s\n", s.ID, s.DisplayName())

	case "delete", "rm":
		if len(args) < 2 {
			return usage("meditime schedule delete <id>")
		}
		if err := env.Service.DeleteSchedule(ctx, args[1]); err != nil {
			return err
		}
		env.printf("✓ Deleted schedule %s\n", args[1])

	case "clear":
		if err := env.Service.DeleteAllSchedules(ctx); err != nil {
			return err
		}
		env.printf("✓ Deleted all schedules of %s\n", env.Service.ActiveUser())

	case "delete-patient":
		if len(args) < 2 {
			return usage("meditime schedule delete-patient <patient>")
		}
		patient := strings.Join(args[1:], " ")
		n, err := env.Service.DeleteSchedulesByPatient(ctx, patient)
		if err != nil {
			return err
		}
		env.printf("✓ Deleted %d schedule(s) of %s\n", n, patient)

	default:
		PrintScheduleHelp(env)
	}
	return nil
}

func printSchedules(env *Env) {
	user := env.Service.ActiveUser()
	if user == "" {
		env.println("No active user selected.")
		return
	}

	groups := env.Service.Grouped()
	if len(groups) == 0 {
		env.printf("No schedules for %s.\n", user)
		return
	}

	env.printf("Schedules of %s:\n", user)
	for _, g := range groups {
		env.println()
		env.printf("%s\n", g.PatientName)
		for _, s := range g.Schedules {
			for _, m := range s.Medicines {
				env.printf("  %s  %s  %s  [%s]\n", s.ID, m.MedicineName,
					describeDays(m), describeTimes(m.DoseTimes))
			}
		}
	}
}

func describeDays(m schedule.Medicine) string {
	switch m.SchedulingMethod {
	case schedule.MethodDaysPerWeek:
		return strings.Join(m.SelectedDays, ", ")
	case schedule.MethodDaysGap:
		return fmt.Sprintf("every %d day(s)", m.DaysGap)
	}
	return "daily"
}

func describeTimes(times []string) string {
	out := make([]string, 0, len(times))
	for _, t := range times {
		out = append(out, dosetime.To12Hour(t))
	}
	return strings.Join(out, ", ")
}

// listFlag splits a comma separated flag value
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*l = append(*l, part)
		}
	}
	return nil
}

// parseDraft builds a one-medicine draft from schedule add flags
func parseDraft(env *Env, args []string) (schedule.Draft, error) {
	fs := flag.NewFlagSet("schedule add", flag.ContinueOnError)
	fs.SetOutput(env.Out)

	patient := fs.String("patient", "", "Patient name")
	medicine := fs.String("medicine", "", "Medicine name")
	method := fs.String("method", string(schedule.MethodDaysPerWeek), "daysPerWeek or daysGap")
	gap := fs.Int("gap", 0, "Days between doses (daysGap)")
	times := fs.Int("times-per-day", 1, "Doses per day, spread over the dose window")
	start := fs.String("start", "", "First day, YYYY-MM-DD")
	end := fs.String("end", "", "Last day, YYYY-MM-DD")
	var days, at listFlag
	fs.Var(&days, "days", "Weekdays, comma separated (daysPerWeek)")
	fs.Var(&at, "at", "Explicit dose times, comma separated, 12h or 24h")

	if err := fs.Parse(args); err != nil {
		return schedule.Draft{}, usage("meditime schedule add --patient <name> --medicine <name> [flags]")
	}

	d := schedule.NewDraft()
	d.PatientName = strings.TrimSpace(*patient)
	d.Medicines[0].MedicineName = strings.TrimSpace(*medicine)
	d.Medicines[0].StartDate = *start
	d.Medicines[0].EndDate = *end
	d.SetSchedulingMethod(0, schedule.Method(*method))
	for _, day := range days {
		d.ToggleDay(0, canonicalDay(day))
	}
	d.Medicines[0].DaysGap = schedule.Count(*gap)

	if len(at) > 0 {
		d.Medicines[0].TimesPerDay = schedule.Count(len(at))
		d.Medicines[0].DoseTimes = append([]string{}, at...)
	} else {
		d.SetDoseWindow(0, env.Config.Reminders.DoseWindowStart, env.Config.Reminders.DoseWindowEnd)
		d.SetTimesPerDay(0, *times)
	}
	return d, nil
}

// canonicalDay maps "mon" or "monday" to "Monday"; anything else is kept
// so validation reports it
func canonicalDay(s string) string {
	for _, day := range schedule.Weekdays {
		if strings.EqualFold(s, day) || (len(s) >= 3 && strings.HasPrefix(strings.ToLower(day), strings.ToLower(s))) {
			return day
		}
	}
	return s
}

func plain(s string) string { return s }

func HandleNextCommand(env *Env) error {
	text, _ := channels.Reply(env.Service, "next", plain)
	env.println(text)
	return nil
}

func HandleTimeCommand(env *Env, args []string) error {
	if len(args) < 2 {
		PrintTimeHelp(env)
		return nil
	}

	value := strings.Join(args[1:], " ")
	switch args[0] {
	case "12h":
		env.println(dosetime.To12Hour(dosetime.ParseInput(value)))

	case "24h":
		env.println(dosetime.ParseInput(value))

	case "split":
		count, err := strconv.Atoi(args[1])
		if err != nil || count < 1 || count > maxDosesPerDay {
			return usage(fmt.Sprintf("meditime time split <1-%d> [start end]", maxDosesPerDay))
		}
		start, end := env.Config.Reminders.DoseWindowStart, env.Config.Reminders.DoseWindowEnd
		if len(args) >= 4 {
			start, end = dosetime.ParseInput(args[2]), dosetime.ParseInput(args[3])
		}
		env.println(strings.Join(dosetime.EvenSplit(count, start, end), " "))

	default:
		PrintTimeHelp(env)
	}
	return nil
}

func HandleStatusCommand(env *Env) error {
	cfg := env.Config

	env.println("MediTime Status")
	env.println("===============")
	env.println()
	env.printf("Version:  %s\n", Version)
	env.printf("Config:   %s\n", orNone(cfg.File()))
	env.printf("Storage:  %s (%s)\n", cfg.Storage.Backend, storagePath(env))
	env.printf("Server:   http://%s\n", cfg.Addr())
	env.println()

	env.println("Reminders:")
	env.printf("  Repeat every: %s\n", cfg.Reminders.RepeatInterval)
	env.printf("  Speech:   %s\n", channelStatus(cfg.Reminders.Speech))
	env.printf("  Tone:     %s\n", channelStatus(cfg.Reminders.Tone))
	env.printf("  Desktop:  %s\n", channelStatus(cfg.Reminders.Desktop))
	env.printf("  Calendar: %s\n", channelStatus(cfg.Reminders.RespectCalendar))
	env.println()

	env.println("Push Channels:")
	env.printf("  Telegram: %s\n", channelStatus(cfg.Push.Telegram.Enabled))
	if cfg.Push.Telegram.Enabled {
		env.printf("    Bot Token: %s\n", maskToken(cfg.Push.Telegram.BotToken))
	}
	env.printf("  Discord:  %s\n", channelStatus(cfg.Push.Discord.Enabled))
	if cfg.Push.Discord.Enabled {
		env.printf("    Token: %s\n", maskToken(cfg.Push.Discord.Token))
	}
	env.println()

	text, _ := channels.Reply(env.Service, "next", plain)
	env.printf("User: %s\n", orNone(env.Service.ActiveUser()))
	env.println(text)
	return nil
}

func storagePath(env *Env) string {
	if env.Config.Storage.Backend == "sqlite" {
		return env.Config.Storage.SQLitePath
	}
	return env.Config.Storage.BadgerPath
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func channelStatus(enabled bool) string {
	if enabled {
		return "✅ enabled"
	}
	return "❌ disabled"
}

func maskToken(token string) string {
	if len(token) < 8 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
