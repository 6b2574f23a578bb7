package cli

import (
	"fmt"
	"io"
)

func PrintExtendedHelp(w io.Writer) {
	fmt.Fprint(w, `MediTime - medication reminders

Usage:
  meditime [flags] <command> [args]

Commands:
  serve                      Run the reminder daemon and local API
  user [list|add|switch|delete] <name>
                             Manage profiles
  schedule [list|add|delete|clear|delete-patient]
                             Manage schedules of the active user
  next                       Show the next dose today
  time [12h|24h|split]       Convert dose times or suggest an even split
  export [file]              Dump all data as YAML (or JSON by extension)
  import <file>              Replace all data with an export
  status                     Show configuration and reminder status
  version                    Show version
  help                       Show this help

Flags:
  -config <path>             Path to config file
  -data <dir>                Path to data directory
`)
}

func PrintUserHelp(env *Env) {
	fmt.Fprint(env.Out, `Usage: meditime user <command>

  list                 List users, the active one marked
  add <name>           Create a user and make it active
  switch <name>        Make a user active
  delete <name>        Delete a user with their schedules and draft
`)
}

func PrintScheduleHelp(env *Env) {
	fmt.Fprint(env.Out, `Usage: meditime schedule <command>

  list                       Schedules of the active user, by patient
  add [flags]                Validate and save a schedule
  delete <id>                Delete one schedule
  clear                      Delete every schedule of the active user
  delete-patient <patient>   Delete every schedule of one patient

Flags for add:
  --patient <name>           Patient name (required)
  --medicine <name>          Medicine name (required)
  --method daysPerWeek|daysGap
  --days Monday,Thursday     Weekdays for daysPerWeek
  --gap <n>                  Days between doses for daysGap
  --times-per-day <n>        Doses per day, spread over the dose window
  --at 08:00,8:00 PM         Explicit dose times
  --start/--end YYYY-MM-DD   Optional date range
`)
}

func PrintTimeHelp(env *Env) {
	fmt.Fprint(env.Out, `Usage: meditime time <command>

  12h <time>                 14:30 -> 02:30 PM
  24h <time>                 2:30 PM -> 14:30
  split <count> [start end]  Evenly spaced dose times in the window
`)
}
