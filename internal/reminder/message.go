package reminder

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"praypal/internal/prayertimes"
)

// Title renders a prayer name or location for display ("fajr" -> "Fajr").
func Title(s string) string {
	return cases.Title(language.English).String(strings.TrimSpace(s))
}

// Message composes the text delivered when a job fires. Shurooq is sunrise,
// not a prayer, so it is phrased as "time".
func Message(prayer string, kind Kind, leadTime *int) string {
	name := Title(prayer)
	shurooq := strings.EqualFold(prayer, prayertimes.Shurooq)

	if kind == KindLead && leadTime != nil {
		if shurooq {
			return fmt.Sprintf("Reminder: It's almost %s time (in %d minutes)", name, *leadTime)
		}
		return fmt.Sprintf("Reminder: It's almost time for %s prayer. You have %d minutes to prepare.", name, *leadTime)
	}
	if shurooq {
		return fmt.Sprintf("It's %s time.", name)
	}
	return fmt.Sprintf("It's time for %s prayer.", name)
}
