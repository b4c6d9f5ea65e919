package products

import (
	"fmt"
	"strings"
	"time"
)

const (
	// MachineDateLayout is the form used by date inputs and the API.
	MachineDateLayout = "2006-01-02"
	// DisplayDateLayout is the pt-BR form shown to people.
	DisplayDateLayout = "02/01/2006"
)

// ParseDate accepts a calendar date in machine or display form and returns
// midnight UTC of that day.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{MachineDateLayout, DisplayDateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

func MachineDate(t time.Time) string {
	return t.Format(MachineDateLayout)
}

func DisplayDate(t time.Time) string {
	return t.Format(DisplayDateLayout)
}

// DisplayToMachine converts a previously displayed date back into the form
// edit forms submit.
func DisplayToMachine(s string) (string, error) {
	t, err := time.Parse(DisplayDateLayout, strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("invalid display date %q", s)
	}
	return MachineDate(t), nil
}

func MachineToDisplay(s string) (string, error) {
	t, err := time.Parse(MachineDateLayout, strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("invalid date %q", s)
	}
	return DisplayDate(t), nil
}

// RegistrationDate renders a creation timestamp as a display date in loc.
func RegistrationDate(createdAt time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return DisplayDate(createdAt.In(loc))
}

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
