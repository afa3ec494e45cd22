package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfeidau/eventdesk/internal/apperr"
	"github.com/wolfeidau/eventdesk/internal/data"
	"github.com/wolfeidau/eventdesk/internal/models"
)

// DateTimeLayout is the accepted format for --start and --end. Values are UTC.
const DateTimeLayout = "2006-01-02T15:04"

type eventRecord struct {
	ID          string    `json:"id" yaml:"id"`
	Title       string    `json:"title" yaml:"title"`
	Description string    `json:"description" yaml:"description"`
	StartDate   time.Time `json:"start_date" yaml:"start_date"`
	EndDate     time.Time `json:"end_date" yaml:"end_date"`
}

func newEventRecords(events []models.Event) []eventRecord {
	out := make([]eventRecord, 0, len(events))
	for _, e := range events {
		out = append(out, eventRecord{
			ID:          e.ID.String(),
			Title:       e.Title,
			Description: e.Description,
			StartDate:   e.StartDate,
			EndDate:     e.EndDate,
		})
	}
	return out
}

type EventsListCmd struct {
	OutputFlags
}

func (l *EventsListCmd) Run(ctx context.Context, globals *Globals) error {
	return run(ctx, globals, l)
}

func (l *EventsListCmd) run(ctx context.Context, a *app) error {
	u, err := a.requireUser(ctx)
	if err != nil {
		return err
	}

	events, err := a.access.FetchEvents(ctx, u.ID)
	if err != nil {
		return err
	}

	records := newEventRecords(events)
	if done, err := l.encode(a.out, records); done {
		return err
	}

	if len(records) == 0 {
		fmt.Fprintln(a.out, "No events found")
		return nil
	}

	fmt.Fprintf(a.out, "%-36s %-30s %-17s %-17s\n", "ID", "TITLE", "START", "END")
	rule(a.out, 103)
	for _, r := range records {
		fmt.Fprintf(a.out, "%-36s %-30s %-17s %-17s\n",
			r.ID,
			truncate(r.Title, 30),
			r.StartDate.UTC().Format("2006-01-02 15:04"),
			r.EndDate.UTC().Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(a.out, "\nTotal events: %d\n", len(records))
	return nil
}

type EventsCreateCmd struct {
	Title       string `help:"Event title" required:""`
	Description string `help:"Event description"`
	Start       string `help:"Start date and time (YYYY-MM-DDTHH:MM, UTC)" required:""`
	End         string `help:"End date and time (YYYY-MM-DDTHH:MM, UTC)" required:""`
}

func (c *EventsCreateCmd) Run(ctx context.Context, globals *Globals) error {
	return run(ctx, globals, c)
}

func (c *EventsCreateCmd) run(ctx context.Context, a *app) error {
	if !a.flags.IsEnabled("events.creation") {
		return apperr.Validation("event creation is disabled")
	}

	u, err := a.requireUser(ctx)
	if err != nil {
		return err
	}

	start, err := time.Parse(DateTimeLayout, c.Start)
	if err != nil {
		return apperr.Validation(fmt.Sprintf("invalid --start %q, expected %s", c.Start, DateTimeLayout))
	}
	end, err := time.Parse(DateTimeLayout, c.End)
	if err != nil {
		return apperr.Validation(fmt.Sprintf("invalid --end %q, expected %s", c.End, DateTimeLayout))
	}

	e, err := a.access.CreateEvent(ctx, u.ID, data.NewEvent{
		Title:       c.Title,
		Description: c.Description,
		StartDate:   start,
		EndDate:     end,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Event created successfully: %s\n", e.ID)
	return nil
}
