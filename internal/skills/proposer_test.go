package skills

import (
	"testing"

	"github.com/kilohq/kilo/pkg/models"
)

func TestProposeTracker(t *testing.T) {
	got := NewProposer().Propose("can you keep track of my daily water intake", nil)
	if got == nil {
		t.Fatal("no proposal")
	}
	if got.Name != "My Daily Water Intake Tracker" && got.Name != "Daily Water Intake Tracker" {
		t.Errorf("name = %q", got.Name)
	}
	if len(got.Fields) != 1 || got.Fields[0].Name != "description" || !got.Fields[0].Required {
		t.Errorf("fields = %+v", got.Fields)
	}
}

func TestProposeReminder(t *testing.T) {
	got := NewProposer().Propose("remind me to take vitamins every morning", nil)
	if got == nil {
		t.Fatal("no proposal")
	}
	if got.Name != "Take Vitamins Reminder" {
		t.Errorf("name = %q, want Take Vitamins Reminder", got.Name)
	}
	if got.Schedule != "0 8 * * *" {
		t.Errorf("schedule = %q, want morning cron", got.Schedule)
	}
	if got.OutputFormat != models.OutputNotification {
		t.Errorf("format = %q", got.OutputFormat)
	}
}

func TestProposeWeekdayScheduleBeatsDaily(t *testing.T) {
	// "monday" contains "day"; the weekday cron must win.
	got := NewProposer().Propose("remind me to water the plants every monday", nil)
	if got == nil {
		t.Fatal("no proposal")
	}
	if got.Schedule != "0 9 * * 1" {
		t.Errorf("schedule = %q, want monday cron", got.Schedule)
	}
	if scheduleFor("every saturday") != "0 9 * * 6" {
		t.Errorf("saturday resolved to %q", scheduleFor("every saturday"))
	}
	if scheduleFor("every day") != "0 9 * * *" {
		t.Errorf("every day resolved to %q", scheduleFor("every day"))
	}
}

func TestProposeLog(t *testing.T) {
	got := NewProposer().Propose("I want to log my workouts every day", nil)
	if got == nil {
		t.Fatal("no proposal")
	}
	if got.Name != "Workouts Every Day Log" && got.Name != "Workouts Log" {
		t.Errorf("name = %q", got.Name)
	}
	if len(got.Fields) != 2 {
		t.Fatalf("fields = %+v", got.Fields)
	}
	if !got.Fields[0].Required || got.Fields[1].Required {
		t.Errorf("field requirements = %+v", got.Fields)
	}
}

func TestProposeRequiresSignals(t *testing.T) {
	if got := NewProposer().Propose("what is the capital of France", nil); got != nil {
		t.Fatalf("proposal without signals: %+v", got)
	}
}

func TestProposeSuppressedByRecentDismissal(t *testing.T) {
	dismissed := []string{"Water Intake Tracker"}
	got := NewProposer().Propose("keep track of my water intake every day", dismissed)
	if got != nil {
		t.Fatalf("dismissed proposal resurfaced: %+v", got)
	}
}

func TestProposeConfidenceScalesWithSignals(t *testing.T) {
	// tracking + temporal + aggregation signals.
	got := NewProposer().Propose("keep track of my expenses daily and log the total", nil)
	if got == nil {
		t.Fatal("no proposal")
	}
	if got.Confidence < 0.6 || got.Confidence > 0.9 {
		t.Errorf("confidence = %f", got.Confidence)
	}
}
