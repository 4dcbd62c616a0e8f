package alerter

import (
	"Go2CrossCount/internal/config"
	"Go2CrossCount/internal/model"
	"errors"
	"strings"
	"testing"
)

type fakeNotifier struct {
	subjects []string
	bodies   []string
	err      error
}

func (n *fakeNotifier) Send(subject, body string) error {
	n.subjects = append(n.subjects, subject)
	n.bodies = append(n.bodies, body)
	return n.err
}

func rules() *config.AlerterConfig {
	return &config.AlerterConfig{
		Enabled: true,
		Rules: []config.AlerterRule{
			{Name: "car surge", Class: "car", Metric: "interval", Operator: ">=", Threshold: 40},
			{Name: "bus seen", Class: "bus", Metric: "total", Operator: ">", Threshold: 0},
		},
	}
}

func TestAlerter_Observe(t *testing.T) {
	notifier := &fakeNotifier{}
	a, err := NewAlerter(rules(), model.ClassSet{"car", "bus"}, notifier)
	if err != nil {
		t.Fatalf("NewAlerter failed: %v", err)
	}

	quiet := &model.Bucket{Index: 1, Classes: []model.ClassTotal{{Class: "car", Total: 10, Interval: 10}, {Class: "bus"}}}
	a.Observe(quiet)
	if len(notifier.subjects) != 0 {
		t.Fatalf("Expected no notification for a quiet bucket, got %v", notifier.subjects)
	}

	busy := &model.Bucket{Index: 2, Classes: []model.ClassTotal{{Class: "car", Total: 60, Interval: 50}, {Class: "bus", Total: 1, Interval: 1}}}
	a.Observe(busy)
	if len(notifier.subjects) != 1 {
		t.Fatalf("Expected one consolidated notification, got %d", len(notifier.subjects))
	}
	if !strings.Contains(notifier.subjects[0], "(2 Triggered)") {
		t.Errorf("Unexpected subject: %s", notifier.subjects[0])
	}
	if !strings.Contains(notifier.bodies[0], "car surge") || !strings.Contains(notifier.bodies[0], "bus seen") {
		t.Errorf("Body is missing a triggered rule: %s", notifier.bodies[0])
	}
}

func TestAlerter_SendFailureIsNotFatal(t *testing.T) {
	notifier := &fakeNotifier{err: errors.New("smtp down")}
	a, err := NewAlerter(rules(), model.ClassSet{"car", "bus"}, notifier)
	if err != nil {
		t.Fatalf("NewAlerter failed: %v", err)
	}
	a.Observe(&model.Bucket{Index: 1, Classes: []model.ClassTotal{{Class: "bus", Total: 2, Interval: 2}}})
	if len(notifier.subjects) != 1 {
		t.Errorf("Expected one send attempt, got %d", len(notifier.subjects))
	}
}

func TestNewAlerter_RejectsBadRules(t *testing.T) {
	cases := []config.AlerterRule{
		{Name: "unknown class", Class: "boat", Metric: "total", Operator: ">"},
		{Name: "unknown metric", Class: "car", Metric: "speed", Operator: ">"},
		{Name: "unknown operator", Class: "car", Metric: "total", Operator: "!="},
	}
	for _, rule := range cases {
		cfg := &config.AlerterConfig{Rules: []config.AlerterRule{rule}}
		if _, err := NewAlerter(cfg, model.ClassSet{"car"}, nil); err == nil {
			t.Errorf("%s: expected an error", rule.Name)
		}
	}
}
