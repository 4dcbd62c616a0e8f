package alerter

import (
	"Go2CrossCount/internal/config"
	"Go2CrossCount/internal/model"
	"fmt"
	"log"
	"strings"
)

// Alerter evaluates every flushed bucket against the configured rules and
// sends one consolidated notification when any of them trigger.
type Alerter struct {
	rules    []config.AlerterRule
	notifier model.Notifier
}

// NewAlerter creates a new Alerter instance. Rules naming a class outside the
// class set or an unknown metric or operator are rejected.
func NewAlerter(cfg *config.AlerterConfig, classes model.ClassSet, notifier model.Notifier) (*Alerter, error) {
	known := make(map[string]struct{}, len(classes))
	for _, class := range classes {
		known[class] = struct{}{}
	}
	for _, rule := range cfg.Rules {
		if _, ok := known[rule.Class]; !ok {
			return nil, fmt.Errorf("alert rule '%s' references unknown class '%s'", rule.Name, rule.Class)
		}
		if rule.Metric != "total" && rule.Metric != "interval" {
			return nil, fmt.Errorf("alert rule '%s' has unknown metric '%s'", rule.Name, rule.Metric)
		}
		switch rule.Operator {
		case ">", "<", "=", ">=", "<=":
		default:
			return nil, fmt.Errorf("alert rule '%s' has unknown operator '%s'", rule.Name, rule.Operator)
		}
	}
	return &Alerter{rules: cfg.Rules, notifier: notifier}, nil
}

// Evaluate returns one HTML fragment per rule triggered by the bucket.
func (a *Alerter) Evaluate(bucket *model.Bucket) []string {
	byClass := make(map[string]model.ClassTotal, len(bucket.Classes))
	for _, ct := range bucket.Classes {
		byClass[ct.Class] = ct
	}

	var triggered []string
	for _, rule := range a.rules {
		ct := byClass[rule.Class]
		value := float64(ct.Total)
		if rule.Metric == "interval" {
			value = float64(ct.Interval)
		}
		if !check(value, rule.Threshold, rule.Operator) {
			continue
		}
		triggered = append(triggered, fmt.Sprintf("<h3>Alert: %s</h3>"+
			"<ul>"+
			"<li><b>Bucket:</b> <code>%d</code></li>"+
			"<li><b>Class:</b> <code>%s</code></li>"+
			"<li><b>Metric:</b> <code>%s</code></li>"+
			"<li><b>Condition:</b> <code>%s %.2f</code></li>"+
			"<li><b>Observed Value:</b> <code>%.0f</code></li>"+
			"</ul>",
			rule.Name, bucket.Index, rule.Class, rule.Metric, rule.Operator, rule.Threshold, value))
	}
	return triggered
}

// Observe evaluates the bucket and notifies when rules trigger. Failures are
// logged only; alerting never stops a run.
func (a *Alerter) Observe(bucket *model.Bucket) {
	messages := a.Evaluate(bucket)
	if len(messages) == 0 {
		return
	}

	log.Printf("Alerter evaluation for bucket %d completed. %d alert(s) triggered.", bucket.Index, len(messages))

	body := "<h1>Go2CrossCount Alert Summary</h1>" +
		fmt.Sprintf("<p>The following alerts were triggered by bucket %d:</p><hr>", bucket.Index) +
		strings.Join(messages, "<hr>")

	if a.notifier == nil {
		return
	}
	subject := fmt.Sprintf("Go2CrossCount Alert Summary (%d Triggered)", len(messages))
	if err := a.notifier.Send(subject, body); err != nil {
		log.Printf("ERROR: Failed to send consolidated alert notification: %v", err)
	} else {
		log.Printf("INFO: Consolidated alert notification sent successfully.")
	}
}

// check compares a value against a threshold based on an operator.
func check(value, threshold float64, operator string) bool {
	switch operator {
	case ">":
		return value > threshold
	case "<":
		return value < threshold
	case "=":
		return value == threshold
	case ">=":
		return value >= threshold
	case "<=":
		return value <= threshold
	default:
		return false
	}
}
