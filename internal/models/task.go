package models

import "fmt"

// Task identifies a classification task applied to reviews.
type Task string

const (
	TaskSentiment      Task = "sentiment"
	TaskFeatureRequest Task = "feature_request"
	TaskBugReport      Task = "bug_report"
)

// AllTasks returns every supported task in display order.
func AllTasks() []Task {
	return []Task{TaskSentiment, TaskFeatureRequest, TaskBugReport}
}

// ParseTask validates a task name from user input.
func ParseTask(s string) (Task, error) {
	t := Task(s)
	for _, known := range AllTasks() {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown task %q (valid: sentiment, feature_request, bug_report)", s)
}

// Labels returns the canonical label set for a task. Model responses are
// normalized onto this set before any metric is computed.
func (t Task) Labels() []string {
	switch t {
	case TaskSentiment:
		return []string{"positive", "negative", "neutral"}
	case TaskFeatureRequest, TaskBugReport:
		return []string{"yes", "no"}
	}
	return nil
}

// Question returns the yes/no question a binary task asks, or a short
// description for sentiment. Used when composing prompts.
func (t Task) Question() string {
	switch t {
	case TaskSentiment:
		return "What is the overall sentiment of this review?"
	case TaskFeatureRequest:
		return "Does this review request a new feature or enhancement?"
	case TaskBugReport:
		return "Does this review report a bug, crash, or malfunction?"
	}
	return ""
}
