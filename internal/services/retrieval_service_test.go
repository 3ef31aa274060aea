package services

import (
	"reflect"
	"testing"

	"cybersync/internal/models"
)

func TestFilterByThresholdKeepsRankOrder(t *testing.T) {
	results := []models.RetrievalResult{
		{Text: "phishing basics", Score: 0.92},
		{Text: "password hygiene", Score: 0.81},
		{Text: "unrelated trivia", Score: 0.40},
		{Text: "incident response", Score: 0.65},
	}

	got := FilterByThreshold(results, 0.65)
	want := []string{"phishing basics", "password hygiene", "incident response"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestFilterByThresholdBoundaryIsInclusive(t *testing.T) {
	results := []models.RetrievalResult{{Text: "exactly at cutoff", Score: 0.65}}
	if got := FilterByThreshold(results, 0.65); len(got) != 1 {
		t.Errorf("expected the boundary score to pass, got %v", got)
	}
}

func TestFilterByThresholdAllBelow(t *testing.T) {
	results := []models.RetrievalResult{
		{Text: "weak match", Score: 0.2},
		{Text: "weaker match", Score: 0.1},
	}
	if got := FilterByThreshold(results, 0.65); got != nil {
		t.Errorf("expected nil for all-below input, got %v", got)
	}
}

func TestFilterByThresholdEmptyInput(t *testing.T) {
	if got := FilterByThreshold(nil, 0.65); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}
