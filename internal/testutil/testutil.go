// Package testutil provides shared fixtures for flow and router tests: a
// small repair catalog and a scriptable assistant double.
package testutil

import (
	"context"

	"github.com/gadgetcare/repairbot/internal/catalog"
	"github.com/gadgetcare/repairbot/internal/models"
)

// NewCatalog returns a small in-memory catalog used across tests.
func NewCatalog() *catalog.Catalog {
	return catalog.New(catalog.Table{
		"Apple": {
			"iPhone 12": {"Screen": 8500, "Battery": 3500},
			"iPhone 13": {"Screen": 10500, "Battery": 4200},
		},
		"Samsung": {
			"Galaxy S21": {"Screen": 9000, "Battery": 4000},
		},
	})
}

// MockAssistant is a scriptable assistant.Assistant implementation. Each
// reply field is returned verbatim; Err, when set, is returned by every
// method to simulate transport failures.
type MockAssistant struct {
	FreeformReply string
	DateReply     string
	TimeReply     string
	RangeReply    string
	DiagnoseReply string
	ImageReply    string
	Err           error

	Calls []string
}

func (m *MockAssistant) record(name string) { m.Calls = append(m.Calls, name) }

func (m *MockAssistant) AnswerFreeform(_ context.Context, _ string, _ []models.Message) (string, error) {
	m.record("AnswerFreeform")
	return m.FreeformReply, m.Err
}

func (m *MockAssistant) ParseNaturalDate(_ context.Context, _ string) (string, error) {
	m.record("ParseNaturalDate")
	return m.DateReply, m.Err
}

func (m *MockAssistant) ParseNaturalTime(_ context.Context, _ string) (string, error) {
	m.record("ParseNaturalTime")
	return m.TimeReply, m.Err
}

func (m *MockAssistant) EstimateRange(_ context.Context, _, _, _ string) (string, error) {
	m.record("EstimateRange")
	return m.RangeReply, m.Err
}

func (m *MockAssistant) Diagnose(_ context.Context, _, _, _ string) (string, error) {
	m.record("Diagnose")
	return m.DiagnoseReply, m.Err
}

func (m *MockAssistant) AnalyzeImage(_ context.Context, _ []byte, _, _ string) (string, error) {
	m.record("AnalyzeImage")
	return m.ImageReply, m.Err
}
