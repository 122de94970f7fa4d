package jobsheet

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gadgetcare/repairbot/internal/models"
)

func testAppointment() models.Appointment {
	price := 8500
	return models.Appointment{
		ID:               "appt_test-123",
		CreatedAt:        time.Date(2025, 10, 20, 11, 0, 0, 0, time.UTC),
		CustomerWhatsApp: "919876543210",
		Name:             "Asha",
		Brand:            "Apple",
		Model:            "iPhone 12",
		Issue:            "Screen",
		Estimate:         &price,
		Date:             "2025-10-26",
		Time:             "15:30",
		Status:           models.AppointmentStatusPending,
	}
}

func TestRenderJobSheetWritesPDF(t *testing.T) {
	r, err := NewRenderer(Opts{Dir: t.TempDir()})
	require.NoError(t, err)

	path, err := r.RenderJobSheet(testAppointment())
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "appt_test-123.pdf"), "path %q", path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "%PDF"), "output is not a PDF")
	assert.Greater(t, len(data), 500)
}

func TestEstimateLineTiers(t *testing.T) {
	a := testAppointment()
	assert.Equal(t, "INR 8,500", estimateLine(a))

	a.Estimate = nil
	a.EstimateRange = "₹2,000–₹4,500"
	assert.Equal(t, "INR 2,000-INR 4,500", estimateLine(a))

	a.EstimateRange = ""
	assert.Equal(t, "To be quoted", estimateLine(a))
}

func TestSafeFileName(t *testing.T) {
	assert.Equal(t, "appt_abc-123", safeFileName("appt_abc-123"))
	assert.Equal(t, "a_b_c", safeFileName("a/b c"))
	assert.NotEmpty(t, safeFileName(""))
}
