package store

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gadgetcare/repairbot/internal/models"
)

func validAppointment() models.Appointment {
	est := 8500
	return models.Appointment{
		CreatedAt:        time.Now(),
		CustomerWhatsApp: "911234567890",
		Name:             "Asha",
		Brand:            "Apple",
		Model:            "iPhone 12",
		Issue:            "Screen",
		Estimate:         &est,
		Date:             "2025-10-26",
		Time:             "15:30",
		Status:           models.AppointmentStatusPending,
	}
}

func TestCreateAppointmentAssignsID(t *testing.T) {
	s := NewInMemoryStore()
	id, err := s.CreateAppointment(validAppointment())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "appt_"), "id %q missing prefix", id)

	appts, err := s.ListAppointments()
	require.NoError(t, err)
	require.Len(t, appts, 1)
	assert.Equal(t, id, appts[0].ID)
	assert.Equal(t, models.AppointmentStatusPending, appts[0].Status)
	require.NotNil(t, appts[0].Estimate)
	assert.Equal(t, 8500, *appts[0].Estimate)
}

func TestCreateAppointmentValidates(t *testing.T) {
	s := NewInMemoryStore()

	a := validAppointment()
	a.Date = "26-10-2025"
	_, err := s.CreateAppointment(a)
	assert.ErrorIs(t, err, models.ErrInvalidDate)

	a = validAppointment()
	a.Time = "3pm"
	_, err = s.CreateAppointment(a)
	assert.ErrorIs(t, err, models.ErrInvalidTime)

	a = validAppointment()
	a.Name = ""
	_, err = s.CreateAppointment(a)
	assert.ErrorIs(t, err, models.ErrEmptyName)

	appts, err := s.ListAppointments()
	require.NoError(t, err)
	assert.Empty(t, appts, "invalid appointments were stored")
}

func TestMessageLogAndChats(t *testing.T) {
	s := NewInMemoryStore()
	msgs := []models.Message{
		{UserID: "111", Direction: models.DirectionInbound, Body: "hi", Time: 1},
		{UserID: "111", Direction: models.DirectionOutbound, Body: "Hey!", Time: 2},
		{UserID: "222", Direction: models.DirectionInbound, Body: "menu", Time: 5},
		{UserID: "111", Direction: models.DirectionInbound, Body: "estimate", Time: 3},
	}
	for _, m := range msgs {
		require.NoError(t, s.RecordMessage(m))
	}

	got, err := s.ListMessages("111", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "hi", got[0].Body, "messages not oldest-first")
	assert.Equal(t, "estimate", got[2].Body)

	got, err = s.ListMessages("111", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Hey!", got[0].Body, "limit should keep the most recent messages")

	chats, err := s.ListChats()
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, "222", chats[0].UserID, "chats not ordered by recency")
	assert.Equal(t, 3, chats[1].MessageCount)
	assert.Equal(t, int64(3), chats[1].LastMessageAt)
}

func TestDetectDSNType(t *testing.T) {
	assert.Equal(t, "postgres", DetectDSNType("postgres://u:p@localhost/db"))
	assert.Equal(t, "postgres", DetectDSNType("host=localhost user=repairbot"))
	assert.Equal(t, "sqlite", DetectDSNType("/var/lib/repairbot/repairbot.db"))
	assert.Equal(t, "sqlite", DetectDSNType("repairbot.db"))
}

func TestOpenDefaultsToMemory(t *testing.T) {
	s, err := Open()
	require.NoError(t, err)
	_, ok := s.(*InMemoryStore)
	assert.True(t, ok, "Open without DSN should return the in-memory store")
}
