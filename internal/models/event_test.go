package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeepOnlyFormatDates(t *testing.T) {
	filled := func(format string) NewEvent {
		return NewEvent{
			Format:            format,
			EventDate:         "20.06.2025",
			EventTime:         "19:00",
			StartDate:         "05.06.2025",
			EndDate:           "06.06.2025",
			OpenTime:          "10:00",
			CloseTime:         "18:00",
			SessionsStartDate: "01.07.2025",
			SessionsEndDate:   "02.07.2025",
			SessionsTimes:     "12:00",
		}
	}

	single := filled("")
	single.KeepOnlyFormatDates()
	assert.Equal(t, NewEvent{EventDate: "20.06.2025", EventTime: "19:00"}, single)

	period := filled(FormatPeriod)
	period.KeepOnlyFormatDates()
	assert.Equal(t, NewEvent{
		Format:    FormatPeriod,
		StartDate: "05.06.2025",
		EndDate:   "06.06.2025",
		OpenTime:  "10:00",
		CloseTime: "18:00",
	}, period)

	sessions := filled(FormatSessions)
	sessions.KeepOnlyFormatDates()
	assert.Equal(t, NewEvent{
		Format:            FormatSessions,
		SessionsStartDate: "01.07.2025",
		SessionsEndDate:   "02.07.2025",
		SessionsTimes:     "12:00",
	}, sessions)
}
