package models

import (
	"strings"
	"time"

	"github.com/uptrace/bun"
)

const (
	EventStatusPending  = "pending"
	EventStatusApproved = "approved"
	EventStatusRejected = "rejected"
)

const (
	FormatSingle   = "single"
	FormatPeriod   = "period"
	FormatSessions = "sessions"
)

// MaxPhotos is the number of photos kept per event; extras are dropped.
const MaxPhotos = 5

// Event dates and times are kept as the text the organizer typed.
// Which date group is meaningful depends on Format.
type Event struct {
	bun.BaseModel `bun:"table:events,alias:e"`

	ID           int64  `bun:"id,pk,autoincrement" json:"id"`
	OrganizerID  int64  `bun:"organizer_id,notnull" json:"organizer_id"`
	Category     string `bun:"category,notnull" json:"category"`
	CategoryText string `bun:"category_text,notnull,default:''" json:"category_text"`
	Title        string `bun:"title,notnull" json:"title"`
	Description  string `bun:"description,notnull" json:"description"`
	Format       string `bun:"event_format,notnull,default:'single'" json:"event_format"`

	EventDate string `bun:"event_date,notnull,default:''" json:"event_date"`
	EventTime string `bun:"event_time,notnull,default:''" json:"event_time"`

	StartDate string `bun:"start_date,notnull,default:''" json:"start_date"`
	EndDate   string `bun:"end_date,notnull,default:''" json:"end_date"`
	OpenTime  string `bun:"open_time,notnull,default:''" json:"open_time"`
	CloseTime string `bun:"close_time,notnull,default:''" json:"close_time"`

	SessionsStartDate string `bun:"sessions_start_date,notnull,default:''" json:"sessions_start_date"`
	SessionsEndDate   string `bun:"sessions_end_date,notnull,default:''" json:"sessions_end_date"`
	SessionsTimes     string `bun:"sessions_times,notnull,default:''" json:"sessions_times"`

	Location   string `bun:"location,notnull,default:''" json:"location"`
	PriceText  string `bun:"price_text,notnull,default:''" json:"price_text"`
	TicketLink string `bun:"ticket_link,notnull,default:''" json:"ticket_link"`
	Phone      string `bun:"phone,notnull,default:''" json:"phone"`

	// EndsOn is LastDate taken at creation, NULL when the dates do not parse.
	EndsOn *time.Time `bun:"ends_on" json:"ends_on,omitempty"`

	Status    string    `bun:"status,notnull,default:'pending'" json:"status"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updated_at"`

	PromotedKind  string     `bun:"promoted_kind,notnull,default:''" json:"promoted_kind"`
	PromotedAt    *time.Time `bun:"promoted_at" json:"promoted_at,omitempty"`
	PromotedUntil *time.Time `bun:"promoted_until" json:"promoted_until,omitempty"`
	Highlighted   bool       `bun:"highlighted,notnull,default:false" json:"highlighted"`
	BumpedAt      *time.Time `bun:"bumped_at" json:"bumped_at,omitempty"`

	Photos []*EventPhoto `bun:"rel:has-many,join:id=event_id" json:"photos,omitempty"`
}

// PhotoIDs returns the photo file ids in position order.
func (e *Event) PhotoIDs() []string {
	ids := make([]string, 0, len(e.Photos))
	for _, p := range e.Photos {
		ids = append(ids, p.FileID)
	}
	return ids
}

// SessionTimes splits the free-text sessions list ("12:00, 15:30; 19:00").
func (e *Event) SessionTimes() []string {
	fields := strings.FieldsFunc(e.SessionsTimes, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\n' || r == '\t'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// NewEvent carries organizer input for CreateEvent.
type NewEvent struct {
	OrganizerID  int64
	Category     string
	CategoryText string
	Title        string
	Description  string
	Format       string

	EventDate string
	EventTime string

	StartDate string
	EndDate   string
	OpenTime  string
	CloseTime string

	SessionsStartDate string
	SessionsEndDate   string
	SessionsTimes     string

	Location   string
	PriceText  string
	TicketLink string
	Phone      string

	PhotoFileIDs []string
}

// KeepOnlyFormatDates blanks the date groups that Format does not select, so a
// stored event carries exactly one group. An empty Format counts as single.
func (n *NewEvent) KeepOnlyFormatDates() {
	format := n.Format
	if format == "" {
		format = FormatSingle
	}
	if format != FormatSingle {
		n.EventDate, n.EventTime = "", ""
	}
	if format != FormatPeriod {
		n.StartDate, n.EndDate, n.OpenTime, n.CloseTime = "", "", "", ""
	}
	if format != FormatSessions {
		n.SessionsStartDate, n.SessionsEndDate, n.SessionsTimes = "", "", ""
	}
}

// Validate checks the fields that must be present on every submission.
func (n *NewEvent) Validate() error {
	switch {
	case n.OrganizerID == 0:
		return &ValidationError{Field: "organizer_id"}
	case strings.TrimSpace(n.Category) == "":
		return &ValidationError{Field: "category"}
	case strings.TrimSpace(n.Title) == "":
		return &ValidationError{Field: "title"}
	case strings.TrimSpace(n.Description) == "":
		return &ValidationError{Field: "description"}
	}
	switch n.Format {
	case "", FormatSingle, FormatPeriod, FormatSessions:
	default:
		return &ValidationError{Field: "event_format", Message: "unknown format " + n.Format}
	}
	return nil
}
