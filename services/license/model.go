package license

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// DateLayout is the wire format of every date in the license API.
const DateLayout = "2006-01-02"

type License struct {
	ID         string         `gorm:"column:id;primaryKey"`
	ClientID   string         `gorm:"column:client_id;not null;index"`
	LicenseKey string         `gorm:"column:license_key;not null"`
	ValidUntil datatypes.Date `gorm:"column:valid_until;not null"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (License) TableName() string {
	return "licenses"
}

// ValidUntilString formats the expiry as YYYY-MM-DD in UTC.
func (l *License) ValidUntilString() string {
	return FormatDate(l.ValidUntil)
}

// ExpiresAt is the instant the license stops being valid, midnight UTC of valid_until.
func (l *License) ExpiresAt() time.Time {
	y, m, d := time.Time(l.ValidUntil).UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate reads a YYYY-MM-DD value as midnight UTC.
func ParseDate(s string) (datatypes.Date, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return datatypes.Date{}, err
	}
	return datatypes.Date(t), nil
}

func FormatDate(d datatypes.Date) string {
	return time.Time(d).UTC().Format(DateLayout)
}
