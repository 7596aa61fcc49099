package models

import (
	"time"

	"github.com/lib/pq"
)

type ContributionEntry struct {
	ID                 string    `json:"id" gorm:"primaryKey;type:text"`
	SessionID          string    `json:"sessionID" gorm:"type:text"`
	Identity           string    `json:"identity" gorm:"type:text;index"`
	ContentFingerprint string    `json:"contentFingerprint" gorm:"type:text;uniqueIndex"`
	ContributionType   string    `json:"contributionType" gorm:"type:text"`
	Platform           string    `json:"platform" gorm:"type:text"`
	QualityScore       float64   `json:"qualityScore" gorm:"type:double precision;not null;default:0"`
	RewardMilli        int64     `json:"rewardMilli" gorm:"type:bigint;not null;default:0"`
	Status             string    `json:"status" gorm:"type:text;index;not null;default:'pending'"`
	BatchID            *string   `json:"batchID" gorm:"type:text;index"`
	BatchSeq           int       `json:"batchSeq" gorm:"type:integer;not null;default:0"`
	SettlementRef      *string   `json:"settlementRef" gorm:"type:text"`
	CDate              time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
}

type Batch struct {
	ID           string         `json:"id" gorm:"primaryKey;type:text"`
	EntryIDs     pq.StringArray `json:"entryIDs" gorm:"type:text[]"`
	TotalMilli   int64          `json:"totalMilli" gorm:"type:bigint;not null;default:0"`
	Status       string         `json:"status" gorm:"type:text;index"`
	AttemptCount int            `json:"attemptCount" gorm:"type:integer;not null;default:0"`
	TxRef        *string        `json:"txRef" gorm:"type:text"`
	OpenedAt     time.Time      `json:"openedAt" gorm:"type:timestamp with time zone;not null"`
	CDate        time.Time      `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
}
