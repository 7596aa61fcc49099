package models

import (
	"time"
)

type Identity struct {
	Address         string    `json:"address" gorm:"primaryKey;type:text"`
	LinkedHandle    *string   `json:"linkedHandle" gorm:"type:text"`
	ReputationScore float64   `json:"reputationScore" gorm:"type:double precision;not null;default:0"`
	Active          bool      `json:"active" gorm:"not null;default:true"`
	CDate           time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
}
