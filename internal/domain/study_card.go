package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// StudyCard is a stock-bearing flashcard set. Quantity is only changed through
// the stock repository's Reserve and Release.
type StudyCard struct {
	ID        uint64          `json:"id" gorm:"primaryKey;autoIncrement"`
	Title     string          `json:"title" gorm:"type:varchar(255);not null"`
	Price     decimal.Decimal `json:"price" gorm:"type:decimal(10,2);not null"`
	Quantity  int64           `json:"quantity" gorm:"not null;default:0;check:chk_study_cards_quantity,quantity >= 0"`
	Active    bool            `json:"active" gorm:"not null;default:true"`
	CreatedAt time.Time       `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time       `json:"updatedAt" gorm:"autoUpdateTime"`
}

func (StudyCard) TableName() string { return "study_cards" }
