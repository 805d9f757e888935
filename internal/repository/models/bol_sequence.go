package models

// BolSequence allocates business BoL numbers, one counter per year. The
// row is locked FOR UPDATE during allocation; a number handed out for a
// failed activation is never reused, so gaps are expected.
type BolSequence struct {
	Year    int   `gorm:"column:year;primaryKey"`
	NextSeq int64 `gorm:"column:next_seq;not null;default:1"`
}
