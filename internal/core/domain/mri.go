package domain

import "time"

// MRISequence is one uploaded DICOM series. Name is unique within a
// patient; FolderPath points at the directory holding the slice files.
type MRISequence struct {
	ID         int64
	PatientID  int64
	Name       string
	FolderPath string
	CreatedAt  time.Time
}

// PredRecord is one stored prediction result for a sequence.
type PredRecord struct {
	ID         int64
	SequenceID int64
	ResultPath string
	PredTime   time.Time
}
