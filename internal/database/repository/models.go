package repository

import "time"

// Roster is one target collection of player entries.
type Roster struct {
	ID         string
	Name       string
	Categories string // eligibility criteria JSON, parsed by the service layer
	CreatedAt  time.Time
}

// Player is a persisted roster entry. When loaded through MatchFields only
// the narrow matching subset (id, name, dob, rating, reg_no, start_no, rank)
// is populated.
type Player struct {
	ID         string
	RosterID   string
	Rank       int
	Name       string
	FullName   *string
	Rating     *int
	Gender     *string
	RegNo      *string
	StartNo    *int
	State      *string
	City       *string
	Club       *string
	Federation *string
	Disability *string
	Notes      *string
	GroupLabel *string
	TypeLabel  *string

	DOB         *time.Time
	DOBOriginal *string

	RatingZero bool
	Unrated    bool

	RankAutofilled     bool
	DOBInferred        bool
	StateAutoExtracted bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RowErrorInfo is one failed row from an atomic replace: the position of the
// offending player in the submitted batch plus a reason a human can act on.
// Callers translate positions back to source row indexes.
type RowErrorInfo struct {
	RowIndex int
	Reason   string
}

// ImportAudit is the append-only record persisted once per reconciliation run.
type ImportAudit struct {
	ID           string
	RosterID     string
	Mode         string
	TotalRows    int
	AcceptedRows int
	SkippedRows  int
	FailedRows   int
	TopReasons   string // JSON array
	SampleErrors string // JSON array
	DurationMS   int64
	MergePolicy  string // JSON snapshot
	CreatedAt    time.Time
}
