package model

import (
	"database/sql"
	"time"
)

// Pulsar is a pulsar known to the system. Name is the preferred display
// name and also appears in the alias table.
type Pulsar struct {
	ID   int64
	Name string
}

// PulsarAlias maps an alternative name to a pulsar. Aliases are unique
// across all pulsars.
type PulsarAlias struct {
	ID       int64
	PulsarID int64
	Alias    string
}

// Telescope is an observing site with its ITRF coordinates.
type Telescope struct {
	ID     int64
	Name   string
	Abbrev string
	Code   string // one- or two-character site code used in TOA lines
	ITRFX  float64
	ITRFY  float64
	ITRFZ  float64
}

// TelescopeAlias maps an alternative name to a telescope.
type TelescopeAlias struct {
	ID          int64
	TelescopeID int64
	Alias       string
}

// ObsSystem is a (telescope, frontend, backend, clock) tuple. Both the
// name and the tuple are unique.
type ObsSystem struct {
	ID          int64
	Name        string
	TelescopeID int64
	Frontend    string
	Backend     string
	Clock       string
	Band        string
}

// User owns artifact writes. PasswordHash is a bcrypt hash.
type User struct {
	ID           int64
	Username     string
	RealName     string
	Email        string
	PasswordHash string
	Active       bool
	Admin        bool
}

// Version is a snapshot of the code versions in play during a process
// run. The triple is unique.
type Version struct {
	ID             int64
	PipelineHash   string
	ToolHash       string
	Tempo2Revision string
}

// Rawfile is a content-addressed archived observation file.
type Rawfile struct {
	ID          int64
	MD5         string
	Size        int64
	Path        string
	AddedAt     time.Time
	UserID      int64
	PulsarID    int64
	ObsSystemID int64

	// Extracted header values. Null when the header reports them undefined.
	NBin   sql.NullInt64
	NChan  sql.NullInt64
	NPol   sql.NullInt64
	NSub   sql.NullInt64
	Freq   sql.NullFloat64
	BW     sql.NullFloat64
	DM     sql.NullFloat64
	RM     sql.NullFloat64
	Length sql.NullFloat64
	MJD    sql.NullFloat64

	// ReplacementID is set on reads when a newer rawfile supersedes this one.
	ReplacementID sql.NullInt64
}

// Parfile is a content-addressed archived ephemeris.
type Parfile struct {
	ID       int64
	MD5      string
	Path     string
	AddedAt  time.Time
	UserID   int64
	PulsarID int64
}

// ParfileParam is one key/value pair parsed out of a parfile.
type ParfileParam struct {
	ParfileID int64
	Name      string
	Value     string
}

// Template is a content-addressed archived pulse-profile template.
type Template struct {
	ID          int64
	MD5         string
	Path        string
	AddedAt     time.Time
	UserID      int64
	PulsarID    int64
	ObsSystemID int64
	NBin        sql.NullInt64
	Comments    string
}

// Process records one execution of the processing engine.
type Process struct {
	ID          int64
	VersionID   int64
	RawfileID   int64
	ParfileID   sql.NullInt64 // null in "solve" mode
	TemplateID  int64
	UserID      int64
	AddedAt     time.Time
	Manipulator string
	ManipArgs   string
	NChan       int64
	NSub        int64
	FitMethod   string
}

// TOA is one time-of-arrival produced by a process.
type TOA struct {
	ID          int64
	ProcessID   int64
	TemplateID  int64
	RawfileID   int64
	PulsarID    int64
	ObsSystemID int64
	IMJD        int64
	FMJD        float64
	Freq        float64
	ErrorUS     float64
	BW          sql.NullFloat64
	Length      sql.NullFloat64
	NBin        sql.NullInt64
	GoF         sql.NullFloat64
}

// Timfile is a named bundle of TOAs.
type Timfile struct {
	ID        int64
	UserID    int64
	PulsarID  int64
	VersionID int64
	AddedAt   time.Time
	Comments  string
	InputArgs string
}

// Replacement records that one rawfile supersedes another. A rawfile
// appears at most once as obsolete.
type Replacement struct {
	ObsoleteID    int64
	ReplacementID int64
	UserID        int64
	AddedAt       time.Time
	Comments      string
}

// FloatDiagnostic is a named numeric diagnostic attached to a rawfile
// or a process. Unique by (owner, name).
type FloatDiagnostic struct {
	ID      int64
	OwnerID int64
	Name    string
	Value   float64
}

// PlotDiagnostic is a named archived diagnostic image attached to a
// rawfile, a process, or a TOA. Unique by (owner, name).
type PlotDiagnostic struct {
	ID       int64
	OwnerID  int64
	Name     string
	PlotPath string
}

// Curator grants curation rights for a pulsar. A null user means anyone
// may curate the pulsar.
type Curator struct {
	PulsarID int64
	UserID   sql.NullInt64
}
