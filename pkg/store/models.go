package store

import (
	"time"

	"gorm.io/datatypes"

	"github.com/IBM/arcade/pkg/oem"
)

// Record kinds written to the access log.
const (
	KindEphemeris  = "ephemeris"
	KindCompliance = "compliance"
)

// Relation names understood by Connect and Traverse.
const (
	RelationRecords = "Records"
	RelationGrants  = "Grants"
)

// Bucket is an archive container.
type Bucket struct {
	ID        uint      `gorm:"primaryKey;column:id"`
	Name      string    `gorm:"column:name;size:255;uniqueIndex;not null"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (Bucket) TableName() string { return "buckets" }

// Artifact is one named archive object. Imported flips to true once, after
// the object's contents were parsed and persisted without error.
type Artifact struct {
	ID         uint       `gorm:"primaryKey;column:id"`
	BucketID   uint       `gorm:"column:bucket_id;uniqueIndex:idx_artifact_bucket_name,priority:1;not null"`
	Name       string     `gorm:"column:name;size:512;uniqueIndex:idx_artifact_bucket_name,priority:2;not null"`
	Imported   bool       `gorm:"column:imported;not null;default:false"`
	ImportedAt *time.Time `gorm:"column:imported_at"`
	CreatedAt  time.Time  `gorm:"column:created_at"`

	Bucket *Bucket `gorm:"foreignKey:BucketID"`
}

func (Artifact) TableName() string { return "artifacts" }

// DataSource is a provenance boundary, typically one ingestion feed.
type DataSource struct {
	ID        uint      `gorm:"primaryKey;column:id"`
	Name      string    `gorm:"column:name;size:255;uniqueIndex;not null"`
	Public    bool      `gorm:"column:is_public;not null;default:false"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (DataSource) TableName() string { return "data_sources" }

// TrackedObject is an anthropogenic space object, unique by TrackingID.
type TrackedObject struct {
	ID                      uint      `gorm:"primaryKey;column:id"`
	TrackingID              string    `gorm:"column:tracking_id;size:64;uniqueIndex;not null"`
	CatalogID               string    `gorm:"column:catalog_id;size:64"`
	InternationalDesignator string    `gorm:"column:international_designator;size:64"`
	Name                    string    `gorm:"column:name;size:255"`
	CreatedAt               time.Time `gorm:"column:created_at"`
	UpdatedAt               time.Time `gorm:"column:updated_at"`

	Records    []EphemerisRecord `gorm:"foreignKey:TrackedObjectID"`
	Compliance *ComplianceRecord `gorm:"foreignKey:TrackedObjectID"`
}

func (TrackedObject) TableName() string { return "tracked_objects" }

// EphemerisRecord is a persisted ephemeris. The unique index on
// (tracked_object_id, data_source_id) keeps at most one record per object and
// source, which supersession relies on.
type EphemerisRecord struct {
	ID              uint `gorm:"primaryKey;column:id"`
	TrackedObjectID uint `gorm:"column:tracked_object_id;uniqueIndex:idx_record_object_source,priority:1;not null"`
	DataSourceID    uint `gorm:"column:data_source_id;uniqueIndex:idx_record_object_source,priority:2;not null"`
	ArtifactID      uint `gorm:"column:artifact_id;index;not null"`

	CCSDSOEMVersion string `gorm:"column:ccsds_oem_vers;size:16"`
	CreationDate    string `gorm:"column:creation_date;size:32"`
	Originator      string `gorm:"column:originator;size:255"`
	ObjectName      string `gorm:"column:object_name;size:255"`
	ObjectID        string `gorm:"column:object_id;size:64"`
	CenterName      string `gorm:"column:center_name;size:64"`
	RefFrame        string `gorm:"column:ref_frame;size:16"`
	TimeSystem      string `gorm:"column:time_system;size:16"`
	StartTime       string `gorm:"column:start_time;size:32;not null"`
	StopTime        string `gorm:"column:stop_time;size:32;index;not null"`

	Lines     datatypes.JSONSlice[oem.EphemerisLine] `gorm:"column:ephemeris_lines"`
	CreatedAt time.Time                              `gorm:"column:created_at"`

	TrackedObject *TrackedObject `gorm:"foreignKey:TrackedObjectID"`
	DataSource    *DataSource    `gorm:"foreignKey:DataSourceID"`
	Artifact      *Artifact      `gorm:"foreignKey:ArtifactID"`
}

func (EphemerisRecord) TableName() string { return "ephemeris_records" }

// NewEphemerisRecord copies a parsed record into a persistable row.
func NewEphemerisRecord(rec *oem.Record) *EphemerisRecord {
	return &EphemerisRecord{
		CCSDSOEMVersion: rec.CCSDSOEMVersion,
		CreationDate:    rec.CreationDate,
		Originator:      rec.Originator,
		ObjectName:      rec.ObjectName,
		ObjectID:        rec.ObjectID,
		CenterName:      rec.CenterName,
		RefFrame:        rec.RefFrame,
		TimeSystem:      rec.TimeSystem,
		StartTime:       rec.StartTime,
		StopTime:        rec.StopTime,
		Lines:           datatypes.JSONSlice[oem.EphemerisLine](rec.Lines),
	}
}

// OEM returns the canonical record view of the row.
func (r *EphemerisRecord) OEM() *oem.Record {
	return &oem.Record{
		CCSDSOEMVersion: r.CCSDSOEMVersion,
		CreationDate:    r.CreationDate,
		Originator:      r.Originator,
		ObjectName:      r.ObjectName,
		ObjectID:        r.ObjectID,
		CenterName:      r.CenterName,
		RefFrame:        r.RefFrame,
		TimeSystem:      r.TimeSystem,
		StartTime:       r.StartTime,
		StopTime:        r.StopTime,
		Lines:           []oem.EphemerisLine(r.Lines),
	}
}

func (r *EphemerisRecord) RecordKind() string { return KindEphemeris }
func (r *EphemerisRecord) RecordID() uint { return r.ID }
func (r *EphemerisRecord) ProvenanceSourceID() uint { return r.DataSourceID }

// ComplianceRecord states whether a tracked object complies with
// registration requirements, according to one data source.
type ComplianceRecord struct {
	ID              uint      `gorm:"primaryKey;column:id"`
	TrackedObjectID uint      `gorm:"column:tracked_object_id;uniqueIndex;not null"`
	DataSourceID    uint      `gorm:"column:data_source_id;index;not null"`
	IsCompliant     bool      `gorm:"column:is_compliant;not null"`
	CreatedAt       time.Time `gorm:"column:created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at"`

	DataSource *DataSource `gorm:"foreignKey:DataSourceID"`
}

func (ComplianceRecord) TableName() string { return "compliance_records" }

func (r *ComplianceRecord) RecordKind() string { return KindCompliance }
func (r *ComplianceRecord) RecordID() uint { return r.ID }
func (r *ComplianceRecord) ProvenanceSourceID() uint { return r.DataSourceID }

// Principal is a reader identity. Grants lists the data sources whose records
// it may read.
type Principal struct {
	ID        uint      `gorm:"primaryKey;column:id"`
	Name      string    `gorm:"column:name;size:255;uniqueIndex;not null"`
	Admin     bool      `gorm:"column:admin;not null;default:false"`
	CreatedAt time.Time `gorm:"column:created_at"`

	Grants []DataSource `gorm:"many2many:principal_grants;"`
}

func (Principal) TableName() string { return "principals" }

// AccessEvent is an append-only record of a successful read.
type AccessEvent struct {
	ID          uint      `gorm:"primaryKey;column:id"`
	PrincipalID uint      `gorm:"column:principal_id;index;not null"`
	RecordKind  string    `gorm:"column:record_kind;size:32;index:idx_access_record,priority:1;not null"`
	RecordID    uint      `gorm:"column:record_id;index:idx_access_record,priority:2;not null"`
	Endpoint    string    `gorm:"column:endpoint;size:255;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;index"`

	Principal *Principal `gorm:"foreignKey:PrincipalID"`
}

func (AccessEvent) TableName() string { return "access_events" }

// Models lists every table the store manages, in migration order.
func Models() []any {
	return []any{
		&Bucket{},
		&Artifact{},
		&DataSource{},
		&TrackedObject{},
		&EphemerisRecord{},
		&ComplianceRecord{},
		&Principal{},
		&AccessEvent{},
	}
}
