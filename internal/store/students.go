package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/a7mdelbanna/classboom/internal/core"
	"github.com/a7mdelbanna/classboom/internal/core/schemas"
)

const createStudentsTable = `
CREATE TABLE IF NOT EXISTS students (
    id                      UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    institution_id          UUID NOT NULL,
    first_name              TEXT NOT NULL,
    last_name               TEXT NOT NULL,
    email                   TEXT,
    phone                   TEXT,
    date_of_birth           DATE,
    gender                  TEXT,
    grade_level             TEXT,
    address                 TEXT,
    city                    TEXT,
    country                 TEXT,
    parent_name             TEXT,
    parent_email            TEXT,
    parent_phone            TEXT,
    emergency_contact_name  TEXT,
    emergency_contact_phone TEXT,
    allergies               TEXT[] NOT NULL DEFAULT '{}',
    medications             TEXT[] NOT NULL DEFAULT '{}',
    medical_notes           TEXT,
    notes                   TEXT,
    created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_students_institution ON students (institution_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_students_institution_email
    ON students (institution_id, lower(email)) WHERE email IS NOT NULL;
`

const insertStudent = `
INSERT INTO students (
    institution_id, first_name, last_name, email, phone, date_of_birth, gender,
    grade_level, address, city, country, parent_name, parent_email, parent_phone,
    emergency_contact_name, emergency_contact_phone, allergies, medications,
    medical_notes, notes
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20
)
RETURNING id`

// EnsureSchema creates the students table and its indexes if missing.
func EnsureSchema(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, createStudentsTable); err != nil {
		return fmt.Errorf("create students table: %w", err)
	}
	return nil
}

// InsertStudentParams holds one student row.
type InsertStudentParams struct {
	InstitutionID         pgtype.UUID
	FirstName             pgtype.Text
	LastName              pgtype.Text
	Email                 pgtype.Text
	Phone                 pgtype.Text
	DateOfBirth           pgtype.Date
	Gender                pgtype.Text
	GradeLevel            pgtype.Text
	Address               pgtype.Text
	City                  pgtype.Text
	Country               pgtype.Text
	ParentName            pgtype.Text
	ParentEmail           pgtype.Text
	ParentPhone           pgtype.Text
	EmergencyContactName  pgtype.Text
	EmergencyContactPhone pgtype.Text
	Allergies             []string
	Medications           []string
	MedicalNotes          pgtype.Text
	Notes                 pgtype.Text
}

// BuildStudentParams converts a validated student record into insert parameters.
func BuildStudentParams(institutionID uuid.UUID, rec core.Record) InsertStudentParams {
	return InsertStudentParams{
		InstitutionID:         ToPgUUID(institutionID),
		FirstName:             ToPgText(rec, schemas.FirstName),
		LastName:              ToPgText(rec, schemas.LastName),
		Email:                 ToPgText(rec, schemas.Email),
		Phone:                 ToPgText(rec, schemas.Phone),
		DateOfBirth:           ToPgDate(rec, schemas.DateOfBirth),
		Gender:                ToPgText(rec, schemas.Gender),
		GradeLevel:            ToPgText(rec, schemas.GradeLevel),
		Address:               ToPgText(rec, schemas.Address),
		City:                  ToPgText(rec, schemas.City),
		Country:               ToPgText(rec, schemas.Country),
		ParentName:            ToPgText(rec, schemas.ParentName),
		ParentEmail:           ToPgText(rec, schemas.ParentEmail),
		ParentPhone:           ToPgText(rec, schemas.ParentPhone),
		EmergencyContactName:  ToPgText(rec, schemas.EmergencyContactName),
		EmergencyContactPhone: ToPgText(rec, schemas.EmergencyContactPhone),
		Allergies:             ToPgTextArray(rec, schemas.Allergies),
		Medications:           ToPgTextArray(rec, schemas.Medications),
		MedicalNotes:          ToPgText(rec, schemas.MedicalNotes),
		Notes:                 ToPgText(rec, schemas.Notes),
	}
}

// StudentStore writes students.
type StudentStore struct {
	db DBTX
}

// NewStudentStore creates a StudentStore.
func NewStudentStore(db DBTX) *StudentStore {
	return &StudentStore{db: db}
}

// InsertStudent inserts one student and returns its generated ID.
func (s *StudentStore) InsertStudent(ctx context.Context, arg InsertStudentParams) (uuid.UUID, error) {
	var id pgtype.UUID
	err := s.db.QueryRow(ctx, insertStudent,
		arg.InstitutionID,
		arg.FirstName,
		arg.LastName,
		arg.Email,
		arg.Phone,
		arg.DateOfBirth,
		arg.Gender,
		arg.GradeLevel,
		arg.Address,
		arg.City,
		arg.Country,
		arg.ParentName,
		arg.ParentEmail,
		arg.ParentPhone,
		arg.EmergencyContactName,
		arg.EmergencyContactPhone,
		arg.Allergies,
		arg.Medications,
		arg.MedicalNotes,
		arg.Notes,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert student: %w", describeError(err))
	}
	return uuid.UUID(id.Bytes), nil
}

// ForInstitution returns an EntityCreator that inserts students owned by institutionID.
func (s *StudentStore) ForInstitution(institutionID uuid.UUID) core.EntityCreator {
	return core.CreatorFunc(func(ctx context.Context, rec core.Record) (core.Entity, error) {
		id, err := s.InsertStudent(ctx, BuildStudentParams(institutionID, rec))
		if err != nil {
			return core.Entity{}, err
		}
		return core.Entity{ID: id.String()}, nil
	})
}

// Creators maps entity keys to their institution-scoped creators.
type Creators struct {
	Students *StudentStore
}

// NewCreators builds the creators for every entity backed by db.
func NewCreators(db DBTX) *Creators {
	return &Creators{Students: NewStudentStore(db)}
}

// For returns the creator that imports entity records into institutionID.
func (c *Creators) For(entity string, institutionID uuid.UUID) (core.EntityCreator, error) {
	switch entity {
	case schemas.Students:
		return c.Students.ForInstitution(institutionID), nil
	}
	return nil, fmt.Errorf("%w: %s", core.ErrUnknownEntity, entity)
}
