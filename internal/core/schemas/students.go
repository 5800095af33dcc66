package schemas

import "github.com/a7mdelbanna/classboom/internal/core"

// Students is the entity key of the student schema.
const Students = "students"

// Student fields.
const (
	FirstName             core.Field = "first_name"
	LastName              core.Field = "last_name"
	Email                 core.Field = "email"
	Phone                 core.Field = "phone"
	DateOfBirth           core.Field = "date_of_birth"
	Gender                core.Field = "gender"
	GradeLevel            core.Field = "grade_level"
	Address               core.Field = "address"
	City                  core.Field = "city"
	Country               core.Field = "country"
	ParentName            core.Field = "parent_name"
	ParentEmail           core.Field = "parent_email"
	ParentPhone           core.Field = "parent_phone"
	EmergencyContactName  core.Field = "emergency_contact_name"
	EmergencyContactPhone core.Field = "emergency_contact_phone"
	Allergies             core.Field = "allergies"
	Medications           core.Field = "medications"
	MedicalNotes          core.Field = "medical_notes"
	Notes                 core.Field = "notes"
)

func init() {
	core.Register(StudentSchema())
}

// StudentSchema returns the student import schema.
func StudentSchema() core.Schema {
	return core.Schema{
		Entity: Students,
		Label:  "Students",
		Fields: []core.FieldSpec{
			{
				Name: FirstName, Label: "First name", Required: true,
				Synonyms: []string{"fname", "first", "given name", "forename", "student first name"},
				Examples: [2]string{"Jane", "Omar"},
			},
			{
				Name: LastName, Label: "Last name", Required: true,
				Synonyms: []string{"lname", "last", "surname", "family name", "student last name"},
				Examples: [2]string{"Smith", "Hassan"},
			},
			{
				Name: Email, Label: "Email", Kind: core.KindEmail,
				Synonyms:   []string{"e-mail", "email address", "mail", "student email"},
				Examples:   [2]string{"jane.smith@example.com", "omar.hassan@example.com"},
				Normalizer: NormalizeEmail,
			},
			{
				Name: Phone, Label: "Phone",
				Synonyms:   []string{"phone number", "mobile", "mobile number", "cell", "cell phone", "telephone", "tel"},
				Examples:   [2]string{"+1 555 0100", "+20 100 555 0101"},
				Normalizer: NormalizePhone,
			},
			{
				Name: DateOfBirth, Label: "Date of birth", Kind: core.KindDate,
				Synonyms: []string{"dob", "birth date", "birthdate", "birthday", "date of birth (yyyy-mm-dd)"},
				Examples: [2]string{"2012-04-15", "2011-11-02"},
			},
			{
				Name: Gender, Label: "Gender",
				Synonyms:   []string{"sex"},
				Examples:   [2]string{"female", "male"},
				Normalizer: NormalizeGender,
			},
			{
				Name: GradeLevel, Label: "Grade level",
				Synonyms: []string{"grade", "level", "class", "year group"},
				Examples: [2]string{"Grade 6", "Grade 7"},
			},
			{
				Name: Address, Label: "Address",
				Synonyms: []string{"street", "street address", "home address", "address line 1"},
				Examples: [2]string{"12 Park Lane", "5 Nile Street"},
			},
			{
				Name: City, Label: "City",
				Synonyms: []string{"town"},
				Examples: [2]string{"Springfield", "Cairo"},
			},
			{
				Name: Country, Label: "Country",
				Synonyms: []string{"country of residence"},
				Examples: [2]string{"USA", "Egypt"},
			},
			{
				Name: ParentName, Label: "Parent name",
				Synonyms: []string{"parent", "guardian", "guardian name", "parent/guardian", "parent guardian name"},
				Examples: [2]string{"Mary Smith", "Khaled Hassan"},
			},
			{
				Name: ParentEmail, Label: "Parent email", Kind: core.KindEmail,
				Synonyms:   []string{"guardian email", "parent e-mail", "parent email address"},
				Examples:   [2]string{"mary.smith@example.com", "khaled.hassan@example.com"},
				Normalizer: NormalizeEmail,
			},
			{
				Name: ParentPhone, Label: "Parent phone",
				Synonyms:   []string{"guardian phone", "parent mobile", "parent phone number"},
				Examples:   [2]string{"+1 555 0102", "+20 100 555 0103"},
				Normalizer: NormalizePhone,
			},
			{
				Name: EmergencyContactName, Label: "Emergency contact name",
				Synonyms: []string{"emergency contact", "emergency name"},
				Examples: [2]string{"John Smith", "Mona Hassan"},
			},
			{
				Name: EmergencyContactPhone, Label: "Emergency contact phone",
				Synonyms:   []string{"emergency phone", "emergency number"},
				Examples:   [2]string{"+1 555 0104", "+20 100 555 0105"},
				Normalizer: NormalizePhone,
			},
			{
				Name: Allergies, Label: "Allergies", Kind: core.KindList,
				Synonyms: []string{"allergy", "known allergies"},
				Examples: [2]string{"peanuts, penicillin", ""},
			},
			{
				Name: Medications, Label: "Medications", Kind: core.KindList,
				Synonyms: []string{"medication", "medicine", "medicines"},
				Examples: [2]string{"", "inhaler"},
			},
			{
				Name: MedicalNotes, Label: "Medical notes",
				Synonyms: []string{"medical conditions", "conditions", "health notes"},
				Examples: [2]string{"", "Mild asthma"},
			},
			{
				Name: Notes, Label: "Notes",
				Synonyms: []string{"comments", "remarks"},
				Examples: [2]string{"Joined mid-year", ""},
			},
		},
	}
}
