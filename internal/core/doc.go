// Package core provides the business logic for bulk record imports.
//
// This package is the heart of the importer, containing all domain logic
// independent of any UI or transport layer. It can be used by web handlers,
// CLI tools, or tests without modification.
//
// # Pipeline
//
// An import runs once per [Session], strictly forward:
//
//  1. [Parse] turns an uploaded CSV or XLSX file into headers plus raw rows.
//  2. [SuggestMappings] proposes a target field (or "ignore") for every header.
//  3. The [MappingTable] accepts user corrections until the required fields
//     of the entity schema are covered.
//  4. [ValidateRows] converts raw rows into typed [Record] values, excluding
//     rows that miss a required field and flagging malformed optional fields.
//  5. [Commit] submits valid rows to an [EntityCreator] in fixed-size batches.
//     A failing row never aborts its batch or the batches after it.
//
// # Entity Schemas
//
// Schemas are registered at init time using [Register]. Each [Schema] lists
// its target fields, which of them are required, and the header synonyms used
// for auto-mapping:
//
//	core.Register(core.Schema{
//	    Entity: "students",
//	    Fields: []core.FieldSpec{
//	        {Name: "first_name", Label: "First name", Required: true,
//	            Synonyms: []string{"fname", "givenname"}},
//	        {Name: "date_of_birth", Label: "Date of birth", Kind: core.KindDate,
//	            Synonyms: []string{"dob", "birthdate"}},
//	    },
//	})
//
// # Hosting Sessions
//
// [Service] hosts many sessions at once (one per open import flow), runs the
// commit step in the background, bounds concurrent commits with an
// [ImportLimiter] and broadcasts [CommitProgress] to subscribers.
//
// # Error Handling
//
// Per-row problems are collected, never returned: [ValidationError] during
// validation and [CommitError] during commit. Only file-level problems
// ([ParseError], [LimitError]) and illegal step transitions are returned as
// errors. Technical errors are mapped to user-friendly messages using
// [MapError].
package core
