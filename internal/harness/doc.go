// Package harness runs contact reconciliation scenarios.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	steps:
//	  - identify: { email: a@x.com, phoneNumber: "123" }
//	    expect:
//	      primaryContactId: 1
//	      emails: [a@x.com]
//	      phoneNumbers: ["123"]
//	      secondaryContactIds: []
//	  - add: { email: b@x.com, linkedId: 1, linkPrecedence: secondary }
//	    expectId: 2
//	  - delete: 2
//	  - delete: 2
//	    expectError: NOT_FOUND
//	  - show: 1
//	assertions:
//	  - type: final_state
//	    id: 2
//	    expect: { linkedId: 1, deleted: true }
//	  - type: primary_count
//	    count: 1
//
// # Assertion Types
//
//   - final_state: Looks up a contact by id, deleted rows included, and
//     checks the listed fields (email, phoneNumber, linkedId, linkPrecedence,
//     deleted)
//   - contact_count: Number of live contacts
//   - primary_count: Number of live primaries
//
// # Deterministic Testing
//
// Every scenario runs against a fresh SQLite file with a deterministic clock,
// so ids, creation order and therefore merge outcomes are reproducible and
// can be compared against golden snapshots with RunWithGolden.
package harness
