// Package contact provides the domain types for identity reconciliation.
//
// This package contains type definitions and the storage contract only. All
// other internal packages import contact; contact imports nothing internal.
//
// Key design constraints:
//   - A contact is either a primary (LinkedID == nil) or a secondary that
//     points directly at a primary. Chains of secondaries never exist.
//   - Ordering is always (CreatedAt ASC, ID ASC). ID is the tie-break.
//   - Rows are never physically removed; DeletedAt marks a soft delete.
//   - All JSON tags use the camelCase names of the public API.
package contact
