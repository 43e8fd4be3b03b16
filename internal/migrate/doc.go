// Package migrate moves the legacy document database into the local SQLite
// store. One run drains every entity kind in dependency order, materializes
// the textbook/passage-set associations, and reconciles record counts before
// declaring success. A run that fails after writes began restores the
// pre-migration snapshot, so the target is never left half-migrated.
package migrate
