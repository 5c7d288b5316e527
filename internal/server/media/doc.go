// Package media moves profile images between local staging and object
// storage.
//
// Intake writes uploads to a StagedFile. The Coordinator uploads staged
// files, swaps an account's asset for a new one and deletes assets that
// are no longer referenced. A deletion that fails stays in the
// DeletionQueue and the Janitor retries it later, so an old asset is never
// deleted before its replacement is attached and is never leaked either.
package media
