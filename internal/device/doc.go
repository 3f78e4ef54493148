// Package device provides the device directory for AquaSense Core.
//
// A device record represents one provisioned sensor node: its stable
// external identity (device_id), display name, lifecycle status, and the
// salted hash of its connect credential. The package exposes:
//
//   - Repository: SQLite-backed CRUD over device records with pagination
//   - Directory: the credential check consulted by the session broker at
//     connect time (the broker's sole authentication gate)
//
// Credentials are a key/salt pair generated at provisioning time. Only the
// salted SHA-256 hash of the key is stored; the clear key is returned once
// from Provision and cannot be recovered afterwards.
//
// Usage:
//
//	repo := device.NewSQLiteRepository(db)
//	dir := device.NewDirectory(repo, logger)
//
//	dev, key, err := device.Provision("pond-unit-3", "Pond unit 3")
//	// hand key to the node installer, then repo.Create(ctx, dev)
//
//	ok, err := dir.Authorize(ctx, "pond-unit-3", key, dev.KeySalt)
package device
