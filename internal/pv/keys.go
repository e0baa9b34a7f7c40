package pv

import "fmt"

// Canonical object-store key layout, per account namespace:
//
//	photos/{accountID}/{contentHash}.dat
//	thumbnails/{accountID}/{contentHash}.dat
//	metadata/{accountID}/{contentHash}.meta
//	catalog/{accountID}/pointer
//	catalog/{accountID}/snapshots/{snapshotHash}.snap
//	identities/{provider}/{externalID}
//	deletions/{accountID}
//
// Keys are deterministic functions of (accountID, contentHash), which is what
// makes re-uploads naturally idempotent: writing the same content twice
// targets the same key.

func PhotoKey(accountID, contentHash string) string {
	return fmt.Sprintf("photos/%s/%s.dat", accountID, contentHash)
}

func PhotoPrefix(accountID string) string {
	return fmt.Sprintf("photos/%s/", accountID)
}

func ThumbnailKey(accountID, contentHash string) string {
	return fmt.Sprintf("thumbnails/%s/%s.dat", accountID, contentHash)
}

func ThumbnailPrefix(accountID string) string {
	return fmt.Sprintf("thumbnails/%s/", accountID)
}

func MetadataKey(accountID, contentHash string) string {
	return fmt.Sprintf("metadata/%s/%s.meta", accountID, contentHash)
}

func MetadataPrefix(accountID string) string {
	return fmt.Sprintf("metadata/%s/", accountID)
}

func CatalogPointerKey(accountID string) string {
	return fmt.Sprintf("catalog/%s/pointer", accountID)
}

func CatalogSnapshotKey(accountID, snapshotHash string) string {
	return fmt.Sprintf("catalog/%s/snapshots/%s.snap", accountID, snapshotHash)
}

func CatalogPrefix(accountID string) string {
	return fmt.Sprintf("catalog/%s/", accountID)
}

func IdentityKey(provider, externalID string) string {
	return fmt.Sprintf("identities/%s/%s", provider, externalID)
}

func IdentityPrefix() string {
	return "identities/"
}

func DeletionKey(accountID string) string {
	return fmt.Sprintf("deletions/%s", accountID)
}

func DeletionPrefix() string {
	return "deletions/"
}
