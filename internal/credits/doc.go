// Package credits holds the two-bucket credit ledger and the entitlement
// rules derived from it.
//
// An account carries a monthly bucket, reset on every paid billing cycle, and
// a purchased bucket that expires twelve months after the most recent
// purchase. Expiry is lazy: the stored purchased balance is left untouched and
// simply ignored once the expiry has passed, until the next grant rewrites it.
//
// Every function here is pure over *models.Account. Persistence adapters call
// them inside their transaction callbacks so the read-modify-write happens
// against a fresh snapshot.
package credits
