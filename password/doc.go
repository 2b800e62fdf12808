// Package password hashes and verifies primary-login passwords with argon2id.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.NeedsUpgrade] reports hashes produced with weaker parameters so the credential
// validator can rehash on the next successful login. [Argon2.VerifyDummy] spends the same
// work for unknown accounts.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive hashes.
//   - Import any other goRenew package.
//   - Log plaintext passwords.
package password
