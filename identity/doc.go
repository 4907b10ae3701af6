/*
Package identity resolves DIDs to DID documents and decodes the key material they declare.

Several [Resolver] implementations are provided:

  - [LedgerResolver] asks a ledger node over JSON-RPC (eg, did:iota)
  - [HTTPResolver] speaks the universal-resolver HTTP binding
  - [KeyResolver] expands did:key identifiers locally, without any network I/O
  - [MultiResolver] routes by DID method to any of the above

Documents are never cached by this package: key rotation on the ledger must take effect for the
very next verification.
*/
package identity
