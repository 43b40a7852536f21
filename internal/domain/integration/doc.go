// Package integration contains the marketplace ingestion bounded context.
// This context pulls orders from external marketplaces and turns them into
// canonical, append-only order lines.
//
// Key concepts:
//   - Credential: per-shop OAuth or license-key credential and its renewal state machine
//   - FieldGroup / FieldMap: declarative per-marketplace field schema and typed decoded values
//   - OrderEnvelope: one decoded order at search or detail level
//   - OrderLine: canonical, storage-ready order line
//   - IngestionRun: bookkeeping record of one run for one shop
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package integration
