// Package services contains the core business logic: normalising the
// raw highlight export into canonical records, orchestrating ingestion,
// and running retrieval-augmented queries. Services orchestrate calls
// to driven ports (adapters).
package services
