// Package models contains the GORM persistence models for credentials,
// ingestion runs, order lines and error reports.
//
// Domain types in internal/domain/integration carry no GORM tags; each model
// here has a From*/To* pair that converts between the two. Table layout is
// owned by the SQL files under migrations/, the gorm tags only describe it.
package models
