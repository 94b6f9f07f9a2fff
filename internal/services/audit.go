package services

import (
	"time"

	"github.com/rs/zerolog/log"
)

// AuditLogger emits one structured event per ledger posting so the journal
// has an out-of-band trail independent of the database.
type AuditLogger struct{}

func NewAuditLogger() *AuditLogger {
	return &AuditLogger{}
}

func (a *AuditLogger) LogPosting(companyID, transactionID int64, source, description string, debits int64) {
	log.Info().
		Str("audit", "POSTING").
		Time("timestamp", time.Now()).
		Int64("companyId", companyID).
		Int64("transactionId", transactionID).
		Str("source", source).
		Str("description", description).
		Int64("debits", debits).
		Msg("ledger posting committed")
}

func (a *AuditLogger) LogError(companyID int64, source string, err error) {
	log.Error().
		Str("audit", "ERROR").
		Time("timestamp", time.Now()).
		Int64("companyId", companyID).
		Str("source", source).
		Err(err).
		Msg("ledger posting failed")
}
