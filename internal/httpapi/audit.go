package httpapi

import "context"

// AuditRecord collects the caller identity resolved by the request pipeline
// so outer middleware can include it in audit logs after the handler returns.
type AuditRecord struct {
	ClientID string
}

type auditRecordKey struct{}

// ContextWithAuditRecord attaches a fresh AuditRecord to the context and
// returns it alongside the derived context.
func ContextWithAuditRecord(ctx context.Context) (context.Context, *AuditRecord) {
	record := &AuditRecord{}
	return context.WithValue(ctx, auditRecordKey{}, record), record
}

func auditRecordFromContext(ctx context.Context) *AuditRecord {
	if ctx == nil {
		return nil
	}
	record, _ := ctx.Value(auditRecordKey{}).(*AuditRecord)
	return record
}
