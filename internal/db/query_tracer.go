package db

import (
	"context"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5"
)

type querySpanContextKey struct{}

// queryTracer turns each statement into a db.query child span. Statements
// issued outside a traced request are not recorded.
type queryTracer struct {
	maxLen int
}

func newQueryTracer() *queryTracer {
	return &queryTracer{maxLen: 512}
}

func (t *queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	if sentry.SpanFromContext(ctx) == nil {
		return ctx
	}

	query := normalizeQuery(data.SQL, t.maxLen)
	span := sentry.StartSpan(
		ctx,
		"db.query",
		sentry.WithDescription(query),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	span.SetData("db.system", "postgresql")
	span.SetData("db.args", len(data.Args))
	if operation := queryOperation(query); operation != "" {
		span.SetData("db.operation", operation)
	}

	return context.WithValue(span.Context(), querySpanContextKey{}, span)
}

func (t *queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	span, _ := ctx.Value(querySpanContextKey{}).(*sentry.Span)
	if span == nil {
		return
	}

	if data.Err != nil && data.Err != pgx.ErrNoRows {
		span.Status = sentry.SpanStatusInternalError
		span.SetData("db.error", data.Err.Error())
	} else {
		span.Status = sentry.SpanStatusOK
	}
	if rows := data.CommandTag.RowsAffected(); rows >= 0 {
		span.SetData("db.rows_affected", rows)
	}
	span.Finish()
}

// normalizeQuery collapses whitespace so multi-line statements read as one
// line in traces.
func normalizeQuery(query string, maxLen int) string {
	normalized := strings.Join(strings.Fields(query), " ")
	if normalized == "" {
		return "sql.query"
	}
	if maxLen > 0 && len(normalized) > maxLen {
		return normalized[:maxLen]
	}
	return normalized
}

// queryOperation returns the leading verb, skipping a WITH prefix.
func queryOperation(query string) string {
	parts := strings.Fields(query)
	if len(parts) == 0 {
		return ""
	}
	verb := strings.ToUpper(parts[0])
	if verb != "WITH" {
		return verb
	}
	for _, part := range parts[1:] {
		switch upper := strings.ToUpper(part); upper {
		case "SELECT", "INSERT", "UPDATE", "DELETE":
			return upper
		}
	}
	return verb
}
