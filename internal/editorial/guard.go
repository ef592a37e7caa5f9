package editorial

import "context"

type contextKey string

const suppressExportKey contextKey = "suppress-export"

// WithoutExport marks ctx so saves made with it never schedule an export.
// Bookkeeping writes performed by the exporter and the synchronizer use it.
func WithoutExport(ctx context.Context) context.Context {
	return context.WithValue(ctx, suppressExportKey, true)
}

// ExportSuppressed reports whether ctx was marked by WithoutExport.
func ExportSuppressed(ctx context.Context) bool {
	v, _ := ctx.Value(suppressExportKey).(bool)
	return v
}
