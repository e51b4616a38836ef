package log

// Field names shared by every component.
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldQuery      = "query"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldUserAgent  = "user_agent"
	FieldSuccess    = "success"
	FieldError      = "error"
	FieldErrorType  = "error_type"
	FieldOperation  = "operation"

	FieldEndpoint  = "endpoint"
	FieldPrice     = "price"
	FieldLiters    = "liters"
	FieldKm        = "km"
	FieldShape     = "shape"
	FieldRecords   = "records"
	FieldItems     = "items"
	FieldEstimated = "estimated_dates"
	FieldSequence  = "seq"
	FieldState     = "state"
	FieldChart     = "chart"
	FieldBodyBytes = "body_bytes"
	FieldRecordID  = "record_id"
)

const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentWebhook   = "webhook"
	ComponentNormalize = "normalize"
	ComponentForm      = "form"
	ComponentAnalytics = "analytics"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentSheets    = "sheets"
	ComponentCache     = "cache"
	ComponentSecurity  = "security"
	ComponentRateLimit = "rate_limit"
	ComponentTrace     = "trace"
	ComponentBackend   = "backend"
	ComponentTemplate  = "template"
	ComponentExport    = "export"
	ComponentStub      = "stub"
)

const (
	OpSubmit    = "submit"
	OpFetch     = "fetch"
	OpList      = "list"
	OpAppend    = "append"
	OpRefresh   = "refresh"
	OpValidate  = "validate"
	OpNormalize = "normalize"
	OpRender    = "render"
	OpExport    = "export"
	OpShutdown  = "shutdown"
	OpStartup   = "startup"
)

const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeTimeout       = "timeout_error"
	ErrorTypeInternal      = "internal_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError adds the error text; nil errors are ignored.
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithFillUp adds the three measured values of a fill-up.
func (f LogFields) WithFillUp(price, liters, km float64) LogFields {
	f[FieldPrice] = price
	f[FieldLiters] = liters
	f[FieldKm] = km
	return f
}

func (f LogFields) WithHTTPRequest(method, path, query, userAgent string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	f[FieldUserAgent] = userAgent
	return f
}

func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice flattens the fields into slog key/value pairs.
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
