package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldRecordID    = "record_id"
	FieldTemplateID  = "template_id"
	FieldRecordType  = "type"
	FieldCategory    = "category"
	FieldAmountCents = "amount_cents"
	FieldTargetDate  = "target_date"
	FieldYear        = "year"
	FieldMonth       = "month"
	FieldPolicy      = "policy"
	FieldMessageID   = "message_id"
	FieldDuration    = "duration_ms"
	FieldPath        = "path"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentStorage   = "storage"
	ComponentRecurring = "recurring"
	ComponentStats     = "stats"
	ComponentExport    = "export"
	ComponentSheets    = "sheets"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentCLI       = "cli"
)

// Operations defines standard operation names
const (
	OpCreate      = "create"
	OpRead        = "read"
	OpUpdate      = "update"
	OpDelete      = "delete"
	OpMaterialize = "materialize"
	OpSweep       = "sweep"
	OpExport      = "export"
	OpPublish     = "publish"
	OpConsume     = "consume"
	OpStartup     = "startup"
	OpShutdown    = "shutdown"
)

// LogFields builds a set of structured attributes.
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithError adds the error message, skipping nil errors.
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithRecord adds the identifying fields of a ledger record.
func (f LogFields) WithRecord(id int64, typ string, amountCents int64, category string) LogFields {
	if id != 0 {
		f[FieldRecordID] = id
	}
	f[FieldRecordType] = typ
	f[FieldAmountCents] = amountCents
	f[FieldCategory] = category
	return f
}

// WithTemplate adds a template id and, when set, the day being materialized.
func (f LogFields) WithTemplate(id int64, targetDate string) LogFields {
	f[FieldTemplateID] = id
	if targetDate != "" {
		f[FieldTargetDate] = targetDate
	}
	return f
}

// ToSlice flattens the fields into slog key/value arguments.
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
