package handler

type ContextKey string

var (
	RoleCtxKey     ContextKey = "role"
	SubCtxKey      ContextKey = "sub"
	BusinessCtxKey ContextKey = "business"
	StaffCtx       ContextKey = "staff"
	ScheduleCtx    ContextKey = "schedule"
	ShiftCtx       ContextKey = "shift"
	TransactionCtx ContextKey = "transaction"
)
