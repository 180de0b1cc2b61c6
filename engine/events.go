package engine

// Event names carried in the "event" field of every decision log line.
const (
	EventEntryScore     = "entry_score"
	EventEntrySignal    = "entry_signal"
	EventEntryVeto      = "entry_veto"
	EventEntryOpened    = "entry_opened"
	EventEntryFailed    = "entry_failed"
	EventScaleIn        = "scale_in"
	EventSizingFailed   = "sizing_failed"
	EventReversalExit   = "reversal_exit"
	EventPartialTP      = "partial_tp"
	EventPartialSkipped = "partial_tp_skipped"
	EventTPUpdate       = "tp_update"
	EventTimeStop       = "time_stop"
	EventBreakEven      = "break_even"
	EventTrailingStop   = "trailing_stop"
	EventWeekendProtect = "weekend_protect"
	EventForceClose     = "force_close"
	EventStateReconcile = "state_reconcile"
	EventUnprotected    = "unprotected_position"
	EventExitFailed     = "exit_failed"
	EventEngineReset    = "engine_reset"
)

// Exit actions reported to the Observer.
const (
	ActionReversal  = "reversal"
	ActionPartial   = "partial_tp"
	ActionTPUpdate  = "tp_update"
	ActionTimeStop  = "time_stop"
	ActionBreakEven = "break_even"
	ActionTrailing  = "trailing"
	ActionWeekend   = "weekend"
	ActionForce     = "force_close"
)
