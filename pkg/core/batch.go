package core

// BatchOperationType tags one step of an atomic batch.
type BatchOperationType string

// Batch operation types.
const (
	OpCreate             BatchOperationType = "create"
	OpUpdate             BatchOperationType = "update"
	OpMarkAsDeleted      BatchOperationType = "markAsDeleted"
	OpDestroyPermanently BatchOperationType = "destroyPermanently"
)

// BatchOperation is one step of an all-or-nothing write.
// Raw is required for create and update and ignored otherwise.
type BatchOperation struct {
	Type  BatchOperationType
	Table string
	ID    string
	Raw   RawRecord
}
