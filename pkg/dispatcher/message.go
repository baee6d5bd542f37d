package dispatcher

// Request is the outbound envelope sent to a boundary.
type Request struct {
	ID                uint64
	Type              string
	Payload           []any
	CloneMethod       CloneMethod
	ReturnCloneMethod CloneMethod
}

// Result carries either a value or an error.
type Result struct {
	Value any
	Error error
}

// Response is the inbound envelope. ID must equal the oldest pending request.
type Response struct {
	ID     uint64
	Result Result
}
