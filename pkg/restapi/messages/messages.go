/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package messages

const (
	// FailWriteResponse is logged when a ResponseWriter fails to write.
	FailWriteResponse = ` Failed to write response back to sender: %s.`

	// DebugLogEventWithReceivedData is used for debug log events that include the received data.
	DebugLogEventWithReceivedData = "%s Received data: %s"

	// ReadRequestBodyFailure is used when the incoming request body can't be read.
	// This should not happen during normal operation.
	ReadRequestBodyFailure = "Received request for %s, but failed to read the request body: %s."
	// InvalidRequest is used when the request body doesn't match the operation's input.
	InvalidRequest = "Received invalid request for %s: %s."
	// RequestTooLarge is used when the request body exceeds the size limit.
	RequestTooLarge = "request body exceeds %d bytes"

	// OperationRejected is used when the ledger refuses an operation with a discriminant.
	OperationRejected = "Ledger rejected %s from caller %q: %s (%s)."
	// OperationFailure is used when an operation fails for a reason other than a ledger rule.
	OperationFailure = "Failure while handling %s from caller %q: %s."
	// OperationSuccess is used when an operation succeeds.
	OperationSuccess = "Handled %s from caller %q."
	// EncodeResponseFailure is used when a result can't be serialized.
	EncodeResponseFailure = "Failed to encode response for %s: %s."
)
