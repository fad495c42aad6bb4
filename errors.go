// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package opcua

import (
	"errors"
	"fmt"
)

// StatusCode severity levels.
const (
	StatusSeverityGood      uint32 = 0x00000000
	StatusSeverityUncertain uint32 = 0x40000000
	StatusSeverityBad       uint32 = 0x80000000
	StatusSeverityMask      uint32 = 0xC0000000
)

// Common OPC UA Status Codes.
const (
	StatusGood                        StatusCode = 0x00000000
	StatusUncertain                   StatusCode = 0x40000000
	StatusBad                         StatusCode = 0x80000000
	StatusBadUnexpectedError          StatusCode = 0x80010000
	StatusBadInternalError            StatusCode = 0x80020000
	StatusBadOutOfMemory              StatusCode = 0x80030000
	StatusBadCommunicationError       StatusCode = 0x80050000
	StatusBadEncodingError            StatusCode = 0x80060000
	StatusBadDecodingError            StatusCode = 0x80070000
	StatusBadEncodingLimitsExceeded   StatusCode = 0x80080000
	StatusBadUnknownResponse          StatusCode = 0x80090000
	StatusBadTimeout                  StatusCode = 0x800A0000
	StatusBadServiceUnsupported       StatusCode = 0x800B0000
	StatusBadNothingToDo              StatusCode = 0x800F0000
	StatusBadTooManyOperations        StatusCode = 0x80100000
	StatusBadDataTypeIdUnknown        StatusCode = 0x80110000
	StatusBadContinuationPointInvalid StatusCode = 0x804A0000
	StatusBadNodeIdInvalid            StatusCode = 0x80330000
	StatusBadNodeIdUnknown            StatusCode = 0x80340000
	StatusBadAttributeIdInvalid       StatusCode = 0x80350000
	StatusBadIndexRangeInvalid        StatusCode = 0x80360000
	StatusBadIndexRangeNoData         StatusCode = 0x80370000
	StatusBadDataEncodingInvalid      StatusCode = 0x80380000
	StatusBadDataEncodingUnsupported  StatusCode = 0x80390000
	StatusBadNotReadable              StatusCode = 0x803A0000
	StatusBadNotWritable              StatusCode = 0x803B0000
	StatusBadOutOfRange               StatusCode = 0x803C0000
	StatusBadNotSupported             StatusCode = 0x803D0000
	StatusBadNotFound                 StatusCode = 0x803E0000
	StatusBadReferenceTypeIdInvalid   StatusCode = 0x804C0000
	StatusBadBrowseDirectionInvalid   StatusCode = 0x804D0000
	StatusBadNoContinuationPoints     StatusCode = 0x804B0000
	StatusBadTypeMismatch             StatusCode = 0x80740000
	StatusBadWriteNotSupported        StatusCode = 0x80730000
	StatusBadInvalidArgument          StatusCode = 0x80AB0000
	StatusBadConfigurationError       StatusCode = 0x80890000
	StatusBadSyntaxError              StatusCode = 0x80B60000
	StatusGoodMoreData                StatusCode = 0x00A60000
	StatusGoodNoData                  StatusCode = 0x00A50000
)

// StatusUncertainNotAllNodesAvailable is reported by browse when the
// reference list may be incomplete.
const StatusUncertainNotAllNodesAvailable StatusCode = 0x40C00000

// statusCodeInfo contains name and description for a status code.
type statusCodeInfo struct {
	name        string
	description string
}

// statusCodeMap maps status codes to their info.
var statusCodeMap = map[StatusCode]statusCodeInfo{
	StatusGood:                          {"Good", "The operation completed successfully"},
	StatusUncertain:                     {"Uncertain", "The operation completed however its outputs may not be usable"},
	StatusBad:                           {"Bad", "The operation failed"},
	StatusBadUnexpectedError:            {"BadUnexpectedError", "An unexpected error occurred"},
	StatusBadInternalError:              {"BadInternalError", "An internal error occurred"},
	StatusBadOutOfMemory:                {"BadOutOfMemory", "Not enough memory to complete the operation"},
	StatusBadCommunicationError:         {"BadCommunicationError", "A low level communication error occurred"},
	StatusBadEncodingError:              {"BadEncodingError", "Encoding halted because of invalid data"},
	StatusBadDecodingError:              {"BadDecodingError", "Decoding halted because of invalid data"},
	StatusBadEncodingLimitsExceeded:     {"BadEncodingLimitsExceeded", "The message encoding/decoding limits imposed by the stack have been exceeded"},
	StatusBadUnknownResponse:            {"BadUnknownResponse", "An unrecognized response was received from the server"},
	StatusBadTimeout:                    {"BadTimeout", "The operation timed out"},
	StatusBadServiceUnsupported:         {"BadServiceUnsupported", "The server does not support the requested service"},
	StatusBadNothingToDo:                {"BadNothingToDo", "There was nothing to do because the client passed a list of operations with no elements"},
	StatusBadTooManyOperations:          {"BadTooManyOperations", "The request could not be processed because it specified too many operations"},
	StatusBadDataTypeIdUnknown:          {"BadDataTypeIdUnknown", "The extension object cannot be (de)serialized because the data type id is not recognized"},
	StatusBadContinuationPointInvalid:   {"BadContinuationPointInvalid", "The continuation point provide is longer valid"},
	StatusBadNodeIdInvalid:              {"BadNodeIdInvalid", "The syntax of the node id is not valid"},
	StatusBadNodeIdUnknown:              {"BadNodeIdUnknown", "The node id refers to a node that does not exist in the server address space"},
	StatusBadAttributeIdInvalid:         {"BadAttributeIdInvalid", "The attribute is not supported for the specified Node"},
	StatusBadIndexRangeInvalid:          {"BadIndexRangeInvalid", "The syntax of the index range parameter is invalid"},
	StatusBadIndexRangeNoData:           {"BadIndexRangeNoData", "No data exists within the range of indexes specified"},
	StatusBadDataEncodingInvalid:        {"BadDataEncodingInvalid", "The data encoding is invalid"},
	StatusBadDataEncodingUnsupported:    {"BadDataEncodingUnsupported", "The server does not support the requested data encoding for the node"},
	StatusBadNotReadable:                {"BadNotReadable", "The access level does not allow reading or subscribing to the Node"},
	StatusBadNotWritable:                {"BadNotWritable", "The access level does not allow writing to the Node"},
	StatusBadOutOfRange:                 {"BadOutOfRange", "The value was out of range"},
	StatusBadNotSupported:               {"BadNotSupported", "The requested operation is not supported"},
	StatusBadNotFound:                   {"BadNotFound", "A requested item was not found or a search operation ended without success"},
	StatusBadReferenceTypeIdInvalid:     {"BadReferenceTypeIdInvalid", "The reference type id does not refer to a valid reference type node"},
	StatusBadBrowseDirectionInvalid:     {"BadBrowseDirectionInvalid", "The browse direction is not valid"},
	StatusBadNoContinuationPoints:       {"BadNoContinuationPoints", "The operation could not be processed because all continuation points have been allocated"},
	StatusBadTypeMismatch:               {"BadTypeMismatch", "The value supplied for the attribute is not of the same type as the attribute's value"},
	StatusBadWriteNotSupported:          {"BadWriteNotSupported", "The server does not support writing the combination of value, status and timestamps provided"},
	StatusBadInvalidArgument:            {"BadInvalidArgument", "One or more arguments are invalid"},
	StatusBadConfigurationError:         {"BadConfigurationError", "There is a configuration error"},
	StatusBadSyntaxError:                {"BadSyntaxError", "A value had an invalid syntax"},
	StatusGoodMoreData:                  {"GoodMoreData", "The value is accurate, and the signal source supports additional data"},
	StatusGoodNoData:                    {"GoodNoData", "No data exists for the requested time range or event filter"},
	StatusUncertainNotAllNodesAvailable: {"UncertainNotAllNodesAvailable", "The list of references may not be complete because the underlying system is not available"},
}

// String returns the string representation of the status code.
func (s StatusCode) String() string {
	if info, ok := statusCodeMap[s]; ok {
		return info.name
	}
	return fmt.Sprintf("StatusCode(0x%08X)", uint32(s))
}

// Description returns a human-readable description of the status code.
func (s StatusCode) Description() string {
	if info, ok := statusCodeMap[s]; ok {
		return info.description
	}
	switch {
	case s.IsGood():
		return "The operation completed successfully"
	case s.IsUncertain():
		return "The operation completed with uncertain result"
	case s.IsBad():
		return "The operation failed"
	default:
		return "Unknown status"
	}
}

// Error returns a formatted error string with code, name, and description.
func (s StatusCode) Error() string {
	if info, ok := statusCodeMap[s]; ok {
		return fmt.Sprintf("%s (0x%08X): %s", info.name, uint32(s), info.description)
	}
	return fmt.Sprintf("StatusCode 0x%08X", uint32(s))
}

// IsGood returns true if the status code indicates success.
func (s StatusCode) IsGood() bool {
	return (uint32(s) & StatusSeverityMask) == StatusSeverityGood
}

// IsUncertain returns true if the status code indicates uncertainty.
func (s StatusCode) IsUncertain() bool {
	return (uint32(s) & StatusSeverityMask) == StatusSeverityUncertain
}

// IsBad returns true if the status code indicates failure.
func (s StatusCode) IsBad() bool {
	return (uint32(s) & StatusSeverityMask) == StatusSeverityBad
}

// OPCUAError represents an OPC UA protocol error. ServiceID is zero for
// errors raised outside of a service call, such as index range evaluation.
type OPCUAError struct {
	ServiceID  ServiceID
	StatusCode StatusCode
	Message    string
}

// Error implements the error interface.
func (e *OPCUAError) Error() string {
	if e.ServiceID == 0 {
		if e.Message != "" {
			return fmt.Sprintf("opcua: %s: %s", e.StatusCode.String(), e.Message)
		}
		return fmt.Sprintf("opcua: %s", e.StatusCode.String())
	}
	if e.Message != "" {
		return fmt.Sprintf("opcua: %s (%s): %s", e.StatusCode.String(), e.ServiceID, e.Message)
	}
	return fmt.Sprintf("opcua: %s (%s)", e.StatusCode.String(), e.ServiceID)
}

// Is checks if the error matches the target. A bare StatusCode target
// matches on the code alone.
func (e *OPCUAError) Is(target error) bool {
	switch t := target.(type) {
	case *OPCUAError:
		return e.StatusCode == t.StatusCode
	case StatusCode:
		return e.StatusCode == t
	}
	return false
}

// Common errors.
var (
	// ErrInvalidResponse indicates the response was malformed or unexpected.
	ErrInvalidResponse = errors.New("opcua: invalid response")

	// ErrInvalidMessage indicates a malformed message.
	ErrInvalidMessage = errors.New("opcua: invalid message")

	// ErrTimeout indicates a timeout occurred.
	ErrTimeout = errors.New("opcua: timeout")

	// ErrClientClosed indicates the client was closed.
	ErrClientClosed = errors.New("opcua: client closed")

	// ErrInvalidNodeID indicates an invalid NodeID was specified.
	ErrInvalidNodeID = errors.New("opcua: invalid node ID")

	// ErrInvalidQualifiedName indicates an invalid QualifiedName was specified.
	ErrInvalidQualifiedName = errors.New("opcua: invalid qualified name")

	// ErrBufferUnderflow indicates the decoder ran out of data.
	ErrBufferUnderflow = errors.New("opcua: buffer underflow")
)

// NewOPCUAError creates a new OPC UA error.
func NewOPCUAError(svc ServiceID, sc StatusCode, msg string) *OPCUAError {
	return &OPCUAError{
		ServiceID:  svc,
		StatusCode: sc,
		Message:    msg,
	}
}

// NewStatusError creates an OPC UA error that is not tied to a service.
func NewStatusError(sc StatusCode, format string, args ...interface{}) *OPCUAError {
	return &OPCUAError{
		StatusCode: sc,
		Message:    fmt.Sprintf(format, args...),
	}
}

// StatusCodeOf extracts the status code carried by err. It returns
// StatusGood for a nil error and StatusBadUnexpectedError when err carries
// no code.
func StatusCodeOf(err error) StatusCode {
	if err == nil {
		return StatusGood
	}
	var opcuaErr *OPCUAError
	if errors.As(err, &opcuaErr) {
		return opcuaErr.StatusCode
	}
	var sc StatusCode
	if errors.As(err, &sc) {
		return sc
	}
	return StatusBadUnexpectedError
}

// IsStatusCode checks if an error has a specific status code.
func IsStatusCode(err error, code StatusCode) bool {
	if err == nil {
		return false
	}
	return StatusCodeOf(err) == code
}

// IsBadStatusCode checks if an error has a bad status code.
func IsBadStatusCode(err error) bool {
	var opcuaErr *OPCUAError
	if errors.As(err, &opcuaErr) {
		return opcuaErr.StatusCode.IsBad()
	}
	var sc StatusCode
	if errors.As(err, &sc) {
		return sc.IsBad()
	}
	return false
}
