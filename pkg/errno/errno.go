package errno

import (
	"errors"
	"fmt"
)

// Errno defines the error code logic
type Errno struct {
	Code    int
	Message string
	Data    interface{}
}

func (e Errno) Error() string {
	return e.Message
}

// Is 按错误码比较，WithMessage 之后的错误仍然能被 errors.Is 识别
func (e Errno) Is(target error) bool {
	var t Errno
	switch typed := target.(type) {
	case Errno:
		t = typed
	case *Errno:
		if typed == nil {
			return false
		}
		t = *typed
	default:
		return false
	}
	return e.Code == t.Code
}

// WithMessage 保留错误码，替换提示信息
func (e Errno) WithMessage(msg string) Errno {
	e.Message = msg
	return e
}

// WithMessagef 同 WithMessage，支持格式化
func (e Errno) WithMessagef(format string, args ...interface{}) Errno {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// WithData 附带额外数据 (JSON-RPC error.data)
func (e Errno) WithData(data interface{}) Errno {
	e.Data = data
	return e
}

// Decode tries to convert an error to Errno
func Decode(err error) (int, string) {
	if err == nil {
		return OK.Code, OK.Message
	}

	var typed Errno
	if errors.As(err, &typed) {
		return typed.Code, typed.Message
	}
	var ptr *Errno
	if errors.As(err, &ptr) && ptr != nil {
		return ptr.Code, ptr.Message
	}
	return InternalServerError.Code, err.Error()
}

// DecodeRPC 与 Decode 类似，但未知错误映射为 JSON-RPC 的 -32603
func DecodeRPC(err error) (int, string, interface{}) {
	var typed Errno
	if errors.As(err, &typed) {
		return typed.Code, typed.Message, typed.Data
	}
	var ptr *Errno
	if errors.As(err, &ptr) && ptr != nil {
		return ptr.Code, ptr.Message, ptr.Data
	}
	return ErrInternal.Code, err.Error(), nil
}

// Common Errors
var (
	OK                  = Errno{Code: 0, Message: "Success"}
	InternalServerError = Errno{Code: 10001, Message: "Internal server error"}
	ErrBind             = Errno{Code: 10002, Message: "Error occurred while binding the request body to the struct"}
	ErrNotFound         = Errno{Code: 10005, Message: "Resource not found"}
)

// Provider Errors (EIP-1193 / EIP-1474 codes, 直接返回给 dapp)
var (
	ErrUserRejected      = Errno{Code: 4001, Message: "User rejected the request."}
	ErrUnauthorized      = Errno{Code: 4100, Message: "The requested method and/or account has not been authorized by the user."}
	ErrUnsupportedMethod = Errno{Code: 4200, Message: "The Provider does not support the requested method."}
	ErrSignerUnavailable = Errno{Code: 4900, Message: "Signer is unavailable."}
	ErrChainNotSupported = Errno{Code: 4902, Message: "Unrecognized chain ID."}

	ErrMethodNotFound    = Errno{Code: -32601, Message: "The method does not exist / is not available."}
	ErrInvalidParams     = Errno{Code: -32602, Message: "Invalid method parameter(s)."}
	ErrInternal          = Errno{Code: -32603, Message: "Internal JSON-RPC error."}
	ErrAlreadyProcessing = Errno{Code: -32002, Message: "Request already pending, please wait."}
	ErrSubmitFailed      = Errno{Code: -32003, Message: "Transaction rejected."}
	ErrSignerRejected    = Errno{Code: -32010, Message: "Signer rejected the request."}
	ErrLimitExceeded     = Errno{Code: -32005, Message: "Request exceeds defined limit."}
)
