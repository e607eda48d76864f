package errs

const (
	ArgsErrorCode          = 1001 // 参数缺失/非法
	RecordNotFoundCode     = 1002
	RecordIsExistCode      = 1003
	TokenInvalidCode       = 1101
	BackendUnavailableCode = 1201 // 存储不可用
	ServerInternalCode     = 1500
)

var (
	ErrArgs               = NewCodeError(ArgsErrorCode, "args error")
	ErrRecordNotFound     = NewCodeError(RecordNotFoundCode, "record not found")
	ErrorRecordIsExist    = NewCodeError(RecordIsExistCode, "record is exist")
	ErrTokenInvalid       = NewCodeError(TokenInvalidCode, "token invalid")
	ErrBackendUnavailable = NewCodeError(BackendUnavailableCode, "backend unavailable")
	ErrInternalServer     = NewCodeError(ServerInternalCode, "server internal error")
)
