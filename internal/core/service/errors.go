package service

// ServiceError carries a stable HTTP status code alongside the message so
// handlers can surface failures without re-deriving the code.
type ServiceError struct {
	Code    int
	Message string
}

func (e *ServiceError) Error() string {
	return e.Message
}

func NewServiceError(code int, message string) *ServiceError {
	return &ServiceError{Code: code, Message: message}
}
