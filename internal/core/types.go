package core

import "context"

// Response - конверт результата команды.
// Успех: {success:true, data}; ошибка: {success:false, message, error}.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// OK оборачивает данные в успешный ответ.
func OK(data any) Response {
	return Response{Success: true, Data: data}
}

// Fail строит ответ об ошибке; code - машиночитаемый код для транспорта.
func Fail(code, message string, err error) Response {
	resp := Response{Message: message, Code: code}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}

// CommandProvider определяет контракт для модулей.
type CommandProvider interface {
	Name() string
	Init(ctx context.Context) error
	Commands() []string
	Execute(ctx context.Context, cmd string, args []string) (Response, error)
}
