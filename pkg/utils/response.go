package utils

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"safetrain-backend/pkg/apperr"
)

// APIResponse 标准API响应结构
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

// APIError 错误信息结构
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`

	// Fields are flattened into the error object, e.g. current_count and limit.
	Fields map[string]interface{} `json:"-"`
}

// MarshalJSON flattens Fields next to code, message and details.
func (e APIError) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(e.Fields)+3)
	for k, v := range e.Fields {
		out[k] = v
	}
	out["code"] = e.Code
	out["message"] = e.Message
	if e.Details != "" {
		out["details"] = e.Details
	}
	return json.Marshal(out)
}

func writeEnvelope(w http.ResponseWriter, statusCode int, response APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		// 如果编码失败，写入简单的错误响应
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// WriteJSONResponse 写入JSON响应
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	WriteMessageResponse(w, statusCode, data, "")
}

// WriteMessageResponse 写入带提示信息的JSON响应
func WriteMessageResponse(w http.ResponseWriter, statusCode int, data interface{}, message string) {
	writeEnvelope(w, statusCode, APIResponse{
		Success: statusCode >= 200 && statusCode < 300,
		Data:    data,
		Message: message,
	})
}

// WriteSuccessResponse 写入成功响应
func WriteSuccessResponse(w http.ResponseWriter, data interface{}) {
	WriteJSONResponse(w, http.StatusOK, data)
}

// WriteCreatedResponse 写入创建成功响应
func WriteCreatedResponse(w http.ResponseWriter, data interface{}, message string) {
	WriteMessageResponse(w, http.StatusCreated, data, message)
}

// WriteErrorResponseWithCode 写入带错误代码的错误响应
func WriteErrorResponseWithCode(w http.ResponseWriter, statusCode int, code, message, details string) {
	writeEnvelope(w, statusCode, APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// WriteBadRequestResponse 写入400错误响应
func WriteBadRequestResponse(w http.ResponseWriter, message string) {
	WriteErrorResponseWithCode(w, http.StatusBadRequest, apperr.EValidation, message, "")
}

// WriteUnauthorizedResponse 写入401错误响应
func WriteUnauthorizedResponse(w http.ResponseWriter, message string) {
	WriteErrorResponseWithCode(w, http.StatusUnauthorized, apperr.EUnauthorized, message, "")
}

// WriteNotFoundResponse 写入404错误响应
func WriteNotFoundResponse(w http.ResponseWriter, message string) {
	WriteErrorResponseWithCode(w, http.StatusNotFound, apperr.ENotFound, message, "")
}

// WriteInternalServerErrorResponse 写入500错误响应
func WriteInternalServerErrorResponse(w http.ResponseWriter, message string) {
	WriteErrorResponseWithCode(w, http.StatusInternalServerError, apperr.EInternal, message, "")
}

// WriteError maps err onto the error envelope. Server-side failures are
// logged with their full chain; client errors only at debug level.
func WriteError(w http.ResponseWriter, log *zap.Logger, err error) {
	code := apperr.Code(err)
	status := apperr.HTTPStatus(code)

	body := &APIError{Code: code, Message: "Internal server error"}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		if ae.Msg != "" {
			body.Message = ae.Msg
		}
		body.Fields = ae.Fields
		if code == apperr.EPersistence && ae.Err != nil {
			body.Details = ae.Err.Error()
		}
	}

	if status >= http.StatusInternalServerError {
		fields := []zap.Field{zap.String("code", code), zap.Error(err)}
		if ae != nil && ae.Op != "" {
			fields = append(fields, zap.String("op", ae.Op))
		}
		log.Error("Request failed", fields...)
	} else {
		log.Debug("Request rejected", zap.String("code", code), zap.String("message", body.Message))
	}

	writeEnvelope(w, status, APIResponse{Success: false, Error: body})
}

// ParseJSONBody 解析JSON请求体
func ParseJSONBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
