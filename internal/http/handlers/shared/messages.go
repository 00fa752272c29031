package shared

import "fmt"

var messages = map[string]string{
	"error.bad_request":                   "invalid request",
	"error.unauthorized":                  "unauthorized",
	"error.forbidden":                     "forbidden",
	"error.auth_header_missing":           "authorization header missing",
	"error.auth_header_invalid":           "authorization header invalid",
	"error.token_invalid":                 "token invalid",
	"error.jwt_secret_missing":            "jwt secret not configured",
	"error.rate_limited":                  "too many requests, retry in %d seconds",
	"error.rate_limit_unavailable":        "rate limiter unavailable",
	"error.device_id_required":            "device id required",
	"error.number_import_empty":           "no valid numbers in input",
	"error.number_import_failed":          "number import failed",
	"error.number_fetch_failed":           "number query failed",
	"error.number_range_invalid":          "number range invalid",
	"error.number_stats_failed":           "number stats unavailable",
	"error.allocation_count_zero":         "allocation count must be positive",
	"error.allocation_conflict":           "device ranges overlap",
	"error.allocation_busy":               "another allocation is in progress",
	"error.allocation_failed":             "allocation failed",
	"error.reservation_conflict":          "numbers already reserved by another allocation",
	"error.reservation_empty":             "no available numbers to reserve",
	"error.consumption_strategy_required": "consumption strategy must be chosen",
	"error.consumption_strategy_invalid":  "consumption strategy invalid",
	"error.execution_failed":              "execution failed",
	"error.batch_not_found":               "batch not found",
	"error.batch_fetch_failed":            "batch query failed",
	"error.session_not_found":             "session not found",
	"error.session_fetch_failed":          "session query failed",
	"error.session_transition_invalid":    "session status transition not allowed",
	"error.session_revert_failed":         "session revert failed",
	"error.session_update_failed":         "session update failed",
	"error.pending_process_failed":        "pending session processing failed",
	"error.device_pending_busy":           "device pending sessions are being processed elsewhere",
	"error.reimport_failed":               "reimport failed",
	"error.queue_disabled":                "queue is disabled",
	"error.queue_enqueue_failed":          "enqueue failed",
}

// Message 按 key 返回提示消息，未登记的 key 原样返回。
func Message(key string) string {
	if msg, ok := messages[key]; ok {
		return msg
	}
	return key
}

// Messagef 按 key 返回格式化提示消息。
func Messagef(key string, args ...interface{}) string {
	return fmt.Sprintf(Message(key), args...)
}
