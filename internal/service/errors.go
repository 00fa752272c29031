package service

import "errors"

// 号码池相关错误
var (
	ErrNumberRangeInvalid   = errors.New("number range invalid")
	ErrNumberImportEmpty    = errors.New("no valid numbers in input")
	ErrNumberImportFailed   = errors.New("number import failed")
	ErrNumberFetchFailed    = errors.New("number fetch failed")
	ErrNumberUpdateFailed   = errors.New("number update failed")
	ErrReservationConflict  = errors.New("numbers already reserved by another allocation")
	ErrReservationEmpty     = errors.New("no available numbers to reserve")
	ErrReservationNotFound  = errors.New("reservation not found")
	ErrReservationNotActive = errors.New("reservation is not active")
	ErrAllocationCountZero  = errors.New("allocation count must be positive")
	ErrAllocationConflict   = errors.New("device ranges overlap")
	ErrAllocationBusy       = errors.New("another allocation is in progress")
	ErrDeviceIDRequired     = errors.New("device id required")
)

// 批次相关错误
var (
	ErrBatchNotFound       = errors.New("batch not found")
	ErrBatchCreateFailed   = errors.New("batch create failed")
	ErrBatchFetchFailed    = errors.New("batch fetch failed")
	ErrArtifactWriteFailed = errors.New("artifact write failed")
	ErrArtifactMissing     = errors.New("missing artifact")
)

// 会话相关错误
var (
	ErrSessionNotFound          = errors.New("session not found")
	ErrSessionCreateFailed      = errors.New("session create failed")
	ErrSessionUpdateFailed      = errors.New("session update failed")
	ErrSessionTransitionInvalid = errors.New("session status transition not allowed")
	ErrSessionRevertFailed      = errors.New("session revert failed")
	ErrDevicePendingBusy        = errors.New("device pending sessions are being processed elsewhere")
)

// 执行相关错误
var (
	ErrConsumptionStrategyRequired = errors.New("consumption strategy must be chosen when marking consumed")
	ErrConsumptionStrategyInvalid  = errors.New("consumption strategy invalid")
	ErrCollaboratorMissing         = errors.New("import collaborator not configured")
	ErrCollaboratorPanicked        = errors.New("import collaborator panicked")
)

// 鉴权相关错误
var (
	ErrTokenInvalid = errors.New("token invalid")
)
