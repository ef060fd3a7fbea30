package metrics

import (
	"context"
	"errors"
	"strconv"
)

const (
	LabelShard       = "shard"
	LabelOutcome     = "outcome"
	LabelMethod      = "method"
	LabelRoute       = "route"
	LabelStatusClass = "status_class"
)

const (
	OutcomeSuccess  = "success"
	OutcomeError    = "error"
	OutcomeRejected = "rejected"
	OutcomeCanceled = "canceled"
)

// UnknownRoute 未命中路由时的 route 取值
const UnknownRoute = "unknown"

// Shard 分片下标标签
func Shard(index int) Label {
	return L(LabelShard, strconv.Itoa(index))
}

// Outcome 根据 err 返回 success/error/canceled 标签，调用方取消不算作错误
func Outcome(err error) Label {
	switch {
	case err == nil:
		return L(LabelOutcome, OutcomeSuccess)
	case errors.Is(err, context.Canceled):
		return L(LabelOutcome, OutcomeCanceled)
	default:
		return L(LabelOutcome, OutcomeError)
	}
}

// HTTPStatusClass 返回 1xx/2xx/3xx/4xx/5xx/unknown
func HTTPStatusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}

// HTTPOutcome 2xx/3xx 视为成功
func HTTPOutcome(status int) string {
	if status >= 200 && status < 400 {
		return OutcomeSuccess
	}
	return OutcomeError
}
