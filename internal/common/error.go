package common

import (
	"errors"
	"fmt"
)

type ErrNo struct {
	ErrCode int    `json:"err_code"`
	ErrMsg  string `json:"err_msg"`
}

const (
	SuccessCode = 0
	ServiceErr  = iota + 10000
	RequestInvalid
	EnvNotExists
	RunNotExists
	RunNotCancellable
	ScheduleInvalid
	ScheduleNotExists
	TriggerFail
	ReportNotExists
)

var errorMsg = map[int]string{
	SuccessCode:       "success",
	ServiceErr:        "service error",
	RequestInvalid:    "request invalid",
	EnvNotExists:      "environment not exists",
	RunNotExists:      "run not exists",
	RunNotCancellable: "run is not scheduled",
	ScheduleInvalid:   "schedule invalid",
	ScheduleNotExists: "schedule not exists",
	TriggerFail:       "trigger run fail",
	ReportNotExists:   "report not exists",
}

func (e ErrNo) Error() string {
	return fmt.Sprintf("err_code=%d, err_msg=%s", e.ErrCode, e.ErrMsg)
}

func NewErrNo(errCode int) error {
	return ErrNo{
		ErrCode: errCode,
		ErrMsg:  errorMsg[errCode],
	}
}

// NewErrNoMsg keeps the code but replaces the message with a detail.
func NewErrNoMsg(errCode int, msg string) error {
	return ErrNo{
		ErrCode: errCode,
		ErrMsg:  fmt.Sprintf("%s: %s", errorMsg[errCode], msg),
	}
}

func ConvertErr(err error) ErrNo {
	e := ErrNo{}
	if errors.As(err, &e) {
		return e
	}
	e = ErrNo{
		ErrCode: ServiceErr,
		ErrMsg:  err.Error(),
	}
	return e
}

// IsErrNo reports whether err carries the given code.
func IsErrNo(err error, errCode int) bool {
	e := ErrNo{}
	return errors.As(err, &e) && e.ErrCode == errCode
}
