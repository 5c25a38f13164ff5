package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the envelope of every API answer. Callers branch on Code, not
// on the HTTP status, which stays 200 for handled errors.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Code:    SuccessCode,
		Message: errorMsg[SuccessCode],
		Data:    data,
	})
}

// Error renders err as an envelope and stops the handler chain. Errors that
// are not an ErrNo are reported as ServiceErr with their text.
func Error(c *gin.Context, err error) {
	e := ConvertErr(err)
	c.AbortWithStatusJSON(http.StatusOK, Response{Code: e.ErrCode, Message: e.ErrMsg})
}
