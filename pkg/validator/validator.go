package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// Init 在 gin 默认的 validator 上注册自定义校验
func Init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		Register(v)
	}
}

// Register 注册 eth_addr 标签：0x 开头的 20 字节十六进制地址
func Register(v *validator.Validate) {
	_ = v.RegisterValidation("eth_addr", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return strings.HasPrefix(s, "0x") && common.IsHexAddress(s)
	})
}

// GetErrorMsg translates validation errors into user-friendly messages
func GetErrorMsg(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return "请求参数错误"
	}

	var errMsgs []string
	for _, e := range validationErrors {
		field := e.Field()
		param := e.Param()

		switch e.Tag() {
		case "required":
			errMsgs = append(errMsgs, fmt.Sprintf("%s 不能为空", field))
		case "min":
			errMsgs = append(errMsgs, fmt.Sprintf("%s 至少为 %s", field, param))
		case "max":
			errMsgs = append(errMsgs, fmt.Sprintf("%s 不能超过 %s", field, param))
		case "oneof":
			errMsgs = append(errMsgs, fmt.Sprintf("%s 必须是 [%s] 之一", field, param))
		case "eth_addr":
			errMsgs = append(errMsgs, fmt.Sprintf("%s 不是合法的以太坊地址", field))
		default:
			errMsgs = append(errMsgs, fmt.Sprintf("%s 校验失败 (%s)", field, e.Tag()))
		}
	}
	return strings.Join(errMsgs, "; ")
}
