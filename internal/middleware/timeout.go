package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/MorseWayne/fridge_shop/internal/resp"
)

// Timeout 超过 d 仍未写完响应时返回统一的超时响应，并取消请求上下文。d <= 0 时不设超时。
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	body, _ := json.Marshal(resp.Response[any]{Code: resp.CodeTimeout, Message: "request timeout"})
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		th := http.TimeoutHandler(next, d, string(body))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 超时响应沿用外层的 Content-Type，正常响应会被处理器自己的头覆盖
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			th.ServeHTTP(w, r)
		})
	}
}
