package limiter

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
)

// 限流相关响应头
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderRetryAfter = "Retry-After"
)

// ClientKey 取客户端 IP 作为限流 key。
// 只有在部署于可信反向代理之后（trustProxy）才读取 X-Forwarded-For / X-Real-IP，
// 否则客户端可以伪造请求头绕过限流。
func ClientKey(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
				return ip
			}
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// SetHeaders 写出限流响应头，被拒绝时附带 Retry-After（秒，向上取整）
func SetHeaders(w http.ResponseWriter, res *LimitResult) {
	if res == nil {
		return
	}
	w.Header().Set(HeaderLimit, strconv.FormatInt(res.Limit, 10))
	w.Header().Set(HeaderRemaining, strconv.FormatInt(res.Remaining, 10))
	if !res.Allowed {
		w.Header().Set(HeaderRetryAfter, strconv.Itoa(RetryAfterSeconds(res)))
	}
}

// RetryAfterSeconds 将重试时间换算为整秒，至少为 1
func RetryAfterSeconds(res *LimitResult) int {
	secs := int(math.Ceil(res.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
