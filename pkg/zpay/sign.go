// Package zpay 封装 Z-Pay 网关的签名协议与下单链接构造。
//
// 签名规则（网关协议约定，不可更改）：
// 除 sign / sign_type 外的参数按 key 字典序排列，
// 拼成 key=value&key=value 后直接追加商户密钥，取 MD5 十六进制小写。
package zpay

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

const DefaultGateway = "https://z-pay.cn/submit.php"

// BuildSignaturePayload 构造待签名字符串
// 空字符串值也参与签名，和网关侧的取值保持一致
func BuildSignaturePayload(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		if key == "sign" || key == "sign_type" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+params[key])
	}
	return strings.Join(pairs, "&")
}

// BuildSignature 计算签名
func BuildSignature(params map[string]string, secret string) string {
	sum := md5.Sum([]byte(BuildSignaturePayload(params) + secret))
	return hex.EncodeToString(sum[:])
}

// VerifySignature 校验回调签名，大小写不敏感
// 这是支付回调的硬性安全门，任何路径都不允许跳过
func VerifySignature(params map[string]string, secret, providedSign string) bool {
	if providedSign == "" {
		return false
	}
	expected := BuildSignature(params, secret)
	return strings.EqualFold(expected, providedSign)
}

// BuildPayURL 构造带签名的网关收银台链接
func BuildPayURL(params map[string]string, secret, gateway string) string {
	if gateway == "" {
		gateway = DefaultGateway
	}
	sign := BuildSignature(params, secret)

	query := url.Values{}
	for key, value := range params {
		query.Set(key, value)
	}
	query.Set("sign", sign)
	query.Set("sign_type", "MD5")

	return fmt.Sprintf("%s?%s", gateway, query.Encode())
}
