// Package tlsutil 提供集中式 TLS 配置（TLS 1.2+，仅 AEAD 密码套件），
// 供 HTTP 服务端、graphctl 健康检查客户端与 Redis 检查点连接使用。
package tlsutil
