// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 graphctl 命令行程序入口。

# 概述

graphctl 以 HTTP/WebSocket 服务的形式托管内置演示图，并提供检查点表迁移、
拓扑渲染、线程历史查询、健康检查和版本查询等子命令。程序支持 YAML 配置
文件加载、结构化日志（zap）、Prometheus 指标采集、OpenTelemetry 追踪以及
日志级别热更新。

# 核心类型

  - Server       — 主服务器，管理 API、Metrics 双端口及优雅关闭
  - Middleware   — HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve、migrate、render、history、version、health
  - 中间件链：Recovery、RequestID、OTelTracing、SecurityHeaders、
    RequestLogger、Metrics、CORS、RateLimiter（基于 IP）、
    APIKeyAuth（X-API-Key / query 参数）、JWTAuth（HS256）
  - 配置监听：文件变更后热更新日志级别
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 优雅关闭：信号监听 → 关闭 API → 关闭 Metrics → 关闭检查点后端 → 刷新遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
